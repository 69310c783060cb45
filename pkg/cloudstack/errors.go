/*
Copyright 2024 Locaweb.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cloudstack

import "errors"

var (
	// ErrNotFound is raised by Resolver when a named catalog entry could
	// not be resolved, and by StateReader.VMInternalIP when the VM or its
	// NIC is missing. Fatal for provision. StateReader's other finders
	// report absence as nil rather than with this error.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict names a provider rejection caused by a state constraint
	// it enforces (e.g. live VM scale refused). Nothing in this package
	// returns it: a rejected mutation surfaces from Client.Call as
	// ErrCommandFailed.
	ErrConflict = errors.New("provider rejected the request")

	// ErrShrinkRejected is raised when a volume resize would shrink the
	// disk. Fatal, never retried, no automatic recovery.
	ErrShrinkRejected = errors.New("disk shrink rejected")

	// ErrMalformed is raised when a cmk invocation exits zero but its
	// stdout is not valid JSON. Fatal, never retried.
	ErrMalformed = errors.New("malformed cmk response")

	// ErrCommandFailed is raised by Call after every retry attempt has
	// been exhausted, wrapping the final stderr/stdout.
	ErrCommandFailed = errors.New("cmk command failed")

	// ErrVMNotStopped is raised when an offline scale's stop-poll loop
	// times out before the VM reaches the Stopped state.
	ErrVMNotStopped = errors.New("vm did not reach stopped state in time")
)
