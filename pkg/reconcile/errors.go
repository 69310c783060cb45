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

package reconcile

import "errors"

// ErrZoneRequired is raised by Teardown when a zone filter was given
// and that zone name does not resolve, the one precondition failure
// that makes teardown exit non-zero rather than proceeding best-effort.
// Finding no matching network is not an error.
var ErrZoneRequired = errors.New("zone filter does not resolve to a known zone")
