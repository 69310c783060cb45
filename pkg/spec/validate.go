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

package spec

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

//nolint:gochecknoglobals
var validate = validator.New()

func init() {
	if err := validate.RegisterValidation("plan", validatePlanTag); err != nil {
		panic(err)
	}
}

// validatePlanTag backs the "plan" validator tag, replacing a hand-kept
// oneof=... literal with the same closed set plan.go already tracks, so
// the two can never drift.
func validatePlanTag(fl validator.FieldLevel) bool {
	return Plan(fl.Field().String()).Valid()
}

// ErrInvalidSpec wraps every validation failure.
type ErrInvalidSpec struct {
	err error
}

func (e *ErrInvalidSpec) Error() string {
	return fmt.Sprintf("invalid desired spec: %s", e.err)
}

func (e *ErrInvalidSpec) Unwrap() error {
	return e.err
}

// DecodeDesiredSpec reads and validates a DesiredSpec from r. Unknown
// JSON keys are ignored, as the wire contract requires; conditional
// fields (workers_*, db_*) are required only when their *_enabled flag
// is set, enforced via "required_if" tags on DesiredSpec.
func DecodeDesiredSpec(r io.Reader) (*DesiredSpec, error) {
	var s DesiredSpec

	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("malformed desired spec: %w", err)
	}

	if err := validate.Struct(&s); err != nil {
		return nil, &ErrInvalidSpec{err: fmt.Errorf("%w (valid plans: %s)", err, PlanNames())}
	}

	return &s, nil
}
