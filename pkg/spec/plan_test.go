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

package spec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/locaweb/ai-deploy-infra/pkg/spec"
)

func TestPlanValid(t *testing.T) {
	assert.True(t, spec.PlanMicro.Valid())
	assert.True(t, spec.Plan4XLarge.Valid())
	assert.False(t, spec.Plan("huge").Valid())
	assert.False(t, spec.Plan("").Valid())
}

func TestPlanRAMMiB(t *testing.T) {
	mib, ok := spec.PlanMedium.RAMMiB()
	assert.True(t, ok)
	assert.Equal(t, 4096, mib)

	_, ok = spec.Plan("huge").RAMMiB()
	assert.False(t, ok)
}

func TestPlansAscendingBySize(t *testing.T) {
	plans := spec.Plans()
	assert.Len(t, plans, 7)

	var lastMiB int

	for _, p := range plans {
		mib, ok := p.RAMMiB()
		assert.True(t, ok)
		assert.Greater(t, mib, lastMiB)

		lastMiB = mib
	}
}

func TestPlanNamesListsEveryPlan(t *testing.T) {
	names := spec.PlanNames()

	for _, p := range spec.Plans() {
		assert.Contains(t, names, string(p))
	}
}
