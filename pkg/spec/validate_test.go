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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locaweb/ai-deploy-infra/pkg/spec"
)

func minimalJSON() string {
	return `{
		"zone": "ZP01",
		"web_plan": "small",
		"blob_disk_size_gb": 20,
		"workers_enabled": false,
		"db_enabled": false
	}`
}

func TestDecodeDesiredSpecMinimal(t *testing.T) {
	desired, err := spec.DecodeDesiredSpec(strings.NewReader(minimalJSON()))
	require.NoError(t, err)

	assert.Equal(t, "ZP01", desired.Zone)
	assert.Equal(t, spec.PlanSmall, desired.WebPlan)
	assert.Equal(t, 20, desired.BlobDiskSizeGB)
	assert.False(t, desired.WorkersEnabled)
	assert.False(t, desired.DBEnabled)
}

func TestDecodeDesiredSpecIgnoresUnknownKeys(t *testing.T) {
	body := `{
		"zone": "ZP01",
		"web_plan": "small",
		"blob_disk_size_gb": 20,
		"workers_enabled": false,
		"db_enabled": false,
		"some_future_field": "ignored"
	}`

	_, err := spec.DecodeDesiredSpec(strings.NewReader(body))
	require.NoError(t, err)
}

func TestDecodeDesiredSpecRejectsMissingZone(t *testing.T) {
	body := `{
		"web_plan": "small",
		"blob_disk_size_gb": 20
	}`

	_, err := spec.DecodeDesiredSpec(strings.NewReader(body))
	require.Error(t, err)

	var invalid *spec.ErrInvalidSpec

	assert.ErrorAs(t, err, &invalid)
}

func TestDecodeDesiredSpecRejectsUnknownPlan(t *testing.T) {
	body := `{
		"zone": "ZP01",
		"web_plan": "huge",
		"blob_disk_size_gb": 20
	}`

	_, err := spec.DecodeDesiredSpec(strings.NewReader(body))
	require.Error(t, err)
}

// spec.md §9's open question: workers_enabled=true with
// workers_replicas=0 must be rejected, not silently treated as "one
// worker" or "zero workers".
func TestDecodeDesiredSpecRejectsZeroReplicaWorkers(t *testing.T) {
	body := `{
		"zone": "ZP01",
		"web_plan": "small",
		"blob_disk_size_gb": 20,
		"workers_enabled": true,
		"workers_replicas": 0,
		"workers_plan": "small"
	}`

	_, err := spec.DecodeDesiredSpec(strings.NewReader(body))
	require.Error(t, err)
}

func TestDecodeDesiredSpecRequiresWorkersPlanWhenEnabled(t *testing.T) {
	body := `{
		"zone": "ZP01",
		"web_plan": "small",
		"blob_disk_size_gb": 20,
		"workers_enabled": true,
		"workers_replicas": 3
	}`

	_, err := spec.DecodeDesiredSpec(strings.NewReader(body))
	require.Error(t, err)
}

func TestDecodeDesiredSpecRequiresDBFieldsWhenEnabled(t *testing.T) {
	body := `{
		"zone": "ZP01",
		"web_plan": "small",
		"blob_disk_size_gb": 20,
		"db_enabled": true
	}`

	_, err := spec.DecodeDesiredSpec(strings.NewReader(body))
	require.Error(t, err)
}

func TestDecodeDesiredSpecFullTopology(t *testing.T) {
	body := `{
		"zone": "ZP01",
		"web_plan": "medium",
		"blob_disk_size_gb": 30,
		"workers_enabled": true,
		"workers_replicas": 3,
		"workers_plan": "small",
		"db_enabled": true,
		"db_plan": "medium",
		"db_disk_size_gb": 25
	}`

	desired, err := spec.DecodeDesiredSpec(strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, 3, desired.WorkersReplicas)
	assert.Equal(t, spec.PlanSmall, desired.WorkersPlan)
	assert.Equal(t, spec.PlanMedium, desired.DBPlan)
	assert.Equal(t, 25, desired.DBDiskSizeGB)
}
