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

package reconcile_test

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"

	"github.com/locaweb/ai-deploy-infra/pkg/cloudstack"
	"github.com/locaweb/ai-deploy-infra/pkg/metrics"
	"github.com/locaweb/ai-deploy-infra/pkg/reconcile"
	"github.com/locaweb/ai-deploy-infra/pkg/spec"
	"github.com/locaweb/ai-deploy-infra/pkg/testutil/assert"
)

func fullSpec() *spec.DesiredSpec {
	return &spec.DesiredSpec{
		Zone:            "ZP01",
		WebPlan:         spec.PlanMedium,
		BlobDiskSizeGB:  20,
		WorkersEnabled:  true,
		WorkersReplicas: 3,
		WorkersPlan:     spec.PlanSmall,
		DBEnabled:       true,
		DBPlan:          spec.PlanLarge,
		DBDiskSizeGB:    35,
	}
}

func testIdentity() spec.ProjectIdentity {
	return spec.ProjectIdentity{RepoName: "myapp", UniqueID: "abc123"}
}

// scenario 1: full topology from nothing.
func TestProvisionFullTopology(t *testing.T) {
	fake := cloudstack.NewFakeInvoker()
	r := reconcile.New(fake, logr.Discard())

	out, err := r.Provision(context.Background(), fullSpec(), testIdentity(), "ssh-ed25519 AAAA...", "", "")
	assert.NilError(t, err)

	assert.NotEqual(t, "", out.WebVMID)
	assert.NotEqual(t, "", out.WebIP)
	assert.NotEqual(t, "", out.WebInternalIP)
	assert.NotEqual(t, "", out.BlobVolumeID)

	if len(out.WorkerVMIDs) != 3 {
		t.Fatalf("expected 3 worker VMs, got %d", len(out.WorkerVMIDs))
	}

	if len(out.WorkerIPs) != 3 {
		t.Fatalf("expected 3 worker IPs, got %d", len(out.WorkerIPs))
	}

	assert.NotEqual(t, "", out.DBVMID)
	assert.NotEqual(t, "", out.DBIP)
	assert.NotEqual(t, "", out.DBVolumeID)

	ips := map[string]bool{out.WebIP: true, out.DBIP: true}
	for _, ip := range out.WorkerIPs {
		if ips[ip] {
			t.Fatalf("IP %s assigned to more than one role", ip)
		}

		ips[ip] = true
	}
}

// P1: re-provisioning an unchanged spec is a no-op modulo reads.
func TestProvisionIdempotent(t *testing.T) {
	fake := cloudstack.NewFakeInvoker()
	r := reconcile.New(fake, logr.Discard())

	desired := fullSpec()
	identity := testIdentity()

	first, err := r.Provision(context.Background(), desired, identity, "ssh-ed25519 AAAA...", "", "")
	assert.NilError(t, err)

	r2 := reconcile.New(fake, logr.Discard())

	second, err := r2.Provision(context.Background(), desired, identity, "ssh-ed25519 AAAA...", "", "")
	assert.NilError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("provision output changed on second run (-first +second):\n%s", diff)
	}

	if writes := r2.Stats().Writes(); writes != 0 {
		t.Fatalf("expected zero writes on second provision, got %d", writes)
	}
}

// scenario 2: scale-down destroys excess workers and releases their IPs
// while leaving worker-1, web, and db untouched.
func TestScaleDownRemovesExcessWorkers(t *testing.T) {
	fake := cloudstack.NewFakeInvoker()
	r := reconcile.New(fake, logr.Discard())

	identity := testIdentity()

	first, err := r.Provision(context.Background(), fullSpec(), identity, "ssh-ed25519 AAAA...", "", "")
	assert.NilError(t, err)

	scaledDown := fullSpec()
	scaledDown.WorkersReplicas = 1

	second, err := r.Provision(context.Background(), scaledDown, identity, "ssh-ed25519 AAAA...", "", "")
	assert.NilError(t, err)

	if len(second.WorkerVMIDs) != 1 {
		t.Fatalf("expected 1 worker VM after scale-down, got %d", len(second.WorkerVMIDs))
	}

	assert.Equal(t, first.WorkerVMIDs[0], second.WorkerVMIDs[0])
	assert.Equal(t, first.WorkerIPs[0], second.WorkerIPs[0])
	assert.Equal(t, first.WebVMID, second.WebVMID)
	assert.Equal(t, first.DBVMID, second.DBVMID)

	state := cloudstack.NewStateReader(cloudstack.NewClient(fake, logr.Discard(), metrics.New()), metrics.New())

	for _, i := range []int{2, 3} {
		if vm := state.FindVM(context.Background(), identity.WorkerVMName(i)); vm != nil {
			t.Fatalf("expected %s to be destroyed after scale-down, still found %s", identity.WorkerVMName(i), vm.ID)
		}
	}

	if ips := state.FindPublicIPsInNetwork(context.Background(), second.NetworkID); len(ips) != 3 {
		t.Fatalf("expected 3 public IPs after scale-down, got %d", len(ips))
	}
}

// scenario 3: teardown after a full provision removes every trace of the
// project.
func TestTeardownRemovesEverything(t *testing.T) {
	fake := cloudstack.NewFakeInvoker()
	r := reconcile.New(fake, logr.Discard())

	identity := testIdentity()

	_, err := r.Provision(context.Background(), fullSpec(), identity, "ssh-ed25519 AAAA...", "", "")
	assert.NilError(t, err)

	err = r.Teardown(context.Background(), identity, "ZP01")
	assert.NilError(t, err)

	state := cloudstack.NewStateReader(cloudstack.NewClient(fake, logr.Discard(), metrics.New()), metrics.New())

	net, err := state.FindNetwork(context.Background(), identity.NetworkName(), "")
	assert.NilError(t, err)

	if net != nil {
		t.Fatalf("expected network %s to be gone after teardown, still found %s", identity.NetworkName(), net.ID)
	}

	if vm := state.FindVM(context.Background(), identity.WebVMName()); vm != nil {
		t.Fatalf("expected web VM to be gone after teardown, still found %s", vm.ID)
	}

	if vols := state.FindVolumesByTag(context.Background(), identity.NetworkName()); len(vols) != 0 {
		t.Fatalf("expected no tagged volumes after teardown, found %d", len(vols))
	}

	if state.FindKeypair(context.Background(), identity.KeypairName()) {
		t.Fatalf("expected keypair to be gone after teardown")
	}
}

// P5 / scenario 6: a shrink request on an existing volume is rejected
// and leaves the volume's size unchanged.
func TestShrinkRejected(t *testing.T) {
	fake := cloudstack.NewFakeInvoker()
	r := reconcile.New(fake, logr.Discard())

	identity := testIdentity()
	desired := fullSpec()

	_, err := r.Provision(context.Background(), desired, identity, "ssh-ed25519 AAAA...", "", "")
	assert.NilError(t, err)

	shrunk := fullSpec()
	shrunk.BlobDiskSizeGB = desired.BlobDiskSizeGB - 5

	_, err = r.Provision(context.Background(), shrunk, identity, "ssh-ed25519 AAAA...", "", "")
	assert.Error(t, cloudstack.ErrShrinkRejected, err)

	state := cloudstack.NewStateReader(cloudstack.NewClient(fake, logr.Discard(), metrics.New()), metrics.New())

	vol := state.FindVolume(context.Background(), identity.BlobDiskName())
	assert.NotNil(t, vol)
	assert.Equal(t, int64(desired.BlobDiskSizeGB)*(1<<30), vol.SizeBytes)
}

// offline-scale fallback: a live scale rejection still converges via
// stop/scale/start.
func TestScaleFallsBackToOffline(t *testing.T) {
	fake := cloudstack.NewFakeInvoker()
	r := reconcile.New(fake, logr.Discard())

	identity := testIdentity()
	desired := fullSpec()

	out, err := r.Provision(context.Background(), desired, identity, "ssh-ed25519 AAAA...", "", "")
	assert.NilError(t, err)

	fake.RejectNextLiveScale(out.WebVMID)

	resized := fullSpec()
	resized.WebPlan = spec.PlanLarge

	out2, err := r.Provision(context.Background(), resized, identity, "ssh-ed25519 AAAA...", "", "")
	assert.NilError(t, err)
	assert.Equal(t, out.WebVMID, out2.WebVMID)

	stopped := false

	for _, call := range fake.Calls() {
		if len(call) >= 3 && call[0] == "stop" && call[1] == "virtualmachine" && call[2] == "id="+out.WebVMID {
			stopped = true
		}
	}

	if !stopped {
		t.Fatalf("expected the rejected live scale of %s to fall back to stopping it", out.WebVMID)
	}
}
