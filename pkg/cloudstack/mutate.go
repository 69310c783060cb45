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

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/locaweb/ai-deploy-infra/pkg/constants"
	"github.com/locaweb/ai-deploy-infra/pkg/metrics"
)

// stopPollInterval and stopPollAttempts bound the wait for a VM to
// reach the Stopped state during an offline scale: up to 150s at 5s
// intervals, per spec.md §4.4.
const (
	stopPollInterval = 5 * time.Second
	stopPollAttempts = 30
)

// Mutator is the set of create/delete/attach/detach/scale/resize
// primitives. Each is the minimal write that advances towards the
// desired state; callers are expected to have already consulted
// StateReader to confirm the mutation is needed, except for ScaleVM
// and ResizeVolume whose need is derived from a value compare against
// current state they are handed directly.
type Mutator struct {
	client *Client
	state  *StateReader
	log    logr.Logger
	stats  *metrics.Stats
}

// NewMutator returns a Mutator backed by client and state.
func NewMutator(client *Client, state *StateReader, log logr.Logger, stats *metrics.Stats) *Mutator {
	return &Mutator{client: client, state: state, log: log, stats: stats}
}

func (m *Mutator) write(ctx context.Context, args ...string) (callResult, error) {
	m.stats.RecordWrite()
	return m.client.Call(ctx, args...)
}

// EnsureNetwork creates the network named name in zoneID under
// offeringID if it does not already exist.
func (m *Mutator) EnsureNetwork(ctx context.Context, name, offeringID, zoneID string) (string, error) {
	if net, _ := m.state.FindNetwork(ctx, name, zoneID); net != nil {
		return net.ID, nil
	}

	data, err := m.write(ctx, "create", "network",
		"name="+name,
		"displaytext="+name,
		"networkofferingid="+offeringID,
		"zoneid="+zoneID)
	if err != nil {
		return "", err
	}

	return asString(asObject(data["network"])["id"]), nil
}

// EnsureKeypair registers name under publicKey if it is not already
// registered.
func (m *Mutator) EnsureKeypair(ctx context.Context, name, publicKey string) error {
	if m.state.FindKeypair(ctx, name) {
		return nil
	}

	_, err := m.write(ctx, "register", "sshkeypair", "name="+name, "publickey="+publicKey)

	return err
}

// DeployOrScaleVM deploys a VM if absent, or scales it in place if its
// current offering differs from desiredOfferingID. userdata, when
// non-empty, is base64-encoded and passed at deploy time only — it is
// never re-applied to an existing VM.
func (m *Mutator) DeployOrScaleVM(ctx context.Context, name, desiredOfferingID, templateID, zoneID, netID, keypairName, userdata string) (string, error) {
	vm := m.state.FindVM(ctx, name)
	if vm != nil {
		if vm.ServiceOfferingID != "" && vm.ServiceOfferingID != desiredOfferingID {
			if err := m.ScaleVM(ctx, vm.ID, name, desiredOfferingID); err != nil {
				return "", err
			}
		}

		return vm.ID, nil
	}

	args := []string{
		"deploy", "virtualmachine",
		"serviceofferingid=" + desiredOfferingID,
		"templateid=" + templateID,
		"zoneid=" + zoneID,
		"networkids=" + netID,
		"keypair=" + keypairName,
		"name=" + name,
		"displayname=" + name,
	}

	if userdata != "" {
		args = append(args, "userdata="+base64.StdEncoding.EncodeToString([]byte(userdata)))
	}

	data, err := m.write(ctx, args...)
	if err != nil {
		return "", err
	}

	return asString(asObject(data["virtualmachine"])["id"]), nil
}

// ScaleVM scales vmID to newOfferingID, trying a live scale first and
// falling back to stop/scale/start if the provider rejects the live
// path.
func (m *Mutator) ScaleVM(ctx context.Context, vmID, name, newOfferingID string) error {
	if _, err := m.write(ctx, "scale", "virtualmachine", "id="+vmID, "serviceofferingid="+newOfferingID); err == nil {
		m.log.Info("scaled VM live", "name", name, "id", vmID)
		return nil
	}

	m.log.Info("live scale failed, falling back to offline scale", "name", name, "id", vmID)

	if _, err := m.write(ctx, "stop", "virtualmachine", "id="+vmID); err != nil {
		return err
	}

	stopped := false

	for i := 0; i < stopPollAttempts; i++ {
		if vm := m.state.FindVM(ctx, name); vm != nil && vm.State == "Stopped" {
			stopped = true
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stopPollInterval):
		}
	}

	if !stopped {
		return fmt.Errorf("%w: %s (%s)", ErrVMNotStopped, name, vmID)
	}

	if _, err := m.write(ctx, "scale", "virtualmachine", "id="+vmID, "serviceofferingid="+newOfferingID); err != nil {
		return err
	}

	if _, err := m.write(ctx, "start", "virtualmachine", "id="+vmID); err != nil {
		return err
	}

	m.log.Info("scaled VM offline", "name", name, "id", vmID)

	return nil
}

// CreateOrResizeDisk creates, tags, and attaches a data disk if absent,
// or resizes it in place (growth only) if present but smaller than
// sizeGB. It always ensures the disk ends up attached to vmID.
func (m *Mutator) CreateOrResizeDisk(ctx context.Context, name, offeringID, zoneID string, sizeGB int, vmID, deployIDTagValue string) (string, error) {
	vol := m.state.FindVolume(ctx, name)
	if vol == nil {
		data, err := m.write(ctx, "create", "volume",
			"name="+name,
			"diskofferingid="+offeringID,
			"zoneid="+zoneID,
			"size="+strconv.Itoa(sizeGB))
		if err != nil {
			return "", err
		}

		volID := asString(asObject(data["volume"])["id"])

		if _, err := m.write(ctx, "create", "tags",
			"resourceids="+volID,
			"resourcetype=Volume",
			"tags[0].key="+constants.DeployIDTag,
			"tags[0].value="+deployIDTagValue); err != nil {
			return "", err
		}

		if _, err := m.write(ctx, "attach", "volume", "id="+volID, "virtualmachineid="+vmID); err != nil {
			return "", err
		}

		return volID, nil
	}

	if err := m.ResizeVolume(ctx, vol, sizeGB); err != nil {
		return "", err
	}

	if vol.VirtualMachineID != vmID {
		if vol.VirtualMachineID != "" {
			if _, err := m.write(ctx, "detach", "volume", "id="+vol.ID); err != nil {
				return "", err
			}
		}

		if _, err := m.write(ctx, "attach", "volume", "id="+vol.ID, "virtualmachineid="+vmID); err != nil {
			return "", err
		}
	}

	return vol.ID, nil
}

// ResizeVolume grows vol to desiredGB if it is currently smaller.
// Shrinking is rejected with ErrShrinkRejected; equal size is a no-op.
func (m *Mutator) ResizeVolume(ctx context.Context, vol *Volume, desiredGB int) error {
	desiredBytes := int64(desiredGB) * (1 << 30)

	switch {
	case desiredBytes > vol.SizeBytes:
		_, err := m.write(ctx, "resize", "volume", "id="+vol.ID, "size="+strconv.Itoa(desiredGB))
		return err
	case desiredBytes < vol.SizeBytes:
		return fmt.Errorf("%w: %s is %d bytes, requested %d bytes", ErrShrinkRejected, vol.Name, vol.SizeBytes, desiredBytes)
	default:
		return nil
	}
}

// EnsureIPForVM returns the public IP statically NATed to vmID within
// netID, reusing an existing assignment unchanged whenever one exists.
// Only when none exists does it allocate from the unassigned pool (or
// associate a new IP) and enable static NAT. unassigned is mutated in
// place: the caller threads one pool across every VM in a single
// reconcile pass so IPs are never double-assigned.
func (m *Mutator) EnsureIPForVM(ctx context.Context, netID, vmID string, unassigned *[]PublicIP) (*PublicIP, error) {
	if ip := m.state.FindPublicIPForVM(ctx, netID, vmID); ip != nil {
		return ip, nil
	}

	var chosen PublicIP

	if len(*unassigned) > 0 {
		chosen = (*unassigned)[0]
		*unassigned = (*unassigned)[1:]
	} else {
		data, err := m.write(ctx, "associate", "ipaddress", "networkid="+netID)
		if err != nil {
			return nil, err
		}

		obj := asObject(data["ipaddress"])
		chosen = PublicIP{ID: asString(obj["id"]), Address: asString(obj["ipaddress"])}
	}

	if _, err := m.write(ctx, "enable", "staticnat", "ipaddressid="+chosen.ID, "virtualmachineid="+vmID); err != nil {
		return nil, err
	}

	chosen.StaticNAT = true
	chosen.VirtualMachineID = vmID

	return &chosen, nil
}

// requiredPorts are the fixed firewall ports required for a role, per
// invariant I6.
func requiredPorts(isWeb bool) []int64 {
	if isWeb {
		return []int64{22, 80, 443}
	}

	return []int64{22}
}

// EnsureFirewallRules creates whichever of the role's required TCP
// ports (from 0.0.0.0/0) are missing on ipID. It never deletes rules:
// firewall minimality (I6) holds as a steady-state invariant because
// this is the sole writer and always starts from an empty set.
func (m *Mutator) EnsureFirewallRules(ctx context.Context, ipID string, isWeb bool) error {
	existing := m.state.FindFirewallRules(ctx, ipID)

	have := make(map[int64]bool, len(existing))
	for _, r := range existing {
		have[r.StartPort] = true
	}

	for _, port := range requiredPorts(isWeb) {
		if have[port] {
			continue
		}

		if _, err := m.write(ctx, "create", "firewallrule",
			"ipaddressid="+ipID,
			"protocol=TCP",
			"startport="+strconv.FormatInt(port, 10),
			"endport="+strconv.FormatInt(port, 10),
			"cidrlist=0.0.0.0/0"); err != nil {
			return err
		}
	}

	return nil
}

// CreateSnapshotPolicy creates a daily snapshot policy for volID,
// replicated to allZoneIDs, tagged with deployIDTagValue, unless one
// already exists.
func (m *Mutator) CreateSnapshotPolicy(ctx context.Context, volID, deployIDTagValue string, allZoneIDs []string) error {
	if len(m.state.FindSnapshotPolicies(ctx, volID)) > 0 {
		return nil
	}

	zoneIDs := allZoneIDs[0]
	for _, z := range allZoneIDs[1:] {
		zoneIDs += "," + z
	}

	_, err := m.write(ctx, "create", "snapshotpolicy",
		"volumeid="+volID,
		"intervaltype=daily",
		"schedule="+constants.SnapshotSchedule,
		"maxsnaps="+strconv.Itoa(constants.SnapshotMaxSnaps),
		"timezone="+constants.SnapshotTimezone,
		"zoneids="+zoneIDs,
		"tags[0].key="+constants.DeployIDTag,
		"tags[0].value="+deployIDTagValue)

	return err
}

// RemoveExcessWorker tears down a worker VM this reconcile no longer
// wants: disables its static NAT, deletes its firewall rules,
// disassociates its IP, then destroys the VM with expunge=true.
func (m *Mutator) RemoveExcessWorker(ctx context.Context, name, vmID, netID string) error {
	if ip := m.state.FindPublicIPForVM(ctx, netID, vmID); ip != nil {
		if ip.StaticNAT {
			if _, err := m.write(ctx, "disable", "staticnat", "ipaddressid="+ip.ID); err != nil {
				return err
			}
		}

		for _, rule := range m.state.FindFirewallRules(ctx, ip.ID) {
			if _, err := m.write(ctx, "delete", "firewallrule", "id="+rule.ID); err != nil {
				return err
			}
		}

		if _, err := m.write(ctx, "disassociate", "ipaddress", "id="+ip.ID); err != nil {
			return err
		}
	}

	_, err := m.write(ctx, "destroy", "virtualmachine", "id="+vmID, "expunge=true")

	return err
}
