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

// Package reconcile drives the CloudStack control plane (pkg/cloudstack)
// from a desired spec.DesiredSpec to convergence, and tears that same
// topology back down. It never constructs cmk argv directly; every
// mutation and lookup goes through cloudstack.Resolver, StateReader and
// Mutator.
package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/locaweb/ai-deploy-infra/pkg/cloudstack"
	"github.com/locaweb/ai-deploy-infra/pkg/constants"
	"github.com/locaweb/ai-deploy-infra/pkg/metrics"
	"github.com/locaweb/ai-deploy-infra/pkg/spec"
)

// teardownDetachDeleteGrace is the pause between detaching and deleting
// a data volume, giving the hypervisor time to release it.
const teardownDetachDeleteGrace = 2 * time.Second

// teardownExpungeGrace is the pause between destroying a network's VMs
// and deleting the network itself, giving them time to fully expunge.
const teardownExpungeGrace = 5 * time.Second

// Reconciler is the single orchestration entry point onto a CloudStack
// account. It owns the full chain: Client -> Resolver/StateReader ->
// Mutator.
type Reconciler struct {
	client   *cloudstack.Client
	resolver *cloudstack.Resolver
	state    *cloudstack.StateReader
	mutator  *cloudstack.Mutator
	log      logr.Logger
	stats    *metrics.Stats
}

// New constructs a Reconciler around invoker. A fresh metrics.Stats is
// created per Reconciler, matching the "one Stats per run" contract
// pkg/metrics documents.
func New(invoker cloudstack.Invoker, log logr.Logger) *Reconciler {
	stats := metrics.New()
	client := cloudstack.NewClient(invoker, log, stats)
	state := cloudstack.NewStateReader(client, stats)

	return &Reconciler{
		client:   client,
		resolver: cloudstack.NewResolver(client, stats),
		state:    state,
		mutator:  cloudstack.NewMutator(client, state, log, stats),
		log:      log,
		stats:    stats,
	}
}

// Stats returns the call counters accumulated by this Reconciler's run
// so far.
func (r *Reconciler) Stats() *metrics.Stats {
	return r.stats
}

// vmRole binds a display label and desired VM name to a resolved VM ID
// during a single Provision pass.
type vmRole struct {
	label string
	name  string
	id    string
	isWeb bool
}

// Provision drives identity's topology, as described by desired, to
// convergence and returns the resulting wiring map. Every phase below
// corresponds 1:1 to a numbered step in the reconciler design: resolve,
// network, keypair, VMs, excess workers, IP wiring, firewall, data
// disks, snapshot policies, internal IPs, output assembly.
func (r *Reconciler) Provision(ctx context.Context, desired *spec.DesiredSpec, identity spec.ProjectIdentity, publicKey, webUserdata, dbUserdata string) (*spec.ProvisionOutput, error) {
	catalog, err := r.resolveCatalog(ctx, desired)
	if err != nil {
		return nil, err
	}

	netID, err := r.mutator.EnsureNetwork(ctx, identity.NetworkName(), catalog.NetworkOfferingID, catalog.ZoneID)
	if err != nil {
		return nil, fmt.Errorf("ensuring network: %w", err)
	}

	if err := r.mutator.EnsureKeypair(ctx, identity.KeypairName(), publicKey); err != nil {
		return nil, fmt.Errorf("ensuring keypair: %w", err)
	}

	roles, err := r.deployVMs(ctx, desired, identity, catalog, netID, webUserdata, dbUserdata)
	if err != nil {
		return nil, err
	}

	if err := r.removeExcessWorkers(ctx, desired, identity, netID); err != nil {
		return nil, err
	}

	ips, err := r.wireIPs(ctx, roles, netID)
	if err != nil {
		return nil, err
	}

	for _, role := range roles {
		if err := r.mutator.EnsureFirewallRules(ctx, ips[role.id].ID, role.isWeb); err != nil {
			return nil, fmt.Errorf("ensuring firewall rules for %s: %w", role.label, err)
		}
	}

	webVM := roles[0]

	blobVolID, err := r.mutator.CreateOrResizeDisk(ctx, identity.BlobDiskName(), catalog.DiskOfferingID, catalog.ZoneID, desired.BlobDiskSizeGB, webVM.id, identity.NetworkName())
	if err != nil {
		return nil, fmt.Errorf("ensuring blob disk: %w", err)
	}

	if err := r.mutator.CreateSnapshotPolicy(ctx, blobVolID, identity.NetworkName(), catalog.AllZoneIDs); err != nil {
		return nil, fmt.Errorf("ensuring blob disk snapshot policy: %w", err)
	}

	out := &spec.ProvisionOutput{
		NetworkName:  identity.NetworkName(),
		NetworkID:    netID,
		KeypairName:  identity.KeypairName(),
		WebVMID:      webVM.id,
		WebIP:        ips[webVM.id].Address,
		WebIPID:      ips[webVM.id].ID,
		BlobVolumeID: blobVolID,
	}

	var dbVolID string

	if desired.DBEnabled {
		dbVM := roles[len(roles)-1]

		dbVolID, err = r.mutator.CreateOrResizeDisk(ctx, identity.DBDiskName(), catalog.DiskOfferingID, catalog.ZoneID, desired.DBDiskSizeGB, dbVM.id, identity.NetworkName())
		if err != nil {
			return nil, fmt.Errorf("ensuring db disk: %w", err)
		}

		if err := r.mutator.CreateSnapshotPolicy(ctx, dbVolID, identity.NetworkName(), catalog.AllZoneIDs); err != nil {
			return nil, fmt.Errorf("ensuring db disk snapshot policy: %w", err)
		}

		out.DBVMID = dbVM.id
		out.DBIP = ips[dbVM.id].Address
		out.DBIPID = ips[dbVM.id].ID
		out.DBVolumeID = dbVolID
	}

	if err := r.fillInternalIPs(ctx, desired, roles, out); err != nil {
		return nil, err
	}

	if desired.WorkersEnabled {
		for _, role := range roles[1 : 1+desired.WorkersReplicas] {
			out.WorkerVMIDs = append(out.WorkerVMIDs, role.id)
			out.WorkerIPs = append(out.WorkerIPs, ips[role.id].Address)
		}
	}

	return out, nil
}

func (r *Reconciler) resolveCatalog(ctx context.Context, desired *spec.DesiredSpec) (*spec.CatalogIDs, error) {
	zoneID, err := r.resolver.Zone(ctx, desired.Zone)
	if err != nil {
		return nil, fmt.Errorf("resolving zone: %w", err)
	}

	allZoneIDs, err := r.resolver.AllZoneIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving zone list: %w", err)
	}

	netOfferingID, err := r.resolver.NetworkOffering(ctx, constants.NetworkOfferingName)
	if err != nil {
		return nil, fmt.Errorf("resolving network offering: %w", err)
	}

	diskOfferingID, err := r.resolver.DiskOffering(ctx, constants.DiskOfferingName)
	if err != nil {
		return nil, fmt.Errorf("resolving disk offering: %w", err)
	}

	templateID, err := r.resolver.Template(ctx, zoneID)
	if err != nil {
		return nil, fmt.Errorf("resolving template: %w", err)
	}

	webOfferingID, err := r.resolver.ServiceOffering(ctx, string(desired.WebPlan))
	if err != nil {
		return nil, fmt.Errorf("resolving web service offering: %w", err)
	}

	catalog := &spec.CatalogIDs{
		ZoneID:            zoneID,
		AllZoneIDs:        allZoneIDs,
		NetworkOfferingID: netOfferingID,
		DiskOfferingID:    diskOfferingID,
		TemplateID:        templateID,
		WebOfferingID:     webOfferingID,
	}

	if desired.WorkersEnabled {
		catalog.WorkersOfferingID, err = r.resolver.ServiceOffering(ctx, string(desired.WorkersPlan))
		if err != nil {
			return nil, fmt.Errorf("resolving workers service offering: %w", err)
		}
	}

	if desired.DBEnabled {
		catalog.DBOfferingID, err = r.resolver.ServiceOffering(ctx, string(desired.DBPlan))
		if err != nil {
			return nil, fmt.Errorf("resolving db service offering: %w", err)
		}
	}

	return catalog, nil
}

// deployVMs deploys (or in-place-scales) the web VM, every worker, and
// the db VM, in that order, and returns the resolved roles in the same
// order: index 0 is always web, the next desired.WorkersReplicas are
// workers, and the last is db when enabled.
func (r *Reconciler) deployVMs(ctx context.Context, desired *spec.DesiredSpec, identity spec.ProjectIdentity, catalog *spec.CatalogIDs, netID, webUserdata, dbUserdata string) ([]vmRole, error) {
	webID, err := r.mutator.DeployOrScaleVM(ctx, identity.WebVMName(), catalog.WebOfferingID, catalog.TemplateID, catalog.ZoneID, netID, identity.KeypairName(), webUserdata)
	if err != nil {
		return nil, fmt.Errorf("deploying web VM: %w", err)
	}

	roles := []vmRole{{label: "web", name: identity.WebVMName(), id: webID, isWeb: true}}

	if desired.WorkersEnabled {
		for i := 1; i <= desired.WorkersReplicas; i++ {
			name := identity.WorkerVMName(i)

			id, err := r.mutator.DeployOrScaleVM(ctx, name, catalog.WorkersOfferingID, catalog.TemplateID, catalog.ZoneID, netID, identity.KeypairName(), "")
			if err != nil {
				return nil, fmt.Errorf("deploying %s: %w", name, err)
			}

			roles = append(roles, vmRole{label: "worker " + strconv.Itoa(i), name: name, id: id})
		}
	}

	if desired.DBEnabled {
		id, err := r.mutator.DeployOrScaleVM(ctx, identity.DBVMName(), catalog.DBOfferingID, catalog.TemplateID, catalog.ZoneID, netID, identity.KeypairName(), dbUserdata)
		if err != nil {
			return nil, fmt.Errorf("deploying db VM: %w", err)
		}

		roles = append(roles, vmRole{label: "db", name: identity.DBVMName(), id: id})
	}

	return roles, nil
}

// removeExcessWorkers destroys worker-N+1, worker-N+2, ... for as long
// as they exist, where N is the currently desired replica count.
func (r *Reconciler) removeExcessWorkers(ctx context.Context, desired *spec.DesiredSpec, identity spec.ProjectIdentity, netID string) error {
	desiredWorkers := 0
	if desired.WorkersEnabled {
		desiredWorkers = desired.WorkersReplicas
	}

	for i := desiredWorkers + 1; ; i++ {
		name := identity.WorkerVMName(i)

		vm := r.state.FindVM(ctx, name)
		if vm == nil {
			return nil
		}

		if err := r.mutator.RemoveExcessWorker(ctx, name, vm.ID, netID); err != nil {
			return fmt.Errorf("removing excess worker %s: %w", name, err)
		}
	}
}

// wireIPs assigns a public IP (with static NAT) to every role in roles,
// reusing any already-correct assignment unchanged, and returns a map
// from VM ID to its assigned IP.
func (r *Reconciler) wireIPs(ctx context.Context, roles []vmRole, netID string) (map[string]*cloudstack.PublicIP, error) {
	vmIDs := make(map[string]bool, len(roles))
	for _, role := range roles {
		vmIDs[role.id] = true
	}

	allIPs := r.state.FindPublicIPsInNetwork(ctx, netID)

	assigned := make(map[string]*cloudstack.PublicIP, len(roles))

	var unassigned []cloudstack.PublicIP

	for _, ip := range allIPs {
		ip := ip
		if ip.VirtualMachineID != "" && vmIDs[ip.VirtualMachineID] {
			assigned[ip.VirtualMachineID] = &ip
		} else {
			unassigned = append(unassigned, ip)
		}
	}

	result := make(map[string]*cloudstack.PublicIP, len(roles))

	for _, role := range roles {
		if ip, ok := assigned[role.id]; ok {
			result[role.id] = ip
			continue
		}

		ip, err := r.mutator.EnsureIPForVM(ctx, netID, role.id, &unassigned)
		if err != nil {
			return nil, fmt.Errorf("assigning IP for %s: %w", role.label, err)
		}

		result[role.id] = ip
	}

	return result, nil
}

func (r *Reconciler) fillInternalIPs(ctx context.Context, desired *spec.DesiredSpec, roles []vmRole, out *spec.ProvisionOutput) error {
	webIP, err := r.state.VMInternalIP(ctx, roles[0].id)
	if err != nil {
		return fmt.Errorf("reading web internal IP: %w", err)
	}

	out.WebInternalIP = webIP

	if desired.WorkersEnabled {
		for _, role := range roles[1 : 1+desired.WorkersReplicas] {
			ip, err := r.state.VMInternalIP(ctx, role.id)
			if err != nil {
				return fmt.Errorf("reading internal IP for %s: %w", role.label, err)
			}

			out.WorkerInternalIP = append(out.WorkerInternalIP, ip)
		}
	}

	if desired.DBEnabled {
		dbRole := roles[len(roles)-1]

		ip, err := r.state.VMInternalIP(ctx, dbRole.id)
		if err != nil {
			return fmt.Errorf("reading db internal IP: %w", err)
		}

		out.DBInternalIP = ip
	}

	return nil
}

// Teardown destroys every resource owned by identity, across every
// zone matching zoneName unless zoneName is empty (in which case every
// zone is considered). It returns ErrZoneRequired only when zoneName
// was given and does not resolve to a known zone; every other failure
// during destruction is logged and absorbed so as much as possible is
// removed.
func (r *Reconciler) Teardown(ctx context.Context, identity spec.ProjectIdentity, zoneName string) error {
	zoneID := ""

	if zoneName != "" {
		var err error

		zoneID, err = r.resolver.Zone(ctx, zoneName)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrZoneRequired, zoneName)
		}
	}

	networks := r.state.FindNetworksByName(ctx, identity.NetworkName(), zoneID)
	if len(networks) == 0 {
		r.log.Info("nothing to tear down", "network", identity.NetworkName())
		return nil
	}

	for _, net := range networks {
		r.teardownNetwork(ctx, identity, net)
	}

	r.writeQuiet(ctx, "delete", "sshkeypair", "name="+identity.KeypairName())

	return nil
}

func (r *Reconciler) teardownNetwork(ctx context.Context, identity spec.ProjectIdentity, net cloudstack.Network) {
	log := r.log.WithValues("network", net.Name, "networkID", net.ID)

	vms := r.state.NetworkVMs(ctx, net.ID)
	volumes := r.state.FindVolumesByTag(ctx, identity.NetworkName())

	for _, vol := range volumes {
		for _, policyID := range r.state.FindSnapshotPolicies(ctx, vol.ID) {
			r.writeQuiet(ctx, "delete", "snapshotpolicy", "id="+policyID)
		}
	}

	for _, vol := range volumes {
		r.writeQuiet(ctx, "detach", "volume", "id="+vol.ID)
		r.sleep(ctx, teardownDetachDeleteGrace)
		r.writeQuiet(ctx, "delete", "volume", "id="+vol.ID)
	}

	ips := r.state.FindPublicIPsInNetwork(ctx, net.ID)

	for _, ip := range ips {
		if ip.StaticNAT {
			r.writeQuiet(ctx, "disable", "staticnat", "ipaddressid="+ip.ID)
		}
	}

	for _, ip := range ips {
		for _, rule := range r.state.FindFirewallRules(ctx, ip.ID) {
			r.writeQuiet(ctx, "delete", "firewallrule", "id="+rule.ID)
		}
	}

	for _, ip := range ips {
		r.writeQuiet(ctx, "disassociate", "ipaddress", "id="+ip.ID)
	}

	for _, vm := range vms {
		r.writeQuiet(ctx, "destroy", "virtualmachine", "id="+vm.ID, "expunge=true")
	}

	r.sleep(ctx, teardownExpungeGrace)
	r.writeQuiet(ctx, "delete", "network", "id="+net.ID)

	log.Info("network torn down")
}

// writeQuiet issues a mutating cmk call and logs, rather than
// propagates, any failure: teardown's goal is convergence toward
// absence, and one resource failing must not halt the rest.
func (r *Reconciler) writeQuiet(ctx context.Context, args ...string) {
	r.stats.RecordWrite()

	if data := r.client.CallQuiet(ctx, args...); data == nil {
		r.log.Info("teardown step failed, continuing", "args", args)
	}
}

func (r *Reconciler) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
