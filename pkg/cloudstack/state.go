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

	"github.com/locaweb/ai-deploy-infra/pkg/constants"
	"github.com/locaweb/ai-deploy-infra/pkg/metrics"
)

// StateReader is a set of pure predicates and finders over current
// provider state. Every method returns nil/empty on absence; none of
// them raise for "not found" — that is a valid, expected outcome here,
// unlike in Resolver where a missing catalog entry is fatal.
type StateReader struct {
	client *Client
	stats  *metrics.Stats
}

// NewStateReader returns a StateReader backed by client.
func NewStateReader(client *Client, stats *metrics.Stats) *StateReader {
	return &StateReader{client: client, stats: stats}
}

func (s *StateReader) callQuiet(ctx context.Context, args ...string) callResult {
	s.stats.RecordRead()
	return s.client.CallQuiet(ctx, args...)
}

func (s *StateReader) call(ctx context.Context, args ...string) (callResult, error) {
	s.stats.RecordRead()
	return s.client.Call(ctx, args...)
}

// Network describes a discovered network.
type Network struct {
	ID   string
	Name string
	Zone string
}

// FindNetwork returns the network named name, optionally scoped to
// zone (empty means any zone), or nil if absent.
func (s *StateReader) FindNetwork(ctx context.Context, name, zone string) (*Network, error) {
	args := []string{"list", "networks", "filter=id,name,zonename"}
	if zone != "" {
		args = append(args, "zoneid="+zone)
	}

	data := s.callQuiet(ctx, args...)
	if data == nil {
		return nil, nil //nolint:nilnil
	}

	for _, n := range asSlice(data["network"]) {
		if asString(n["name"]) == name {
			return &Network{ID: asString(n["id"]), Name: name, Zone: asString(n["zonename"])}, nil
		}
	}

	return nil, nil //nolint:nilnil
}

// FindNetworksByName returns every network named name, optionally
// scoped to zoneID (empty means every zone). Teardown uses this instead
// of FindNetwork because a network name is not necessarily unique
// across zones, and an omitted zone filter tears down every match.
func (s *StateReader) FindNetworksByName(ctx context.Context, name, zoneID string) []Network {
	args := []string{"list", "networks", "filter=id,name,zonename,zoneid"}
	if zoneID != "" {
		args = append(args, "zoneid="+zoneID)
	}

	data := s.callQuiet(ctx, args...)
	if data == nil {
		return nil
	}

	var networks []Network

	for _, n := range asSlice(data["network"]) {
		if asString(n["name"]) == name {
			networks = append(networks, Network{ID: asString(n["id"]), Name: name, Zone: asString(n["zonename"])})
		}
	}

	return networks
}

// VM describes a discovered virtual machine.
type VM struct {
	ID                string
	Name              string
	State             string
	ServiceOfferingID string
}

// FindVM returns the VM named name, or nil if absent.
func (s *StateReader) FindVM(ctx context.Context, name string) *VM {
	data := s.callQuiet(ctx, "list", "virtualmachines", "name="+name, "filter=id,name,state,serviceofferingid")
	if data == nil {
		return nil
	}

	for _, v := range asSlice(data["virtualmachine"]) {
		if asString(v["name"]) == name {
			return &VM{
				ID:                asString(v["id"]),
				Name:              name,
				State:             asString(v["state"]),
				ServiceOfferingID: asString(v["serviceofferingid"]),
			}
		}
	}

	return nil
}

// Volume describes a discovered data volume.
type Volume struct {
	ID               string
	Name             string
	VirtualMachineID string
	SizeBytes        int64
	State            string
}

// FindVolume returns the DATADISK-type volume named name, or nil if
// absent.
func (s *StateReader) FindVolume(ctx context.Context, name string) *Volume {
	data := s.callQuiet(ctx, "list", "volumes", "name="+name, "type=DATADISK",
		"filter=id,name,virtualmachineid,state,size")
	if data == nil {
		return nil
	}

	for _, v := range asSlice(data["volume"]) {
		if asString(v["name"]) == name {
			return &Volume{
				ID:               asString(v["id"]),
				Name:             name,
				VirtualMachineID: asString(v["virtualmachineid"]),
				SizeBytes:        asInt64(v["size"]),
				State:            asString(v["state"]),
			}
		}
	}

	return nil
}

// FindVolumesByTag returns every DATADISK volume tagged with
// constants.DeployIDTag=value. Teardown uses this as the authoritative
// owner set for volumes, per invariant I3.
func (s *StateReader) FindVolumesByTag(ctx context.Context, value string) []Volume {
	data := s.callQuiet(ctx, "list", "volumes", "type=DATADISK",
		"tags[0].key="+constants.DeployIDTag,
		"tags[0].value="+value,
		"filter=id,name,virtualmachineid,state,size")
	if data == nil {
		return nil
	}

	volumes := make([]Volume, 0, len(asSlice(data["volume"])))
	for _, v := range asSlice(data["volume"]) {
		volumes = append(volumes, Volume{
			ID:               asString(v["id"]),
			Name:             asString(v["name"]),
			VirtualMachineID: asString(v["virtualmachineid"]),
			SizeBytes:        asInt64(v["size"]),
			State:            asString(v["state"]),
		})
	}

	return volumes
}

// PublicIP describes a discovered public IP address.
type PublicIP struct {
	ID               string
	Address          string
	SourceNAT        bool
	StaticNAT        bool
	VirtualMachineID string
}

// FindPublicIPsInNetwork returns every non-source-NAT public IP
// associated with netID.
func (s *StateReader) FindPublicIPsInNetwork(ctx context.Context, netID string) []PublicIP {
	data := s.callQuiet(ctx, "list", "publicipaddresses",
		"associatednetworkid="+netID,
		"filter=id,ipaddress,issourcenat,isstaticnat,virtualmachineid")
	if data == nil {
		return nil
	}

	var ips []PublicIP

	for _, ip := range asSlice(data["publicipaddress"]) {
		if asBool(ip["issourcenat"]) {
			continue
		}

		ips = append(ips, PublicIP{
			ID:               asString(ip["id"]),
			Address:          asString(ip["ipaddress"]),
			SourceNAT:        false,
			StaticNAT:        asBool(ip["isstaticnat"]),
			VirtualMachineID: asString(ip["virtualmachineid"]),
		})
	}

	return ips
}

// FindPublicIPForVM returns the non-source-NAT IP currently statically
// NATed to vmID within netID, or nil if none.
func (s *StateReader) FindPublicIPForVM(ctx context.Context, netID, vmID string) *PublicIP {
	for _, ip := range s.FindPublicIPsInNetwork(ctx, netID) {
		if ip.VirtualMachineID == vmID {
			ip := ip
			return &ip
		}
	}

	return nil
}

// FirewallRule describes a discovered firewall rule.
type FirewallRule struct {
	ID        string
	StartPort int64
	EndPort   int64
}

// FindFirewallRules returns every firewall rule attached to ipID.
func (s *StateReader) FindFirewallRules(ctx context.Context, ipID string) []FirewallRule {
	data := s.callQuiet(ctx, "list", "firewallrules", "ipaddressid="+ipID, "filter=id,startport,endport")
	if data == nil {
		return nil
	}

	rules := make([]FirewallRule, 0, len(asSlice(data["firewallrule"])))
	for _, r := range asSlice(data["firewallrule"]) {
		rules = append(rules, FirewallRule{
			ID:        asString(r["id"]),
			StartPort: asInt64(r["startport"]),
			EndPort:   asInt64(r["endport"]),
		})
	}

	return rules
}

// IsStaticNATEnabled reports whether static NAT is currently enabled on
// ipID.
func (s *StateReader) IsStaticNATEnabled(ctx context.Context, ipID string) bool {
	data := s.callQuiet(ctx, "list", "publicipaddresses", "id="+ipID, "filter=id,isstaticnat,virtualmachineid")
	if data == nil {
		return false
	}

	ips := asSlice(data["publicipaddress"])
	if len(ips) == 0 {
		return false
	}

	return asBool(ips[0]["isstaticnat"])
}

// FindKeypair reports whether an SSH key pair named name is registered.
func (s *StateReader) FindKeypair(ctx context.Context, name string) bool {
	data := s.callQuiet(ctx, "list", "sshkeypairs", "name="+name)
	if data == nil {
		return false
	}

	return len(asSlice(data["sshkeypair"])) > 0
}

// FindSnapshotPolicies returns every snapshot policy attached to volID.
func (s *StateReader) FindSnapshotPolicies(ctx context.Context, volID string) []string {
	data := s.callQuiet(ctx, "list", "snapshotpolicies", "volumeid="+volID)
	if data == nil {
		return nil
	}

	ids := make([]string, 0, len(asSlice(data["snapshotpolicy"])))
	for _, p := range asSlice(data["snapshotpolicy"]) {
		ids = append(ids, asString(p["id"]))
	}

	return ids
}

// VMInternalIP returns a VM's primary NIC IP address.
func (s *StateReader) VMInternalIP(ctx context.Context, vmID string) (string, error) {
	data, err := s.call(ctx, "list", "virtualmachines", "id="+vmID, "filter=id,nic")
	if err != nil {
		return "", err
	}

	vms := asSlice(data["virtualmachine"])
	if len(vms) == 0 {
		return "", ErrNotFound
	}

	nics := asSlice(vms[0]["nic"])
	if len(nics) == 0 {
		return "", ErrNotFound
	}

	return asString(nics[0]["ipaddress"]), nil
}

// NetworkVMs returns every VM attached to netID, used by teardown to
// enumerate the VMs it must destroy.
func (s *StateReader) NetworkVMs(ctx context.Context, netID string) []VM {
	data := s.callQuiet(ctx, "list", "virtualmachines", "networkid="+netID, "filter=id,name,state")
	if data == nil {
		return nil
	}

	vms := make([]VM, 0, len(asSlice(data["virtualmachine"])))
	for _, v := range asSlice(data["virtualmachine"]) {
		vms = append(vms, VM{ID: asString(v["id"]), Name: asString(v["name"]), State: asString(v["state"])})
	}

	return vms
}
