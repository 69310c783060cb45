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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// FakeInvoker is an in-memory CloudStack account standing in for a real
// `cmk` binary: it implements Invoker by interpreting the exact argv
// shapes pkg/cloudstack's Resolver, StateReader and Mutator emit and
// answering the way the real provider would, so pkg/reconcile's tests
// can exercise the full P1-P8 property suite without a real account.
// It favors a small hand-written fake over a generated mock, the same
// seam-over-mock idiom the teacher applies to its own Provisioner
// interface.
type FakeInvoker struct {
	mu sync.Mutex

	seq int

	zones             []fakeZone
	networkOfferings  []fakeNamed
	serviceOfferings  []fakeNamed
	diskOfferings     []fakeNamed
	templates         []fakeTemplate
	networks          map[string]*fakeNetwork
	vms               map[string]*fakeVM
	volumes           map[string]*fakeVolume
	ips               map[string]*fakeIP
	firewallRules     map[string]*fakeFirewallRule
	snapshotPolicies  map[string]*fakeSnapshotPolicy
	keypairs          map[string]string // name -> public key
	rejectLiveScaleOf map[string]bool   // vmID -> live scale attempts fail until it is scaled while stopped

	// calls records every argv this fake has seen, in order, for tests
	// that want to assert on call shape beyond Stats' read/write counts.
	calls [][]string
}

type fakeZone struct {
	id   string
	name string
}

type fakeNamed struct {
	id   string
	name string
}

type fakeTemplate struct {
	id      string
	name    string
	zoneID  string
	created string
}

type fakeNetwork struct {
	id         string
	name       string
	zoneID     string
	offeringID string
}

type fakeVM struct {
	id                string
	name              string
	state             string
	serviceOfferingID string
	zoneID            string
	networkID         string
	internalIP        string
}

type fakeVolume struct {
	id             string
	name           string
	diskOfferingID string
	zoneID         string
	sizeGB         int64
	vmID           string
	tags           map[string]string
}

type fakeIP struct {
	id        string
	address   string
	networkID string
	vmID      string
	sourceNAT bool
	staticNAT bool
}

type fakeFirewallRule struct {
	id        string
	ipID      string
	startPort int64
	endPort   int64
}

type fakeSnapshotPolicy struct {
	id       string
	volumeID string
	tags     map[string]string
}

// NewFakeInvoker returns a FakeInvoker seeded with a single zone "ZP01",
// a second zone "ZP02" (for snapshot replication fan-out), the fixed
// "Default Guest Network"/"data.disk.general" offerings, one matching
// Ubuntu 24.x template in each zone, and a service offering for every
// spec.Plan.
func NewFakeInvoker() *FakeInvoker {
	f := &FakeInvoker{
		networks:          map[string]*fakeNetwork{},
		vms:               map[string]*fakeVM{},
		volumes:           map[string]*fakeVolume{},
		ips:               map[string]*fakeIP{},
		firewallRules:     map[string]*fakeFirewallRule{},
		snapshotPolicies:  map[string]*fakeSnapshotPolicy{},
		keypairs:          map[string]string{},
		rejectLiveScaleOf: map[string]bool{},
	}

	f.zones = []fakeZone{
		{id: "zone-zp01", name: "ZP01"},
		{id: "zone-zp02", name: "ZP02"},
	}

	f.networkOfferings = []fakeNamed{{id: "no-default", name: "Default Guest Network"}}
	f.diskOfferings = []fakeNamed{{id: "do-general", name: "data.disk.general"}}

	for _, plan := range []string{"micro", "small", "medium", "large", "xlarge", "2xlarge", "4xlarge"} {
		f.serviceOfferings = append(f.serviceOfferings, fakeNamed{id: "so-" + plan, name: plan})
	}

	f.templates = []fakeTemplate{
		{id: "tmpl-2404", name: "Ubuntu 24.04 LTS", zoneID: "zone-zp01", created: "2024-06-01T00:00:00Z"},
		{id: "tmpl-2404-2", name: "Ubuntu 24.04 LTS", zoneID: "zone-zp02", created: "2024-06-01T00:00:00Z"},
	}

	return f
}

// RejectNextLiveScale makes every "scale virtualmachine" attempt against
// vmID fail while the VM is Running, including each of Client.Call's
// retries, forcing Mutator.ScaleVM down the stop/scale/start fallback
// path. It clears once a scale succeeds while the VM is stopped,
// matching the "live scale is refused, offline scale then succeeds"
// scenario from spec.md §4.4.
func (f *FakeInvoker) RejectNextLiveScale(vmID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rejectLiveScaleOf[vmID] = true
}

// Calls returns every argv this fake has received, in order.
func (f *FakeInvoker) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([][]string, len(f.calls))
	copy(out, f.calls)

	return out
}

func (f *FakeInvoker) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func ok(body map[string]any) (string, string, int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err.Error(), 1, nil
	}

	return string(raw), "", 0, nil
}

func fail(msg string) (string, string, int, error) {
	return "", msg, 1, nil
}

func kv(args []string) map[string]string {
	m := make(map[string]string, len(args))

	for _, a := range args {
		parts := strings.SplitN(a, "=", 2)
		if len(parts) == 2 {
			m[parts[0]] = parts[1]
		}
	}

	return m
}

// Invoke implements Invoker by interpreting a single cmk-shaped argv
// against the in-memory account.
func (f *FakeInvoker) Invoke(_ context.Context, args ...string) (string, string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string(nil), args...))

	if len(args) < 2 {
		return fail("malformed invocation")
	}

	verb, resource := args[0], args[1]
	params := kv(args[2:])

	switch verb {
	case "list":
		return f.list(resource, params)
	case "create":
		return f.create(resource, params)
	case "deploy":
		return f.deploy(resource, params)
	case "scale":
		return f.scale(resource, params)
	case "stop":
		return f.stop(resource, params)
	case "start":
		return f.start(resource, params)
	case "attach":
		return f.attach(resource, params)
	case "detach":
		return f.detach(resource, params)
	case "resize":
		return f.resize(resource, params)
	case "associate":
		return f.associate(resource, params)
	case "disassociate":
		return f.disassociate(resource, params)
	case "enable":
		return f.enable(resource, params)
	case "disable":
		return f.disable(resource, params)
	case "destroy":
		return f.destroy(resource, params)
	case "delete":
		return f.delete(resource, params)
	case "register":
		return f.register(resource, params)
	default:
		return fail("unsupported verb " + verb)
	}
}

func (f *FakeInvoker) list(resource string, p map[string]string) (string, string, int, error) {
	switch resource {
	case "zones":
		var zones []map[string]any

		for _, z := range f.zones {
			if name, ok := p["name"]; ok && name != z.name {
				continue
			}

			zones = append(zones, map[string]any{"id": z.id, "name": z.name})
		}

		return ok(map[string]any{"zone": zones})

	case "networkofferings":
		return ok(map[string]any{"networkoffering": namedToJSON(f.networkOfferings)})

	case "serviceofferings":
		return ok(map[string]any{"serviceoffering": namedToJSON(f.serviceOfferings)})

	case "diskofferings":
		return ok(map[string]any{"diskoffering": namedToJSON(f.diskOfferings)})

	case "templates":
		var templates []map[string]any

		for _, t := range f.templates {
			if zoneID, ok := p["zoneid"]; ok && zoneID != t.zoneID {
				continue
			}

			templates = append(templates, map[string]any{"id": t.id, "name": t.name, "created": t.created})
		}

		return ok(map[string]any{"template": templates})

	case "networks":
		var networks []map[string]any

		for _, n := range f.networks {
			if zoneID, ok := p["zoneid"]; ok && zoneID != "" && zoneID != n.zoneID {
				continue
			}

			networks = append(networks, map[string]any{"id": n.id, "name": n.name, "zonename": n.zoneID, "zoneid": n.zoneID})
		}

		return ok(map[string]any{"network": networks})

	case "virtualmachines":
		var vms []map[string]any

		for _, vm := range f.vms {
			if name, ok := p["name"]; ok && name != vm.name {
				continue
			}

			if id, ok := p["id"]; ok && id != vm.id {
				continue
			}

			if netID, ok := p["networkid"]; ok && netID != vm.networkID {
				continue
			}

			vms = append(vms, map[string]any{
				"id": vm.id, "name": vm.name, "state": vm.state,
				"serviceofferingid": vm.serviceOfferingID,
				"nic":               []map[string]any{{"ipaddress": vm.internalIP}},
			})
		}

		return ok(map[string]any{"virtualmachine": vms})

	case "volumes":
		var volumes []map[string]any

		tagKey, wantTag := p["tags[0].key"]
		tagVal := p["tags[0].value"]

		for _, v := range f.volumes {
			if name, ok := p["name"]; ok && name != v.name {
				continue
			}

			if wantTag && v.tags[tagKey] != tagVal {
				continue
			}

			volumes = append(volumes, map[string]any{
				"id": v.id, "name": v.name, "virtualmachineid": v.vmID,
				"size": v.sizeGB * (1 << 30), "state": "Ready",
			})
		}

		return ok(map[string]any{"volume": volumes})

	case "publicipaddresses":
		var ips []map[string]any

		for _, ip := range f.ips {
			if netID, ok := p["associatednetworkid"]; ok && netID != ip.networkID {
				continue
			}

			if id, ok := p["id"]; ok && id != ip.id {
				continue
			}

			ips = append(ips, map[string]any{
				"id": ip.id, "ipaddress": ip.address,
				"issourcenat": ip.sourceNAT, "isstaticnat": ip.staticNAT,
				"virtualmachineid": ip.vmID,
			})
		}

		return ok(map[string]any{"publicipaddress": ips})

	case "firewallrules":
		var rules []map[string]any

		for _, r := range f.firewallRules {
			if ipID, ok := p["ipaddressid"]; ok && ipID != r.ipID {
				continue
			}

			rules = append(rules, map[string]any{"id": r.id, "startport": r.startPort, "endport": r.endPort})
		}

		return ok(map[string]any{"firewallrule": rules})

	case "sshkeypairs":
		var pairs []map[string]any

		if name, ok := p["name"]; ok {
			if _, found := f.keypairs[name]; found {
				pairs = append(pairs, map[string]any{"name": name})
			}
		}

		return ok(map[string]any{"sshkeypair": pairs})

	case "snapshotpolicies":
		var policies []map[string]any

		for _, sp := range f.snapshotPolicies {
			if volID, ok := p["volumeid"]; ok && volID != sp.volumeID {
				continue
			}

			policies = append(policies, map[string]any{"id": sp.id})
		}

		return ok(map[string]any{"snapshotpolicy": policies})

	default:
		return fail("unsupported list resource " + resource)
	}
}

func namedToJSON(named []fakeNamed) []map[string]any {
	out := make([]map[string]any, len(named))
	for i, n := range named {
		out[i] = map[string]any{"id": n.id, "name": n.name}
	}

	return out
}

func (f *FakeInvoker) create(resource string, p map[string]string) (string, string, int, error) {
	switch resource {
	case "network":
		n := &fakeNetwork{
			id:         f.nextID("net"),
			name:       p["name"],
			zoneID:     p["zoneid"],
			offeringID: p["networkofferingid"],
		}
		f.networks[n.id] = n

		return ok(map[string]any{"network": map[string]any{"id": n.id}})

	case "volume":
		size, _ := strconv.ParseInt(p["size"], 10, 64)
		v := &fakeVolume{
			id:             f.nextID("vol"),
			name:           p["name"],
			diskOfferingID: p["diskofferingid"],
			zoneID:         p["zoneid"],
			sizeGB:         size,
			tags:           map[string]string{},
		}
		f.volumes[v.id] = v

		return ok(map[string]any{"volume": map[string]any{"id": v.id}})

	case "tags":
		for _, id := range strings.Split(p["resourceids"], ",") {
			if v, found := f.volumes[id]; found {
				v.tags[p["tags[0].key"]] = p["tags[0].value"]
			}
		}

		return ok(map[string]any{})

	case "firewallrule":
		start, _ := strconv.ParseInt(p["startport"], 10, 64)
		end, _ := strconv.ParseInt(p["endport"], 10, 64)
		r := &fakeFirewallRule{id: f.nextID("fw"), ipID: p["ipaddressid"], startPort: start, endPort: end}
		f.firewallRules[r.id] = r

		return ok(map[string]any{"firewallrule": map[string]any{"id": r.id}})

	case "snapshotpolicy":
		sp := &fakeSnapshotPolicy{
			id:       f.nextID("sp"),
			volumeID: p["volumeid"],
			tags:     map[string]string{p["tags[0].key"]: p["tags[0].value"]},
		}
		f.snapshotPolicies[sp.id] = sp

		return ok(map[string]any{"snapshotpolicy": map[string]any{"id": sp.id}})

	default:
		return fail("unsupported create resource " + resource)
	}
}

func (f *FakeInvoker) deploy(resource string, p map[string]string) (string, string, int, error) {
	if resource != "virtualmachine" {
		return fail("unsupported deploy resource " + resource)
	}

	vm := &fakeVM{
		id:                f.nextID("vm"),
		name:              p["name"],
		state:             "Running",
		serviceOfferingID: p["serviceofferingid"],
		zoneID:            p["zoneid"],
		networkID:         p["networkids"],
		internalIP:        f.nextID("10.0.0"),
	}
	f.vms[vm.id] = vm

	return ok(map[string]any{"virtualmachine": map[string]any{"id": vm.id}})
}

func (f *FakeInvoker) scale(resource string, p map[string]string) (string, string, int, error) {
	if resource != "virtualmachine" {
		return fail("unsupported scale resource " + resource)
	}

	vm, found := f.vms[p["id"]]
	if !found {
		return fail("no such vm")
	}

	if vm.state == "Running" && f.rejectLiveScaleOf[vm.id] {
		return fail("live scale rejected by provider")
	}

	delete(f.rejectLiveScaleOf, vm.id)

	vm.serviceOfferingID = p["serviceofferingid"]

	return ok(map[string]any{"virtualmachine": map[string]any{"id": vm.id}})
}

func (f *FakeInvoker) stop(resource string, p map[string]string) (string, string, int, error) {
	if resource != "virtualmachine" {
		return fail("unsupported stop resource " + resource)
	}

	vm, found := f.vms[p["id"]]
	if !found {
		return fail("no such vm")
	}

	vm.state = "Stopped"

	return ok(map[string]any{"virtualmachine": map[string]any{"id": vm.id}})
}

func (f *FakeInvoker) start(resource string, p map[string]string) (string, string, int, error) {
	if resource != "virtualmachine" {
		return fail("unsupported start resource " + resource)
	}

	vm, found := f.vms[p["id"]]
	if !found {
		return fail("no such vm")
	}

	vm.state = "Running"

	return ok(map[string]any{"virtualmachine": map[string]any{"id": vm.id}})
}

func (f *FakeInvoker) attach(resource string, p map[string]string) (string, string, int, error) {
	if resource != "volume" {
		return fail("unsupported attach resource " + resource)
	}

	v, found := f.volumes[p["id"]]
	if !found {
		return fail("no such volume")
	}

	v.vmID = p["virtualmachineid"]

	return ok(map[string]any{"volume": map[string]any{"id": v.id}})
}

func (f *FakeInvoker) detach(resource string, p map[string]string) (string, string, int, error) {
	if resource != "volume" {
		return fail("unsupported detach resource " + resource)
	}

	if v, found := f.volumes[p["id"]]; found {
		v.vmID = ""
	}

	return ok(map[string]any{})
}

func (f *FakeInvoker) resize(resource string, p map[string]string) (string, string, int, error) {
	if resource != "volume" {
		return fail("unsupported resize resource " + resource)
	}

	v, found := f.volumes[p["id"]]
	if !found {
		return fail("no such volume")
	}

	size, _ := strconv.ParseInt(p["size"], 10, 64)
	v.sizeGB = size

	return ok(map[string]any{"volume": map[string]any{"id": v.id}})
}

func (f *FakeInvoker) associate(resource string, p map[string]string) (string, string, int, error) {
	if resource != "ipaddress" {
		return fail("unsupported associate resource " + resource)
	}

	ip := &fakeIP{
		id:        f.nextID("ip"),
		address:   fmt.Sprintf("203.0.113.%d", f.seq%254+1),
		networkID: p["networkid"],
	}
	f.ips[ip.id] = ip

	return ok(map[string]any{"ipaddress": map[string]any{"id": ip.id, "ipaddress": ip.address}})
}

func (f *FakeInvoker) disassociate(resource string, p map[string]string) (string, string, int, error) {
	if resource != "ipaddress" {
		return fail("unsupported disassociate resource " + resource)
	}

	delete(f.ips, p["id"])

	return ok(map[string]any{})
}

func (f *FakeInvoker) enable(resource string, p map[string]string) (string, string, int, error) {
	if resource != "staticnat" {
		return fail("unsupported enable resource " + resource)
	}

	ip, found := f.ips[p["ipaddressid"]]
	if !found {
		return fail("no such ip")
	}

	ip.staticNAT = true
	ip.vmID = p["virtualmachineid"]

	return ok(map[string]any{})
}

func (f *FakeInvoker) disable(resource string, p map[string]string) (string, string, int, error) {
	if resource != "staticnat" {
		return fail("unsupported disable resource " + resource)
	}

	if ip, found := f.ips[p["ipaddressid"]]; found {
		ip.staticNAT = false
		ip.vmID = ""
	}

	return ok(map[string]any{})
}

func (f *FakeInvoker) destroy(resource string, p map[string]string) (string, string, int, error) {
	if resource != "virtualmachine" {
		return fail("unsupported destroy resource " + resource)
	}

	delete(f.vms, p["id"])

	return ok(map[string]any{})
}

func (f *FakeInvoker) delete(resource string, p map[string]string) (string, string, int, error) {
	switch resource {
	case "firewallrule":
		delete(f.firewallRules, p["id"])
	case "snapshotpolicy":
		delete(f.snapshotPolicies, p["id"])
	case "volume":
		delete(f.volumes, p["id"])
	case "network":
		delete(f.networks, p["id"])
	case "sshkeypair":
		delete(f.keypairs, p["name"])
	default:
		return fail("unsupported delete resource " + resource)
	}

	return ok(map[string]any{})
}

func (f *FakeInvoker) register(resource string, p map[string]string) (string, string, int, error) {
	if resource != "sshkeypair" {
		return fail("unsupported register resource " + resource)
	}

	f.keypairs[p["name"]] = p["publickey"]

	return ok(map[string]any{"sshkeypair": map[string]any{"name": p["name"]}})
}
