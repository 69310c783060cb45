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

// Package spec defines the data model the reconciler converges towards:
// the caller-supplied DesiredSpec and ProjectIdentity, the CatalogIDs the
// resolver fills in, and the ProvisionOutput wiring map the reconciler
// produces.
package spec

import "fmt"

// DesiredSpec is the caller-supplied, immutable-per-run description of
// the topology to converge towards. It is unmarshalled directly from
// the JSON config file and validated with go-playground/validator
// before the reconciler ever sees it.
type DesiredSpec struct {
	// Zone is the CloudStack zone name to deploy into.
	Zone string `json:"zone" validate:"required"`

	// WebPlan is the service offering tag for the (always present) web VM.
	WebPlan Plan `json:"web_plan" validate:"required,plan"`

	// BlobDiskSizeGB is the size, in GiB, of the data volume attached to
	// the web VM.
	BlobDiskSizeGB int `json:"blob_disk_size_gb" validate:"required,gte=1"`

	// WorkersEnabled toggles the stateless worker fleet.
	WorkersEnabled bool `json:"workers_enabled"`

	// WorkersReplicas is the desired worker VM count. Required, and must
	// be >= 1, when WorkersEnabled is true: spec.md's open question on
	// workers_enabled=true with workers_replicas=0 is resolved here by
	// rejecting the combination outright.
	WorkersReplicas int `json:"workers_replicas" validate:"required_if=WorkersEnabled true,omitempty,gte=1"`

	// WorkersPlan is the service offering tag for every worker VM.
	WorkersPlan Plan `json:"workers_plan" validate:"required_if=WorkersEnabled true,omitempty,plan"`

	// DBEnabled toggles the single database VM.
	DBEnabled bool `json:"db_enabled"`

	// DBPlan is the service offering tag for the database VM.
	DBPlan Plan `json:"db_plan" validate:"required_if=DBEnabled true,omitempty,plan"`

	// DBDiskSizeGB is the size, in GiB, of the database VM's data volume.
	DBDiskSizeGB int `json:"db_disk_size_gb" validate:"required_if=DBEnabled true,omitempty,gte=1"`
}

// ProjectIdentity is the stable (repoName, uniqueId, envName?) tuple that
// deterministically names every resource this project owns.
type ProjectIdentity struct {
	// RepoName is the human name of the repository/application.
	RepoName string

	// UniqueID disambiguates multiple deployments of the same repo name.
	UniqueID string

	// EnvName is an optional environment suffix (e.g. "staging"). When
	// empty it contributes nothing to NetworkName.
	EnvName string

	// networkName, when set, overrides the derivation below entirely.
	// Teardown's CLI surface (spec.md §6) takes a pre-computed
	// --network-name rather than (repoName, uniqueId, envName?), so it
	// builds its ProjectIdentity with IdentityForNetwork instead of
	// populating the three name components.
	networkName string
}

// IdentityForNetwork returns a ProjectIdentity whose NetworkName() is
// exactly name, for callers (teardown) that start from an
// already-computed network name rather than its components.
func IdentityForNetwork(name string) ProjectIdentity {
	return ProjectIdentity{networkName: name}
}

// NetworkName is the deterministic root from which every owned resource
// name is derived: "<repoName>-<uniqueId>" or, when EnvName is set,
// "<repoName>-<uniqueId>-<envName>" - or, for an identity built with
// IdentityForNetwork, that literal name.
func (p ProjectIdentity) NetworkName() string {
	if p.networkName != "" {
		return p.networkName
	}

	name := fmt.Sprintf("%s-%s", p.RepoName, p.UniqueID)
	if p.EnvName != "" {
		name = fmt.Sprintf("%s-%s", name, p.EnvName)
	}

	return name
}

// KeypairName is the name under which the project's SSH key pair is
// registered.
func (p ProjectIdentity) KeypairName() string {
	return p.NetworkName() + "-key"
}

// WebVMName is the name of the (always present) web VM.
func (p ProjectIdentity) WebVMName() string {
	return p.NetworkName() + "-web"
}

// WorkerVMName is the name of worker VM i, 1-indexed, per invariant I5.
func (p ProjectIdentity) WorkerVMName(i int) string {
	return fmt.Sprintf("%s-worker-%d", p.NetworkName(), i)
}

// DBVMName is the name of the (optional) database VM.
func (p ProjectIdentity) DBVMName() string {
	return p.NetworkName() + "-db"
}

// BlobDiskName is the name of the data volume attached to the web VM.
func (p ProjectIdentity) BlobDiskName() string {
	return p.NetworkName() + "-blob"
}

// DBDiskName is the name of the data volume attached to the database VM.
func (p ProjectIdentity) DBDiskName() string {
	return p.NetworkName() + "-dbdata"
}

// CatalogIDs holds every opaque provider ID the resolver produces for a
// single run. Caching across runs is intentionally not supported: a new
// CatalogIDs is resolved fresh every invocation so catalog changes (a
// retired service offering, a new template) are always picked up.
type CatalogIDs struct {
	// ZoneID is the target zone's opaque ID.
	ZoneID string

	// AllZoneIDs lists every zone known to the account, used for
	// snapshot policy replication.
	AllZoneIDs []string

	// NetworkOfferingID is the "Default Guest Network" offering ID.
	NetworkOfferingID string

	// DiskOfferingID is the "data.disk.general" offering ID.
	DiskOfferingID string

	// TemplateID is the newest matching Ubuntu 24.x template ID.
	TemplateID string

	// WebOfferingID is the resolved service offering for WebPlan.
	WebOfferingID string

	// WorkersOfferingID is the resolved service offering for
	// WorkersPlan, empty when workers are disabled.
	WorkersOfferingID string

	// DBOfferingID is the resolved service offering for DBPlan, empty
	// when the database is disabled.
	DBOfferingID string
}

// ProvisionOutput is the wiring map produced by a successful Provision
// run. Fields are present only for roles that exist in the desired
// spec, mirroring the wire contract external Kamal-driven tooling
// consumes.
type ProvisionOutput struct {
	NetworkName string `json:"network_name"`
	NetworkID   string `json:"network_id"`
	KeypairName string `json:"keypair_name"`

	WebVMID       string `json:"web_vm_id"`
	WebIP         string `json:"web_ip"`
	WebIPID       string `json:"web_ip_id"`
	WebInternalIP string `json:"web_internal_ip"`
	BlobVolumeID  string `json:"blob_volume_id"`

	WorkerVMIDs      []string `json:"worker_vm_ids,omitempty"`
	WorkerIPs        []string `json:"worker_ips,omitempty"`
	WorkerInternalIP []string `json:"worker_internal_ips,omitempty"`

	DBVMID       string `json:"db_vm_id,omitempty"`
	DBIP         string `json:"db_ip,omitempty"`
	DBIPID       string `json:"db_ip_id,omitempty"`
	DBInternalIP string `json:"db_internal_ip,omitempty"`
	DBVolumeID   string `json:"db_volume_id,omitempty"`
}
