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

package constants

import (
	"fmt"
	"os"
	"path"
)

var (
	// Application is the application name.
	//nolint:gochecknoglobals
	Application = path.Base(os.Args[0])

	// Version is the application version set via the Makefile.
	//nolint:gochecknoglobals
	Version string

	// Revision is the git revision set via the Makefile.
	//nolint:gochecknoglobals
	Revision string
)

// VersionString returns a canonical version string.
func VersionString() string {
	return fmt.Sprintf("%s/%s (revision/%s)", Application, Version, Revision)
}

const (
	// DeployIDTag is the tag key applied to every owned data volume and
	// snapshot policy, whose value is the owning project's network name.
	//
	// This is wire-exact: some provisioning paths this tool descends from
	// used "locaweb-cloud-deploy-id" instead. Only this key is ever
	// written or read here.
	DeployIDTag = "locaweb-ai-deploy-id"

	// NetworkOfferingName is the fixed CloudStack network offering used
	// for every project network.
	NetworkOfferingName = "Default Guest Network"

	// DiskOfferingName is the fixed CloudStack disk offering used for
	// every data volume.
	DiskOfferingName = "data.disk.general"

	// TemplateKeyword is the keyword passed to the featured-template list
	// query when discovering the VM template.
	TemplateKeyword = "Ubuntu"

	// TemplateRegex is the pattern the discovered template name must match.
	TemplateRegex = `^Ubuntu.*24.*$`

	// SnapshotSchedule is the daily snapshot policy schedule time.
	SnapshotSchedule = "00:03"

	// SnapshotMaxSnaps is the number of daily snapshots retained.
	SnapshotMaxSnaps = 3

	// SnapshotTimezone is the timezone used for snapshot scheduling.
	SnapshotTimezone = "America/Sao_Paulo"
)
