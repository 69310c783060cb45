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

package cmd

import (
	"github.com/locaweb/ai-deploy-infra/pkg/cmd/config"
	"github.com/locaweb/ai-deploy-infra/pkg/cmd/provision"
	"github.com/locaweb/ai-deploy-infra/pkg/cmd/teardown"
	"github.com/locaweb/ai-deploy-infra/pkg/cmd/util"
	"github.com/locaweb/ai-deploy-infra/pkg/constants"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals
var rootLongDesc = util.TemplatedExample(`
	{{.Application}} provisions, reconciles, and tears down a fixed
	web/worker/database VM topology on a CloudStack-compatible account.

	Given a desired spec (zone, plan sizes, worker replica count,
	database toggle, disk sizes) and a stable project identity (a
	repository name plus a unique id), "provision" converges the target
	account toward that state using the "cmk" CLI as its sole
	control-plane transport. "teardown" reverses it, best-effort, given
	only the network name it produced.`)

// newRootCommand returns the root command and all its subordinates.
func newRootCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   constants.Application,
		Short: "CloudStack fixed-topology provisioning.",
		Long:  rootLongDesc,
	}

	cfg.AddFlags(cmd.PersistentFlags())

	commands := []*cobra.Command{
		newVersionCommand(),
		provision.NewCommand(cfg),
		teardown.NewCommand(cfg),
	}

	cmd.AddCommand(commands...)

	return cmd
}

// Generate creates a hierarchy of cobra commands for the application.
// It can also be used to walk the structure and generate HTML
// documentation for example.
func Generate() *cobra.Command {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	return newRootCommand(cfg)
}
