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

// Package teardown implements the "teardown" verb: best-effort,
// reverse-order destruction of every resource a project's network name
// owns.
package teardown

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/locaweb/ai-deploy-infra/pkg/cloudstack"
	"github.com/locaweb/ai-deploy-infra/pkg/cmd/config"
	cmderrors "github.com/locaweb/ai-deploy-infra/pkg/cmd/errors"
	"github.com/locaweb/ai-deploy-infra/pkg/cmd/util/flags"
	"github.com/locaweb/ai-deploy-infra/pkg/notify"
	"github.com/locaweb/ai-deploy-infra/pkg/reconcile"
	"github.com/locaweb/ai-deploy-infra/pkg/spec"
)

type options struct {
	cfg *config.Config

	networkName string
	zone        string
	metricsFile string

	log logr.Logger
}

func (o *options) complete() error {
	log, err := o.cfg.NewLogger()
	if err != nil {
		return err
	}

	o.log = log

	return nil
}

func (o *options) validate() error {
	if o.networkName == "" {
		return cmderrors.ErrInvalidName
	}

	return nil
}

func (o *options) run(ctx context.Context) error {
	identity := spec.IdentityForNetwork(o.networkName)

	notifier := notify.New(o.cfg.SlackWebhookURL, o.log)

	invoker := cloudstack.NewExecInvoker(o.cfg.CmkBinary)
	reconciler := reconcile.New(invoker, o.log)

	err := reconciler.Teardown(ctx, identity, o.zone)

	if o.metricsFile != "" {
		if dumpErr := reconciler.Stats().DumpFile(o.metricsFile); dumpErr != nil {
			o.log.Info("writing metrics file failed", "error", dumpErr.Error())
		}
	}

	if err != nil {
		notifier.Notify(notify.TeardownFailure(o.networkName, err))
		return err
	}

	notifier.Notify(notify.TeardownSummary(o.networkName))

	return nil
}

// NewCommand returns the "teardown" cobra command.
func NewCommand(cfg *config.Config) *cobra.Command {
	o := &options{cfg: cfg}

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Tear down every resource owned by a project's network name.",
		Long: `Tear down every resource owned by a project's network name.

Destroys volumes, IPs, firewall rules, VMs, the network and the
keypair in reverse reconciliation order. Every step is best-effort: a
single resource failing to delete is logged and does not halt the
rest, since the goal is convergence toward absence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(); err != nil {
				return err
			}

			if err := o.validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), o.cfg.Timeout)
			defer cancel()

			return o.run(ctx)
		},
	}

	flags.RequiredStringVar(cmd, &o.networkName, "network-name", "", "Network name identifying the project to tear down.")
	cmd.Flags().StringVar(&o.zone, "zone", "", "Zone to restrict teardown to (all zones matching the network name if absent).")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "Path to dump run call-count metrics in Prometheus text format (optional).")

	return cmd
}
