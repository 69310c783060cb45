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

// Package provision implements the "provision" verb: read a desired
// spec and a public key, converge the account towards that topology,
// and emit the resulting wiring map.
package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

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

// options holds the fully-parsed, validated state for a single
// provision invocation, following the teacher's complete/validate/run
// split (pkg/cmd/create/create_project.go) rather than doing
// everything inline in Run.
type options struct {
	cfg *config.Config

	repoName    string
	uniqueID    string
	envName     string
	configPath  string
	publicKey   string
	outputPath  string
	metricsFile string

	desired       *spec.DesiredSpec
	publicKeyData string
	log           logr.Logger
}

// complete fills in anything not handled by flag parsing: reading and
// decoding the desired spec, reading the public key file, and building
// the logger.
func (o *options) complete() error {
	log, err := o.cfg.NewLogger()
	if err != nil {
		return err
	}

	o.log = log

	configFile, err := os.Open(o.configPath)
	if err != nil {
		return fmt.Errorf("%w: %s", cmderrors.ErrInvalidPath, err)
	}
	defer configFile.Close()

	desired, err := spec.DecodeDesiredSpec(configFile)
	if err != nil {
		return err
	}

	o.desired = desired

	keyData, err := os.ReadFile(o.publicKey)
	if err != nil {
		return fmt.Errorf("%w: %s", cmderrors.ErrInvalidPath, err)
	}

	o.publicKeyData = string(keyData)

	return nil
}

// validate validates any tainted input not handled by complete() or
// flag processing.
func (o *options) validate() error {
	if o.repoName == "" || o.uniqueID == "" {
		return cmderrors.ErrInvalidName
	}

	return nil
}

// run drives the reconciler to convergence and writes the resulting
// wiring map, optionally dumping metrics and posting a Slack summary.
func (o *options) run(ctx context.Context) error {
	identity := spec.ProjectIdentity{
		RepoName: o.repoName,
		UniqueID: o.uniqueID,
		EnvName:  o.envName,
	}

	notifier := notify.New(o.cfg.SlackWebhookURL, o.log)

	invoker := cloudstack.NewExecInvoker(o.cfg.CmkBinary)
	reconciler := reconcile.New(invoker, o.log)

	out, err := reconciler.Provision(ctx, o.desired, identity, o.publicKeyData, "", "")
	if err != nil {
		notifier.Notify(notify.ProvisionFailure(identity.NetworkName(), err))

		if o.metricsFile != "" {
			_ = reconciler.Stats().DumpFile(o.metricsFile)
		}

		return err
	}

	if err := o.writeOutput(out); err != nil {
		return err
	}

	if o.metricsFile != "" {
		if err := reconciler.Stats().DumpFile(o.metricsFile); err != nil {
			o.log.Info("writing metrics file failed", "error", err.Error())
		}
	}

	notifier.Notify(notify.ProvisionSummary(out.NetworkName, out.WebIP))

	return nil
}

func (o *options) writeOutput(out *spec.ProvisionOutput) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling provision output: %w", err)
	}

	data = append(data, '\n')

	if o.outputPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}

	return os.WriteFile(o.outputPath, data, 0o600)
}

// NewCommand returns the "provision" cobra command.
func NewCommand(cfg *config.Config) *cobra.Command {
	o := &options{cfg: cfg}

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision or reconcile a project's fixed VM topology.",
		Long: `Provision or reconcile a project's fixed VM topology.

Converges the target CloudStack account towards the web/worker/db
topology described by --config, creating or scaling whatever differs
and leaving whatever already matches untouched.`,
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

	flags.RequiredStringVar(cmd, &o.repoName, "repo-name", "", "Repository/application name this project belongs to.")
	flags.RequiredStringVar(cmd, &o.uniqueID, "unique-id", "", "Unique id disambiguating multiple deployments of repo-name.")
	cmd.Flags().StringVar(&o.envName, "env-name", "", "Optional environment suffix appended to the derived network name.")
	flags.RequiredStringVar(cmd, &o.configPath, "config", "", "Path to the desired spec JSON file.")
	flags.RequiredStringVar(cmd, &o.publicKey, "public-key", "", "Path to the SSH public key registered for this project.")
	cmd.Flags().StringVar(&o.outputPath, "output", "", "Path to write the provision output JSON (stdout if absent).")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "Path to dump run call-count metrics in Prometheus text format (optional).")

	return cmd
}
