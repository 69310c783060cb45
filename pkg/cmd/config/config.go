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

// Package config holds the ambient settings every infractl subcommand
// shares: the cmk binary location, the per-invocation timeout, the log
// level, and the optional Slack webhook. It follows the teacher's
// pkg/managers/options.Options idiom (a plain struct with an AddFlags
// method) rather than wiring cobra flags ad hoc in each subcommand, but
// seeds its defaults from the environment first via caarlos0/env, the
// way wisbric-nightowl's internal/config.Config does, so a cron-driven
// caller can configure infractl without passing flags at all.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds settings shared by every infractl subcommand.
type Config struct {
	// CmkBinary is the path or $PATH-resolved name of the cmk CLI the
	// control-plane adapter shells out to.
	CmkBinary string `env:"CMK_BINARY" envDefault:"cmk"`

	// Timeout bounds a single provision or teardown run, overridable per
	// invocation with --timeout.
	Timeout time.Duration `env:"INFRACTL_TIMEOUT" envDefault:"30m"`

	// LogLevel is the zap level name (debug, info, warn, error) used for
	// every subcommand's logger.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// SlackWebhookURL, when set, makes pkg/notify post a one-line run
	// summary after provision/teardown complete.
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`
}

// Load reads Config from the environment, applying the defaults above
// for anything unset. Flags registered via AddFlags are layered on top
// by cobra/pflag after Load runs.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from environment: %w", err)
	}

	return cfg, nil
}

// AddFlags registers persistent flags on the root command that override
// whatever Load populated from the environment.
func (c *Config) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.CmkBinary, "cmk-binary", c.CmkBinary, "Path to the cmk CLI binary.")
	flags.DurationVar(&c.Timeout, "timeout", c.Timeout, "Overall run timeout.")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, or error.")
	flags.StringVar(&c.SlackWebhookURL, "slack-webhook", c.SlackWebhookURL, "Slack incoming webhook URL for run summaries (optional).")
}

// NewLogger builds the logr.Logger every subcommand logs through,
// backed by zap the way the teacher's cmd/unikorn-project-manager wires
// zap.New into log.SetLogger - except here zapr.NewLogger is used
// directly rather than going through controller-runtime's zap
// integration, since this CLI has no controller-runtime dependency to
// plug into.
func (c *Config) NewLogger() (logr.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return logr.Logger{}, fmt.Errorf("parsing log level %q: %w", c.LogLevel, err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.Encoding = "console"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return logr.Logger{}, fmt.Errorf("building logger: %w", err)
	}

	return zapr.NewLogger(zapLogger), nil
}
