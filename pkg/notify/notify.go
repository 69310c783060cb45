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

// Package notify posts a one-line run summary to Slack after provision
// or teardown completes. It follows wisbric-nightowl's pkg/slack
// IsEnabled-guard idiom (a notifier with no token/URL is a silent
// no-op) but talks to a single incoming webhook with slack-go/slack's
// PostWebhook rather than the bot-token Web API, since a CLI run has no
// channel or bot identity to speak of - just a URL a human pasted into
// an environment variable.
package notify

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/slack-go/slack"
)

// Notifier posts best-effort Slack notifications. A Notifier built with
// an empty webhook URL is always disabled: Notify becomes a no-op that
// never blocks or fails a run.
type Notifier struct {
	webhookURL string
	log        logr.Logger
}

// New returns a Notifier posting to webhookURL. An empty webhookURL
// disables notifications entirely.
func New(webhookURL string, log logr.Logger) *Notifier {
	return &Notifier{webhookURL: webhookURL, log: log}
}

// IsEnabled reports whether this Notifier has a webhook configured.
func (n *Notifier) IsEnabled() bool {
	return n.webhookURL != ""
}

// Notify posts text to the configured webhook. Failures are logged and
// swallowed: a Slack outage must never fail a provision or teardown
// run that otherwise succeeded.
func (n *Notifier) Notify(text string) {
	if !n.IsEnabled() {
		return
	}

	msg := &slack.WebhookMessage{Text: text}

	if err := slack.PostWebhook(n.webhookURL, msg); err != nil {
		n.log.Info("slack notification failed, continuing", "error", err.Error())
	}
}

// ProvisionSummary formats the one-line success notification for a
// completed provision run.
func ProvisionSummary(networkName, webIP string) string {
	return fmt.Sprintf(":white_check_mark: provisioned %s (web: %s)", networkName, webIP)
}

// ProvisionFailure formats the one-line failure notification for a
// failed provision run.
func ProvisionFailure(networkName string, err error) string {
	return fmt.Sprintf(":x: provisioning %s failed: %s", networkName, err)
}

// TeardownSummary formats the one-line notification for a completed
// teardown run.
func TeardownSummary(networkName string) string {
	return fmt.Sprintf(":white_check_mark: tore down %s", networkName)
}

// TeardownFailure formats the one-line failure notification for a
// failed teardown run.
func TeardownFailure(networkName string, err error) string {
	return fmt.Sprintf(":x: tearing down %s failed: %s", networkName, err)
}
