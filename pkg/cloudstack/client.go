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

// Package cloudstack is the control-plane adapter, catalog resolver,
// state reader and mutator primitives for a CloudStack-compatible
// account, fronted entirely by the external `cmk` CLI. Everything above
// this package (pkg/reconcile) only ever sees Go types and typed
// errors; no caller constructs cmk argv directly.
package cloudstack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/locaweb/ai-deploy-infra/pkg/metrics"
)

// maxRetries is the number of additional attempts Call makes beyond the
// first, per spec: 5 retries at 2s/4s/8s/16s/32s.
const maxRetries = 5

// Invoker runs a single cmk invocation and returns its raw output. It
// exists as a seam so Client's retry-and-parse logic can be unit tested
// without spawning real processes; see FakeInvoker.
type Invoker interface {
	Invoke(ctx context.Context, args ...string) (stdout, stderr string, exitCode int, err error)
}

// execInvoker is the production Invoker, spawning the real `cmk`
// binary.
type execInvoker struct {
	binary string
}

// NewExecInvoker returns an Invoker that shells out to binary (usually
// "cmk", resolved via $PATH unless an absolute path is configured).
func NewExecInvoker(binary string) Invoker {
	return &execInvoker{binary: binary}
}

func (e *execInvoker) Invoke(ctx context.Context, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, e.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		// The process never ran at all (binary missing, fork failure, ...).
		// Per spec this is treated as a retriable attempt, identically to
		// a nonzero exit, so we report a synthetic nonzero code rather
		// than surfacing err directly.
		return "", err.Error(), -1, nil
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// Client is the sole entry point onto the CloudStack control plane.
// Call and CallQuiet are its only two operations, exactly as spec.md
// §4.1 requires.
type Client struct {
	invoker Invoker
	log     logr.Logger
	stats   *metrics.Stats
	backoff func() backoff.BackOff
}

// NewClient constructs a Client around invoker. Callers that don't care
// about observability can pass logr.Discard() and metrics.New(); stats
// must not be nil.
func NewClient(invoker Invoker, log logr.Logger, stats *metrics.Stats) *Client {
	return &Client{
		invoker: invoker,
		log:     log,
		stats:   stats,
		backoff: newBackoff,
	}
}

// newBackoff returns a fresh exponential backoff configured for exactly
// the 2s/4s/8s/16s/32s sequence spec.md §4.1 mandates: doubling from a
// 2s base with no jitter, capped at 32s.
func newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 32 * time.Second

	return b
}

// callResult is the parsed outcome of a single successful (exit 0)
// invocation.
type callResult map[string]any

// Call runs args against cmk, retrying up to maxRetries additional
// times on nonzero exit with exponential backoff. On exhaustion it
// returns ErrCommandFailed wrapping the final stderr/stdout. Malformed
// JSON on a successful exit is never retried.
func (c *Client) Call(ctx context.Context, args ...string) (callResult, error) {
	return c.call(ctx, true, args...)
}

// CallQuiet behaves like Call but collapses any error — including
// final retry exhaustion — to a nil result, per the "quiet" variant
// spec.md §4.1 describes for absence checks.
func (c *Client) CallQuiet(ctx context.Context, args ...string) callResult {
	result, err := c.call(ctx, false, args...)
	if err != nil {
		return nil
	}

	return result
}

func (c *Client) call(ctx context.Context, loud bool, args ...string) (callResult, error) {
	tracer := otel.GetTracerProvider().Tracer("cloudstack")

	ctx, span := tracer.Start(ctx, "cmk "+strings.Join(args, " "), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	b := c.backoff()

	var lastStdout, lastStderr string

	attempt := 0

	for {
		stdout, stderr, exitCode, err := c.invoker.Invoke(ctx, args...)
		if err != nil {
			return nil, err
		}

		if exitCode == 0 {
			if strings.TrimSpace(stdout) == "" {
				return callResult{}, nil
			}

			var result callResult
			if err := json.Unmarshal([]byte(stdout), &result); err != nil {
				// Malformed JSON on success is fatal, never retried.
				return nil, fmt.Errorf("%w: cmk %s: %s", ErrMalformed, strings.Join(args, " "), err)
			}

			return result, nil
		}

		lastStdout, lastStderr = stdout, stderr

		if attempt >= maxRetries {
			break
		}

		wait := b.NextBackOff()

		errMsg := strings.TrimSpace(stderr)
		if errMsg == "" {
			errMsg = strings.TrimSpace(stdout)
		}

		if loud {
			c.log.Info("retrying cmk invocation", "args", args, "attempt", attempt+1, "backoff", wait, "error", errMsg)
		}

		c.stats.RecordRetry()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		attempt++
	}

	errMsg := strings.TrimSpace(lastStderr)
	if errMsg == "" {
		errMsg = strings.TrimSpace(lastStdout)
	}

	c.stats.RecordFailure()

	finalErr := fmt.Errorf("%w: cmk %s: %s", ErrCommandFailed, strings.Join(args, " "), errMsg)

	if loud {
		c.log.Error(finalErr, "cmk invocation exhausted retries", "args", args)
	}

	return nil, finalErr
}
