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

// Package flags holds small cobra/pflag registration helpers shared by
// every subcommand, trimmed down from the teacher's own
// pkg/cmd/util/flags package (which also covers Kubernetes-specific
// completions this CLI has no use for).
package flags

import (
	"github.com/spf13/cobra"
)

// RequiredStringVar registers a required string flag.
func RequiredStringVar(cmd *cobra.Command, p *string, name, value, usage string) {
	cmd.Flags().StringVar(p, name, value, usage)

	if err := cmd.MarkFlagRequired(name); err != nil {
		panic(err)
	}
}

// RequiredIntVar registers a required int flag.
func RequiredIntVar(cmd *cobra.Command, p *int, name string, value int, usage string) {
	cmd.Flags().IntVar(p, name, value, usage)

	if err := cmd.MarkFlagRequired(name); err != nil {
		panic(err)
	}
}
