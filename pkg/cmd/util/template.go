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

package util

import (
	"strings"
	"text/template"

	"github.com/locaweb/ai-deploy-infra/pkg/constants"
)

// DynamicTemplateOptions allows some parameters to be passed into help text
// and that text to be templated so it will update automatically when the
// options do.
type DynamicTemplateOptions struct {
	// Application is the application name as defined by argv[0].
	Application string
}

// newDynamicTemplateOptions returns an initialized template options struct.
func newDynamicTemplateOptions() *DynamicTemplateOptions {
	return &DynamicTemplateOptions{
		Application: constants.Application,
	}
}

// templatedString allows dynamic templating e.g. variable expansion, of
// strings, typically in help text examples.
func templatedString(s string, data any) string {
	t := template.New("root")

	t, err := t.Parse(s)
	if err != nil {
		panic(err)
	}

	out := &strings.Builder{}

	if err := t.Execute(out, data); err != nil {
		panic(err)
	}

	return out.String()
}

// TemplatedExample applies a templating function to the example string so
// help text can reference the application name dynamically, then dedents
// it the way cobra's own example blocks expect (leading tab/newline
// stripped, consistent indentation). This is a trimmed-down rewrite of the
// teacher's own TemplatedExample: the teacher reaches for
// k8s.io/kubectl/pkg/util/templates for this, which pulls in kubectl's
// entire CLI runtime for one dedent helper - a cost that makes sense for a
// kubectl plugin but not for a standalone CLI with no Kubernetes surface.
func TemplatedExample(s string) string {
	return dedent(templatedString(s, newDynamicTemplateOptions()))
}

// dedent strips the common leading whitespace from a multi-line example
// block, the same normalization templates.Examples performs upstream.
func dedent(s string) string {
	lines := strings.Split(strings.Trim(s, "\n"), "\n")

	min := -1

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if min == -1 || indent < min {
			min = indent
		}
	}

	if min <= 0 {
		return strings.Join(lines, "\n")
	}

	for i, line := range lines {
		if len(line) >= min {
			lines[i] = line[min:]
		}
	}

	return strings.Join(lines, "\n")
}
