/*
Copyright 2022-2024 EscherCloud.

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

// Package render expands a manifest template into raw YAML text before
// TemplateDiscovery splits and validates it. A Renderer is the one place
// the bindings map (current_sha, deployment_id, and caller-supplied
// overrides) meets the template file.
package render

import (
	"bytes"
	"fmt"
	"text/template"
)

// Bindings is the variable set made available to a template document.
type Bindings map[string]string

// Renderer expands a template file's contents into raw YAML text. name is
// used only for error messages.
type Renderer interface {
	Render(name, contents string, bindings Bindings) (string, error)
}

// Passthrough returns contents unchanged - used for plain ".yml" files
// that carry no template directives.
type Passthrough struct{}

var _ Renderer = Passthrough{}

func (Passthrough) Render(_ string, contents string, _ Bindings) (string, error) {
	return contents, nil
}

// GoTemplate renders ".yml.erb" documents with Go's text/template engine.
// The source format predates this rework (hence the ERB-flavored file
// extension the spec still uses), but the substitution semantics - drop a
// bound variable in with {{ }} - translate directly.
type GoTemplate struct{}

var _ Renderer = GoTemplate{}

func (GoTemplate) Render(name string, contents string, bindings Bindings) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(contents)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}

	var buf bytes.Buffer

	if err := tmpl.Execute(&buf, bindings); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}

	return buf.String(), nil
}
