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

package render_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/kubernetes-deploy/pkg/render"
)

func TestPassthroughReturnsContentsUnchanged(t *testing.T) {
	t.Parallel()

	out, err := render.Passthrough{}.Render("cm.yml", "kind: ConfigMap\n", nil)
	require.NoError(t, err)
	assert.Equal(t, "kind: ConfigMap\n", out)
}

func TestGoTemplateSubstitutesBindings(t *testing.T) {
	t.Parallel()

	out, err := render.GoTemplate{}.Render("deploy.yml.erb", "image: app:{{.current_sha}}\n", render.Bindings{
		"current_sha": "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, "image: app:abc123\n", out)
}

func TestGoTemplateErrorsOnMissingBinding(t *testing.T) {
	t.Parallel()

	_, err := render.GoTemplate{}.Render("deploy.yml.erb", "image: app:{{.current_sha}}\n", render.Bindings{})
	require.Error(t, err)
}
