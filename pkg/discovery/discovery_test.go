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

package discovery_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-logr/logr"

	"k8s.io/cli-runtime/pkg/genericclioptions"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	"github.com/eschercloudai/kubernetes-deploy/pkg/discovery"
	"github.com/eschercloudai/kubernetes-deploy/pkg/render"
)

func writeStubCLI(t *testing.T, stdout string, exitCode int) string {
	t.Helper()

	dir := t.TempDir()
	script := filepath.Join(dir, "kubectl-stub.sh")

	content := "#!/bin/sh\ncat <<'EOF'\n" + stdout + "\nEOF\nexit " + itoa(exitCode) + "\n"

	require.NoError(t, os.WriteFile(script, []byte(content), 0o755)) //nolint:gosec

	return script
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}

	return digits
}

func TestDiscoverClassifiesEachDocument(t *testing.T) {

	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "cm.yml"), []byte("kind: ConfigMap\nmetadata:\n  name: app-config\n"), 0o600))

	script := writeStubCLI(t, "configmap/app-config", 0)
	t.Setenv("KUBERNETES_DEPLOY_BIN", script)

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "default", "test", logr.Discard())

	d := discovery.New(templateDir, nil, client, render.GoTemplate{}, nil, logr.Discard())
	defer d.Close() //nolint:errcheck

	found, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ConfigMap", found[0].Kind())
	assert.Equal(t, "app-config", found[0].Name())
	assert.NotEmpty(t, found[0].ManifestPath())
}

func TestDiscoverFailsOnEmptyTemplateDirectory(t *testing.T) {

	templateDir := t.TempDir()

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "default", "test", logr.Discard())

	d := discovery.New(templateDir, nil, client, render.GoTemplate{}, nil, logr.Discard())

	_, err := d.Discover(context.Background())
	require.Error(t, err)
}

func TestDiscoverSurfacesInvalidTemplate(t *testing.T) {

	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "bad.yml"), []byte("not: valid: yaml: at: all\n"), 0o600))

	script := writeStubCLI(t, "error: invalid manifest", 1)
	t.Setenv("KUBERNETES_DEPLOY_BIN", script)

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "default", "test", logr.Discard())

	d := discovery.New(templateDir, nil, client, render.GoTemplate{}, nil, logr.Discard())
	defer d.Close() //nolint:errcheck

	_, err := d.Discover(context.Background())
	require.Error(t, err)

	var invalidErr *discovery.InvalidTemplateError

	require.ErrorAs(t, err, &invalidErr)
}
