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

package deploy_test

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
	"github.com/eschercloudai/kubernetes-deploy/pkg/deploy"
	"github.com/eschercloudai/kubernetes-deploy/pkg/resources"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	script := filepath.Join(dir, "kubectl-stub.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0o755)) //nolint:gosec

	return script
}

func TestDeployRejectsPruneAgainstProtectedNamespace(t *testing.T) {

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "default", "test", logr.Discard())
	d := deploy.New(client, "default", true, logr.Discard())

	err := d.Deploy(context.Background(), nil)
	require.Error(t, err)
}

func TestDeployAppliesBatchedResources(t *testing.T) {

	script := writeScript(t, "case \"$1\" in\n  apply) exit 0 ;;\n  *) exit 0 ;;\nesac\n")
	t.Setenv("KUBERNETES_DEPLOY_BIN", script)

	manifestDir := t.TempDir()
	manifestPath := filepath.Join(manifestDir, "cm.yml")
	require.NoError(t, os.WriteFile(manifestPath, []byte("kind: ConfigMap\n"), 0o600))

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "app", "test", logr.Discard())
	d := deploy.New(client, "app", false, logr.Discard())

	r := resources.NewForType(client, "ConfigMap", "app-config", "app", "test", manifestPath, logr.Discard(), nil)

	require.NoError(t, d.Deploy(context.Background(), []resources.Resource{r}))
	assert.False(t, r.DeployStartedAt().IsZero())
}

func TestDeployFallsBackToCreateWhenReplaceTargetIsMissing(t *testing.T) {

	script := writeScript(t, "case \"$1\" in\n  replace) exit 1 ;;\n  create) exit 0 ;;\n  *) exit 0 ;;\nesac\n")
	t.Setenv("KUBERNETES_DEPLOY_BIN", script)

	manifestDir := t.TempDir()
	manifestPath := filepath.Join(manifestDir, "db.yml")
	require.NoError(t, os.WriteFile(manifestPath, []byte("kind: Cloudsql\n"), 0o600))

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "app", "test", logr.Discard())
	d := deploy.New(client, "app", false, logr.Discard())

	r := resources.NewForType(client, "Cloudsql", "primary", "app", "test", manifestPath, logr.Discard(), nil)

	require.NoError(t, d.Deploy(context.Background(), []resources.Resource{r}))
}

func TestDeploySurfacesReplaceAndCreateFailure(t *testing.T) {

	script := writeScript(t, "exit 1\n")
	t.Setenv("KUBERNETES_DEPLOY_BIN", script)

	manifestDir := t.TempDir()
	manifestPath := filepath.Join(manifestDir, "db.yml")
	require.NoError(t, os.WriteFile(manifestPath, []byte("kind: Cloudsql\n"), 0o600))

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "app", "test", logr.Discard())
	d := deploy.New(client, "app", false, logr.Discard())

	r := resources.NewForType(client, "Cloudsql", "primary", "app", "test", manifestPath, logr.Discard(), nil)

	err := d.Deploy(context.Background(), []resources.Resource{r})
	require.Error(t, err)
}
