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

package clusterclient_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"

	"github.com/go-logr/logr"

	"k8s.io/cli-runtime/pkg/genericclioptions"
)

func TestRunAppliesNamespaceAndContext(t *testing.T) {

	dir := t.TempDir()
	script := filepath.Join(dir, "echo-args.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$@\"\n"), 0o755)) //nolint:gosec

	t.Setenv("KUBERNETES_DEPLOY_BIN", script)

	kubeconfig := "/tmp/kubeconfig"
	cf := &genericclioptions.ConfigFlags{KubeConfig: &kubeconfig}

	c := clusterclient.New(cf, "my-namespace", "my-context", logr.Discard())

	result, err := c.Run(context.Background(), []string{"get", "pods"}, clusterclient.DefaultRunOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "--context my-context")
	assert.Contains(t, result.Stdout, "--kubeconfig /tmp/kubeconfig")
	assert.Contains(t, result.Stdout, "--namespace my-namespace")
	assert.Contains(t, result.Stdout, "get pods")
}

func TestRunSuppressesNamespaceAndContext(t *testing.T) {

	dir := t.TempDir()
	script := filepath.Join(dir, "echo-args.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$@\"\n"), 0o755)) //nolint:gosec

	t.Setenv("KUBERNETES_DEPLOY_BIN", script)

	c := clusterclient.New(&genericclioptions.ConfigFlags{}, "my-namespace", "my-context", logr.Discard())

	result, err := c.Run(context.Background(), []string{"config", "get-contexts"}, clusterclient.RunOptions{})
	require.NoError(t, err)
	assert.NotContains(t, result.Stdout, "--namespace")
	assert.NotContains(t, result.Stdout, "--context")
}

func TestRunSurfacesNonZeroExit(t *testing.T) {

	dir := t.TempDir()
	script := filepath.Join(dir, "fail.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho boom 1>&2\nexit 7\n"), 0o755)) //nolint:gosec

	t.Setenv("KUBERNETES_DEPLOY_BIN", script)

	c := clusterclient.New(&genericclioptions.ConfigFlags{}, "ns", "ctx", logr.Discard())

	result, err := c.Run(context.Background(), []string{"get", "deployment", "missing"}, clusterclient.DefaultRunOptions())
	require.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)
	assert.Contains(t, result.Stderr, "boom")
	assert.False(t, result.Succeeded())
}
