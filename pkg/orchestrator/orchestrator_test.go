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

package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-logr/logr"
	"go.uber.org/mock/gomock"

	"k8s.io/cli-runtime/pkg/genericclioptions"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	cmderrors "github.com/eschercloudai/kubernetes-deploy/pkg/cmd/errors"
	"github.com/eschercloudai/kubernetes-deploy/pkg/orchestrator"
	"github.com/eschercloudai/kubernetes-deploy/pkg/render"
	secretsmock "github.com/eschercloudai/kubernetes-deploy/pkg/secrets/mock"
)

// writeStubCLI builds a dispatch table keyed by a substring of the full
// invocation, checked in the given order; the first match answers.
func writeStubCLI(t *testing.T, order []string, bodies map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	script := filepath.Join(dir, "kubectl-stub.sh")

	var b []byte
	b = append(b, "#!/bin/sh\nargs=\"$*\"\n"...)

	for _, key := range order {
		b = append(b, "case \"$args\" in\n  *\""+key+"\"*)\n    printf '%s' '"+bodies[key]+"'\n    exit 0\n    ;;\nesac\n"...)
	}

	b = append(b, "exit 1\n"...)

	require.NoError(t, os.WriteFile(script, b, 0o755)) //nolint:gosec

	return script
}

func TestOrchestratorHappyPathConfigMapOnly(t *testing.T) {

	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "cm.yml"), []byte("kind: ConfigMap\nmetadata:\n  name: app-config\n"), 0o600))

	kubeconfig := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, os.WriteFile(kubeconfig, []byte("apiVersion: v1\nkind: Config\n"), 0o600))

	script := writeStubCLI(t, []string{
		"get-contexts",
		"get namespace",
		"create -f",
		"get configmap",
		"apply",
	}, map[string]string{
		"get-contexts":  "test",
		"get namespace": "app",
		"create -f":     "configmap/app-config",
		"get configmap": "",
		"apply":         "",
	})
	t.Setenv("KUBERNETES_DEPLOY_BIN", script)

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "app", "test", logr.Discard())

	opts := orchestrator.Options{
		Namespace:   "app",
		Context:     "test",
		TemplateDir: templateDir,
		CurrentSHA:  "abcdef1234567890",
		KubeConfig:  kubeconfig,
		SkipWait:    true,
	}

	o := orchestrator.New(opts, client, render.GoTemplate{}, nil, nil, nil, logr.Discard())

	require.NoError(t, o.Run(context.Background()))
}

func TestOrchestratorAppliesSecretsWhenChangesRequired(t *testing.T) {

	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "cm.yml"), []byte("kind: ConfigMap\nmetadata:\n  name: app-config\n"), 0o600))

	kubeconfig := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, os.WriteFile(kubeconfig, []byte("apiVersion: v1\nkind: Config\n"), 0o600))

	script := writeStubCLI(t, []string{
		"get-contexts",
		"get namespace",
		"create -f",
		"get configmap",
		"apply",
	}, map[string]string{
		"get-contexts":  "test",
		"get namespace": "app",
		"create -f":     "configmap/app-config",
		"get configmap": "",
		"apply":         "",
	})
	t.Setenv("KUBERNETES_DEPLOY_BIN", script)

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "app", "test", logr.Discard())

	ctrl := gomock.NewController(t)
	provisioner := secretsmock.NewMockProvisioner(ctrl)
	provisioner.EXPECT().ChangesRequired(gomock.Any()).Return(true, nil)
	provisioner.EXPECT().Apply(gomock.Any()).Return(nil)

	opts := orchestrator.Options{
		Namespace:   "app",
		Context:     "test",
		TemplateDir: templateDir,
		CurrentSHA:  "abcdef1234567890",
		KubeConfig:  kubeconfig,
		SkipWait:    true,
	}

	o := orchestrator.New(opts, client, render.GoTemplate{}, provisioner, nil, nil, logr.Discard())

	require.NoError(t, o.Run(context.Background()))
}

func TestOrchestratorRejectsPruneAgainstProtectedNamespace(t *testing.T) {

	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "cm.yml"), []byte("kind: ConfigMap\n"), 0o600))

	kubeconfig := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, os.WriteFile(kubeconfig, []byte("apiVersion: v1\nkind: Config\n"), 0o600))

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "kube-system", "test", logr.Discard())

	opts := orchestrator.Options{
		Namespace:        "kube-system",
		Context:          "test",
		TemplateDir:      templateDir,
		CurrentSHA:       "abcdef1234567890",
		KubeConfig:       kubeconfig,
		Prune:            true,
		AllowProtectedNS: true,
	}

	o := orchestrator.New(opts, client, render.GoTemplate{}, nil, nil, nil, logr.Discard())

	err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cmderrors.ErrInvalidConfiguration)
}

func TestOrchestratorRejectsMissingTemplateDirBeforeClusterContact(t *testing.T) {

	kubeconfig := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, os.WriteFile(kubeconfig, []byte("apiVersion: v1\nkind: Config\n"), 0o600))

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "app", "test", logr.Discard())

	opts := orchestrator.Options{
		Namespace:   "app",
		Context:     "test",
		TemplateDir: filepath.Join(t.TempDir(), "missing"),
		CurrentSHA:  "abcdef1234567890",
		KubeConfig:  kubeconfig,
	}

	o := orchestrator.New(opts, client, render.GoTemplate{}, nil, nil, nil, logr.Discard())

	err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cmderrors.ErrInvalidConfiguration)
}
