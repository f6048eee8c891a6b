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

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	cmderrors "github.com/eschercloudai/kubernetes-deploy/pkg/cmd/errors"
	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
	"github.com/eschercloudai/kubernetes-deploy/pkg/metrics"
	"github.com/eschercloudai/kubernetes-deploy/pkg/orchestrator"
	"github.com/eschercloudai/kubernetes-deploy/pkg/render"
	"github.com/eschercloudai/kubernetes-deploy/pkg/tracing"

	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/kubectl/pkg/util/templates"
)

var (
	rootLongDesc = templates.LongDesc(`
	EscherCloudAI Kubernetes Deploy.

	Discovers rendered Kubernetes manifests beneath a template directory,
	validates them against the target cluster with a dry-run, applies or
	replaces them in a fixed, predeploy-ordered sequence, then watches
	the resulting resources until they converge, fail, or time out.

	The namespace and context are positional - this tool always targets
	exactly one (namespace, context) pair per invocation.`)
)

// deployFlags carries the flag and environment-derived configuration for
// the deploy command, prior to being turned into orchestrator.Options.
type deployFlags struct {
	templateDir      string
	bindings         map[string]string
	skipWait         bool
	allowProtectedNS bool
	noPrune          bool
	verboseLogPrefix bool
	pushgatewayURL   string
	tracingEndpoint  string
	jsonReportPath   string
}

// parseBindings turns a comma-separated k1=v1,k2=v2 flag value into a map.
func parseBindings(raw string) (map[string]string, error) {
	bindings := map[string]string{}

	if raw == "" {
		return bindings, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: binding %q is not in k=v form", cmderrors.ErrInvalidConfiguration, pair)
		}

		bindings[key] = value
	}

	return bindings, nil
}

// resolveTemplateDir returns the explicit --template-dir if given, else
// falls back to config/deploy/$ENVIRONMENT.
func resolveTemplateDir(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		return "", fmt.Errorf("%w: --template-dir not given and ENVIRONMENT is unset", cmderrors.ErrInvalidConfiguration)
	}

	return filepath.Join("config", "deploy", environment), nil
}

// runDeploy assembles an Orchestrator from flags and environment and runs it.
func runDeploy(ctx context.Context, cf *genericclioptions.ConfigFlags, namespace, deployContext string, flags *deployFlags, log logr.Logger) error {
	revision := os.Getenv("REVISION")
	if revision == "" {
		return fmt.Errorf("%w: REVISION environment variable is required", cmderrors.ErrInvalidConfiguration)
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" && cf.KubeConfig != nil {
		kubeconfig = *cf.KubeConfig
	}

	templateDir, err := resolveTemplateDir(flags.templateDir)
	if err != nil {
		return err
	}

	tracerProvider, err := tracing.NewProvider(ctx, flags.tracingEndpoint)
	if err != nil {
		return fmt.Errorf("failed to start tracer: %w", err)
	}

	var recorder *metrics.Recorder
	if flags.pushgatewayURL != "" {
		recorder = metrics.New(flags.pushgatewayURL, constants.Application)
	}

	if flags.verboseLogPrefix {
		log = log.WithValues("namespace", namespace, "context", deployContext)
	}

	client := clusterclient.New(cf, namespace, deployContext, log)

	opts := orchestrator.Options{
		Namespace:        namespace,
		Context:          deployContext,
		TemplateDir:      templateDir,
		CurrentSHA:       revision,
		KubeConfig:       kubeconfig,
		Bindings:         flags.bindings,
		SkipWait:         flags.skipWait,
		AllowProtectedNS: flags.allowProtectedNS,
		Prune:            !flags.noPrune,
		JSONReportPath:   flags.jsonReportPath,
	}

	o := orchestrator.New(opts, client, render.GoTemplate{}, nil, recorder, tracerProvider, log)

	return o.Run(ctx)
}

// newRootCommand returns the root command and all its subordinates. The
// root itself performs the deploy operation against "<namespace>
// <context>", since that is the only operation this tool exposes;
// "version" is kept as a separate subcommand.
func newRootCommand(cf *genericclioptions.ConfigFlags, log logr.Logger) *cobra.Command {
	flags := &deployFlags{}

	var bindingsRaw string

	cmd := &cobra.Command{
		Use:           constants.Application + " <namespace> <context>",
		Short:         "EscherCloudAI Kubernetes Deploy.",
		Long:          rootLongDesc,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bindings, err := parseBindings(bindingsRaw)
			if err != nil {
				return err
			}

			flags.bindings = bindings

			return runDeploy(cmd.Context(), cf, args[0], args[1], flags, log)
		},
	}

	cf.AddFlags(cmd.PersistentFlags())

	cmd.Flags().StringVar(&flags.templateDir, "template-dir", "", "Directory of rendered manifests to deploy (default: config/deploy/$ENVIRONMENT).")
	cmd.Flags().StringVar(&bindingsRaw, "bindings", "", "Comma-separated k=v template bindings.")
	cmd.Flags().BoolVar(&flags.skipWait, "skip-wait", false, "Deploy without watching resources converge.")
	cmd.Flags().BoolVar(&flags.allowProtectedNS, "allow-protected-ns", false, "Permit deploying (not pruning) to a protected namespace.")
	cmd.Flags().BoolVar(&flags.noPrune, "no-prune", false, "Disable apply --prune for this run.")
	cmd.Flags().BoolVar(&flags.verboseLogPrefix, "verbose-log-prefix", false, "Prefix log lines with the target namespace and context.")
	cmd.Flags().StringVar(&flags.pushgatewayURL, "pushgateway-url", "", "Prometheus Pushgateway URL to push run metrics to (optional).")
	cmd.Flags().StringVar(&flags.tracingEndpoint, "tracing-endpoint", "", "OTLP/HTTP endpoint to export phase traces to (optional).")
	cmd.Flags().StringVar(&flags.jsonReportPath, "json-report", "", "Write a machine-readable verdict report to this path (optional).")

	cmd.AddCommand(newVersionCommand(cf, log))

	return cmd
}

// Generate creates a hierarchy of cobra commands for the application. It can
// also be used to walk the structure and generate HTML documentation for example.
func Generate(log logr.Logger) *cobra.Command {
	cf := genericclioptions.NewConfigFlags(true)

	cmd := newRootCommand(cf, log)

	return cmd
}
