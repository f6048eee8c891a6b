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

// Package orchestrator drives the deploy state machine end to end:
// validate, confirm the cluster is reachable, discover manifests,
// predeploy the priority kinds, deploy everything else, watch for
// convergence, and render a verdict. Every state short-circuits to
// failure; there is no retry and no rollback.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/slices"

	"k8s.io/client-go/tools/clientcmd"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	cmderrors "github.com/eschercloudai/kubernetes-deploy/pkg/cmd/errors"
	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
	"github.com/eschercloudai/kubernetes-deploy/pkg/deploy"
	"github.com/eschercloudai/kubernetes-deploy/pkg/discovery"
	"github.com/eschercloudai/kubernetes-deploy/pkg/events"
	"github.com/eschercloudai/kubernetes-deploy/pkg/metrics"
	"github.com/eschercloudai/kubernetes-deploy/pkg/render"
	"github.com/eschercloudai/kubernetes-deploy/pkg/resources"
	"github.com/eschercloudai/kubernetes-deploy/pkg/secrets"
	"github.com/eschercloudai/kubernetes-deploy/pkg/tracing"
	"github.com/eschercloudai/kubernetes-deploy/pkg/util"
	"github.com/eschercloudai/kubernetes-deploy/pkg/watch"
)

// Options configures a single deploy run. It is the Go-native equivalent
// of the CLI's positional and flag surface.
type Options struct {
	Namespace        string
	Context          string
	TemplateDir      string
	CurrentSHA       string
	KubeConfig       string
	Bindings         map[string]string
	SkipWait         bool
	AllowProtectedNS bool
	Prune            bool

	// JSONReportPath, if set, is where the Verdict phase writes a
	// machine-readable summary alongside the human log. Empty disables it.
	JSONReportPath string
}

// Orchestrator runs one deploy. It is not reused across deploys - each
// run constructs a fresh Orchestrator with its own resource set.
type Orchestrator struct {
	opts     Options
	client   *clusterclient.Client
	renderer render.Renderer
	secrets  secrets.Provisioner
	recorder *metrics.Recorder
	tracer   trace.TracerProvider
	log      logr.Logger

	resources []resources.Resource
}

// New validates nothing yet - call Run to execute the state machine.
func New(opts Options, client *clusterclient.Client, renderer render.Renderer, secretsProvisioner secrets.Provisioner, recorder *metrics.Recorder, tracer trace.TracerProvider, log logr.Logger) *Orchestrator {
	if secretsProvisioner == nil {
		secretsProvisioner = secrets.Noop{}
	}

	return &Orchestrator{
		opts:     opts,
		client:   client,
		renderer: renderer,
		secrets:  secretsProvisioner,
		recorder: recorder,
		tracer:   tracer,
		log:      log,
	}
}

// Run executes the full state machine and returns the verdict error: nil
// on success, a wrapped sentinel from pkg/cmd/errors on any failure.
func (o *Orchestrator) Run(ctx context.Context) error {
	start := time.Now()

	err := o.run(ctx)

	verdict := "success"
	if err != nil {
		verdict = "failure"
	}

	if o.recorder != nil {
		o.recorder.ObserveRun(verdict, time.Since(start))

		if pushErr := o.recorder.Push(); pushErr != nil {
			o.log.Info("metrics push failed", "error", pushErr.Error())
		}
	}

	return err
}

func (o *Orchestrator) run(ctx context.Context) error {
	if err := o.phase(ctx, "Validating", o.validate); err != nil {
		return err
	}

	if err := o.phase(ctx, "Confirming cluster", o.confirmCluster); err != nil {
		return err
	}

	if err := o.phase(ctx, "Discovering", o.discoverResources); err != nil {
		return err
	}

	if err := o.phase(ctx, "Initial sync", o.initialSync); err != nil {
		return err
	}

	if err := o.phase(ctx, "Provisioning secrets", o.provisionSecrets); err != nil {
		return err
	}

	if err := o.phase(ctx, "Predeploying", o.predeploy); err != nil {
		return err
	}

	if err := o.phase(ctx, "Deploying", o.deployAll); err != nil {
		return err
	}

	if err := o.phase(ctx, "Watching", o.watchAll); err != nil {
		return err
	}

	return o.phase(ctx, "Verdict", o.verdict)
}

func (o *Orchestrator) phase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	o.log.Info("phase starting", "phase", name)

	return tracing.Phase(ctx, o.tracer, name, fn)
}

func (o *Orchestrator) validate(_ context.Context) error {
	if o.opts.KubeConfig == "" {
		return fmt.Errorf("%w: kubeconfig path is required", cmderrors.ErrInvalidConfiguration)
	}

	if _, err := clientcmd.LoadFromFile(o.opts.KubeConfig); err != nil {
		return fmt.Errorf("%w: kubeconfig %s: %w", cmderrors.ErrInvalidConfiguration, o.opts.KubeConfig, err)
	}

	if o.opts.CurrentSHA == "" {
		return fmt.Errorf("%w: REVISION is required", cmderrors.ErrInvalidConfiguration)
	}

	if o.opts.TemplateDir == "" {
		return fmt.Errorf("%w: template directory is required", cmderrors.ErrInvalidConfiguration)
	}

	if info, err := os.Stat(o.opts.TemplateDir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: template directory %s does not exist", cmderrors.ErrInvalidConfiguration, o.opts.TemplateDir)
	}

	if o.opts.Namespace == "" {
		return fmt.Errorf("%w: namespace is required", cmderrors.ErrInvalidConfiguration)
	}

	if o.opts.Context == "" {
		return fmt.Errorf("%w: context is required", cmderrors.ErrInvalidConfiguration)
	}

	// Protected + prune is rejected unconditionally - the allow-protected
	// override only ever waives the plain protected-namespace check below.
	if o.opts.Prune && constants.ProtectedNamespaces[o.opts.Namespace] {
		return fmt.Errorf("%w: %w", cmderrors.ErrInvalidConfiguration, cmderrors.ErrProtectedNamespace)
	}

	if constants.ProtectedNamespaces[o.opts.Namespace] && !o.opts.AllowProtectedNS {
		return fmt.Errorf("%w: namespace %s is protected, pass --allow-protected-ns to proceed", cmderrors.ErrInvalidConfiguration, o.opts.Namespace)
	}

	return nil
}

func (o *Orchestrator) confirmCluster(ctx context.Context) error {
	contexts, err := o.client.Run(ctx, []string{"config", "get-contexts", "-o", "name"}, clusterclient.RunOptions{LogFailure: true})
	if err != nil {
		return fmt.Errorf("%w: %w", cmderrors.ErrClusterUnreachable, err)
	}

	if !contexts.Succeeded() || !strings.Contains(contexts.Stdout, o.opts.Context) {
		return fmt.Errorf("%w: context %s not found", cmderrors.ErrClusterUnreachable, o.opts.Context)
	}

	ns, err := o.client.Run(ctx, []string{"get", "namespace", o.opts.Namespace}, clusterclient.RunOptions{UseNamespace: false, UseContext: true, LogFailure: true})
	if err != nil {
		return fmt.Errorf("%w: %w", cmderrors.ErrClusterUnreachable, err)
	}

	if !ns.Succeeded() {
		return fmt.Errorf("%w: namespace %s not found", cmderrors.ErrClusterUnreachable, o.opts.Namespace)
	}

	return nil
}

func (o *Orchestrator) bindings() render.Bindings {
	bindings := render.Bindings{}

	for k, v := range o.opts.Bindings {
		bindings[k] = v
	}

	bindings["current_sha"] = o.opts.CurrentSHA

	shaPrefix := o.opts.CurrentSHA
	if len(shaPrefix) > 8 {
		shaPrefix = shaPrefix[:8]
	}

	bindings["deployment_id"] = shaPrefix + "-" + util.RandomHex(8)

	return bindings
}

func (o *Orchestrator) discoverResources(ctx context.Context) error {
	extractor, err := events.New(o.client, 0)
	if err != nil {
		return err
	}

	d := discovery.New(o.opts.TemplateDir, o.bindings(), o.client, o.renderer, extractor, o.log)

	found, err := d.Discover(ctx)
	if err != nil {
		return err
	}

	o.resources = found

	return nil
}

func (o *Orchestrator) initialSync(ctx context.Context) error {
	for _, r := range o.resources {
		if err := r.Sync(ctx); err != nil {
			return err
		}

		o.log.Info(r.PrettyStatus())
	}

	return nil
}

func (o *Orchestrator) provisionSecrets(ctx context.Context) error {
	changesRequired, err := o.secrets.ChangesRequired(ctx)
	if err != nil {
		return err
	}

	if !changesRequired {
		return nil
	}

	return o.secrets.Apply(ctx)
}

// predeploy runs each priority kind, in order, fully to convergence
// before moving to the next. A kind with no matching resources is
// skipped.
func (o *Orchestrator) predeploy(ctx context.Context) error {
	for _, kind := range constants.PredeployPriority {
		subset := o.resourcesOfKind(kind)
		if len(subset) == 0 {
			continue
		}

		if err := o.deployAndWatch(ctx, subset); err != nil {
			return err
		}

		if failure := firstUnsuccessful(subset); failure != nil {
			return fmt.Errorf("%w: predeploy kind %s: %s", cmderrors.ErrResourceFailed, kind, failure.DebugMessage(ctx))
		}
	}

	return nil
}

// resourcesOfKind returns every resource of the given kind, sorted by
// Identifier so the predeploy CLI invocation order for a kind is
// deterministic regardless of the order discovery happened to return them.
func (o *Orchestrator) resourcesOfKind(kind string) []resources.Resource {
	var subset []resources.Resource

	for _, r := range o.resources {
		if r.Kind() == kind {
			subset = append(subset, r)
		}
	}

	slices.SortFunc(subset, func(a, b resources.Resource) int {
		return strings.Compare(a.Identifier(), b.Identifier())
	})

	return subset
}

func (o *Orchestrator) deployAll(ctx context.Context) error {
	return o.deployAndWatch(ctx, o.remainingResources())
}

// remainingResources excludes anything the predeploy phase already fully
// converged.
func (o *Orchestrator) remainingResources() []resources.Resource {
	var remaining []resources.Resource

	for _, r := range o.resources {
		if !slices.Contains(constants.PredeployPriority, r.Kind()) {
			remaining = append(remaining, r)
		}
	}

	return remaining
}

func (o *Orchestrator) deployAndWatch(ctx context.Context, subset []resources.Resource) error {
	if len(subset) == 0 {
		return nil
	}

	d := deploy.New(o.client, o.opts.Namespace, o.opts.Prune, o.log)

	if err := d.Deploy(ctx, subset); err != nil {
		return err
	}

	if o.opts.SkipWait {
		return nil
	}

	return watch.New(o.log).Watch(ctx, subset)
}

func (o *Orchestrator) watchAll(_ context.Context) error {
	// Watching happens inline with each deploy (predeploy subsets and
	// the main deploy) so a predeploy failure short-circuits before the
	// main deploy is ever attempted. This phase exists for the trace
	// span and final-state logging.
	for _, r := range o.resources {
		o.log.Info(r.PrettyStatus())
	}

	return nil
}

// resourceReport is one resource's entry in the --json-report output.
type resourceReport struct {
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	DebugMessage string `json:"debug_message,omitempty"`
}

// jsonReport is the --json-report document written at Verdict time.
type jsonReport struct {
	Success   bool             `json:"success"`
	Resources []resourceReport `json:"resources"`
}

func (o *Orchestrator) verdict(ctx context.Context) error {
	var failures []resources.Resource

	report := jsonReport{Success: true}

	for _, r := range o.resources {
		kind := r.Kind()

		entry := resourceReport{Kind: kind, Name: r.Name()}

		switch {
		case r.DeploySucceeded():
			entry.Status = "succeeded"
			o.recordResourceOutcome(kind, "succeeded")
		case r.DeployTimedOut():
			entry.Status = "timed_out"
			entry.DebugMessage = r.DebugMessage(ctx)
			o.recordResourceOutcome(kind, "timed_out")
			failures = append(failures, r)
			report.Success = false
		default:
			entry.Status = "failed"
			entry.DebugMessage = r.DebugMessage(ctx)
			o.recordResourceOutcome(kind, "failed")
			failures = append(failures, r)
			report.Success = false
		}

		report.Resources = append(report.Resources, entry)
	}

	if o.opts.JSONReportPath != "" {
		if err := writeJSONReport(o.opts.JSONReportPath, report); err != nil {
			o.log.Info("json report write failed", "path", o.opts.JSONReportPath, "error", err.Error())
		}
	}

	if len(failures) == 0 {
		return nil
	}

	var b strings.Builder

	for _, entry := range report.Resources {
		if entry.DebugMessage == "" {
			continue
		}

		b.WriteString(entry.DebugMessage)
		b.WriteString("\n")
	}

	return fmt.Errorf("%w:\n%s", cmderrors.ErrResourceFailed, b.String())
}

func writeJSONReport(path string, report jsonReport) error {
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding json report: %w", err)
	}

	return os.WriteFile(path, append(encoded, '\n'), 0o600)
}

func (o *Orchestrator) recordResourceOutcome(kind, state string) {
	if o.recorder != nil {
		o.recorder.ObserveResource(kind, state)
	}
}

func firstUnsuccessful(subset []resources.Resource) resources.Resource {
	for _, r := range subset {
		if !r.DeploySucceeded() {
			return r
		}
	}

	return nil
}
