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

// Package clusterclient wraps the cluster CLI binary (kubectl, or anything
// that speaks its command line): build a flag-qualified argv from the
// standard Kubernetes config flags and exec it, capturing stdout/stderr/exit
// status as-is. There are no retries here - that's the caller's job.
package clusterclient

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/go-logr/logr"

	"k8s.io/cli-runtime/pkg/genericclioptions"
)

// defaultBinaryEnv names the environment variable that overrides the
// default "kubectl" binary, primarily so tests can point at a stub script.
const defaultBinaryEnv = "KUBERNETES_DEPLOY_BIN"

// RunOptions configures a single invocation.
type RunOptions struct {
	// UseNamespace prepends the namespace flag, default true. Some calls
	// (config get-contexts, get namespace) must suppress this.
	UseNamespace bool

	// UseContext prepends the context flag, default true.
	UseContext bool

	// LogFailure controls whether a non-zero exit is echoed to the logger.
	LogFailure bool
}

// DefaultRunOptions returns the common case: namespaced, contextualized,
// and failures logged.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		UseNamespace: true,
		UseContext:   true,
		LogFailure:   true,
	}
}

// Client is a thin wrapper around the cluster CLI binary. It is the only
// component that talks to the outside world for cluster operations.
type Client struct {
	config    *genericclioptions.ConfigFlags
	namespace string
	context   string
	binary    string
	log       logr.Logger
}

// ResolveBinary returns the cluster CLI binary name a Client constructed
// right now would use: KUBERNETES_DEPLOY_BIN if set, else "kubectl". It is
// exported so callers outside this package (the version subcommand) can
// report it without constructing a Client first.
func ResolveBinary() string {
	if binary := os.Getenv(defaultBinaryEnv); binary != "" {
		return binary
	}

	return "kubectl"
}

// New returns a new Client scoped to the given namespace and context. config
// supplies the kubeconfig path (and any other standard overrides); namespace
// and context are applied per-call per RunOptions.
func New(config *genericclioptions.ConfigFlags, namespace, context string, log logr.Logger) *Client {
	return &Client{
		config:    config,
		namespace: namespace,
		context:   context,
		binary:    ResolveBinary(),
		log:       log,
	}
}

// Namespace returns the namespace this Client applies per-call.
func (c *Client) Namespace() string {
	return c.namespace
}

// Context returns the cluster context this Client applies per-call.
func (c *Client) Context() string {
	return c.context
}

// Result captures the outcome of a single invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Succeeded reports whether the command exited zero.
func (r Result) Succeeded() bool {
	return r.ExitCode == 0
}

// Run invokes the cluster CLI with the given positional arguments, e.g.
// Run(ctx, []string{"get", "deployment", "web", "--output=json"}, opts).
func (c *Client) Run(ctx context.Context, args []string, opts RunOptions) (Result, error) {
	fullArgs := make([]string, 0, len(args)+4)

	if opts.UseContext && c.context != "" {
		fullArgs = append(fullArgs, "--context", c.context)
	}

	if c.config != nil && c.config.KubeConfig != nil && *c.config.KubeConfig != "" {
		fullArgs = append(fullArgs, "--kubeconfig", *c.config.KubeConfig)
	}

	if opts.UseNamespace && c.namespace != "" {
		fullArgs = append(fullArgs, "--namespace", c.namespace)
	}

	fullArgs = append(fullArgs, args...)

	//nolint:gosec
	cmd := exec.CommandContext(ctx, c.binary, fullArgs...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError

	switch {
	case runErr == nil:
		result.ExitCode = 0
	case errorsAsExitError(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		// The binary couldn't even be started - not a normal non-zero
		// exit, surface it as an error rather than a fake exit code.
		return result, runErr
	}

	if result.ExitCode != 0 && opts.LogFailure {
		c.log.Info("cluster command failed", "args", fullArgs, "exitCode", result.ExitCode, "stderr", result.Stderr)
	}

	return result, nil
}

func errorsAsExitError(err error, target **exec.ExitError) bool {
	exitErr, ok := err.(*exec.ExitError) //nolint:errorlint
	if !ok {
		return false
	}

	*target = exitErr

	return true
}
