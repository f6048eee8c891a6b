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

// Package deploy submits discovered resources to the cluster: one batched
// "apply" call for everything that uses that method, and one individual
// "replace" (falling back to "create") call per resource that opts out of
// batching.
package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/exp/slices"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	cmderrors "github.com/eschercloudai/kubernetes-deploy/pkg/cmd/errors"
	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
	"github.com/eschercloudai/kubernetes-deploy/pkg/resources"
)

// offendingFilePattern extracts a template path from kubectl's apply
// error output, e.g. `.../cm.yml.0.yml: error validating data: ...`.
var offendingFilePattern = regexp.MustCompile(`(\S+\.ya?ml(?:\.\d+\.ya?ml)?):`)

// Deployer partitions a resource list by deploy method and submits each
// partition with its own CLI invocation.
type Deployer struct {
	client    *clusterclient.Client
	namespace string
	prune     bool
	log       logr.Logger
}

// New returns a Deployer. prune enables "--prune" on the apply batch; the
// caller is responsible for having already rejected prune against a
// protected namespace during validation, but Deploy re-checks regardless.
func New(client *clusterclient.Client, namespace string, prune bool, log logr.Logger) *Deployer {
	return &Deployer{client: client, namespace: namespace, prune: prune, log: log}
}

// Deploy submits every resource, batching DeployMethodApply resources into
// a single call and issuing one call per replace/replace-force resource.
func (d *Deployer) Deploy(ctx context.Context, resourceList []resources.Resource) error {
	if d.prune && constants.ProtectedNamespaces[d.namespace] {
		return fmt.Errorf("%w: namespace %s", cmderrors.ErrProtectedNamespace, d.namespace)
	}

	var applyResources, replaceResources []resources.Resource

	for _, r := range resourceList {
		switch r.DeployMethod() {
		case resources.DeployMethodApply:
			applyResources = append(applyResources, r)
		default:
			replaceResources = append(replaceResources, r)
		}
	}

	now := time.Now().UTC()
	for _, r := range resourceList {
		r.SetDeployStartedAt(now)
	}

	// Individual replaces first, then the apply batch - both read
	// deploy_started_at as already set above, so ordering between the
	// two has no bearing on timeout correctness. It does determine CLI
	// invocation order, which the predeploy-ordering scenario asserts
	// on.
	for _, r := range replaceResources {
		if err := d.replaceOne(ctx, r); err != nil {
			return err
		}
	}

	if len(applyResources) > 0 {
		if err := d.applyBatch(ctx, applyResources); err != nil {
			return err
		}
	}

	return nil
}

func (d *Deployer) applyBatch(ctx context.Context, batch []resources.Resource) error {
	args := []string{"apply"}

	for _, r := range batch {
		args = append(args, "-f", r.ManifestPath())
	}

	if d.prune {
		args = append(args, "--prune", "--all")

		for _, entry := range d.pruneWhitelist(ctx) {
			args = append(args, "--prune-whitelist="+entry)
		}
	}

	result, err := d.client.Run(ctx, args, clusterclient.DefaultRunOptions())
	if err != nil {
		return fmt.Errorf("%w: %w", cmderrors.ErrApplyFailed, err)
	}

	if result.Succeeded() {
		return nil
	}

	return d.applyFailure(result.Stderr)
}

func (d *Deployer) applyFailure(stderr string) error {
	match := offendingFilePattern.FindStringSubmatch(stderr)
	if match == nil {
		return fmt.Errorf("%w: %s", cmderrors.ErrApplyFailed, stderr)
	}

	content, err := os.ReadFile(match[1]) //nolint:gosec
	if err != nil {
		return fmt.Errorf("%w: %s", cmderrors.ErrApplyFailed, stderr)
	}

	return fmt.Errorf("%w: %s\n--- %s ---\n%s", cmderrors.ErrApplyFailed, stderr, match[1], string(content))
}

// pruneWhitelist derives the prune whitelist from the cluster's detected
// server minor version - only the HorizontalPodAutoscaler entry differs.
// Sorted so the "--prune-whitelist=" flags land in the same order on every
// invocation regardless of how the common-entry table is edited.
func (d *Deployer) pruneWhitelist(ctx context.Context) []string {
	whitelist := append([]string{}, constants.PruneWhitelistCommon...)

	if d.isLegacyServer(ctx) {
		whitelist = append(whitelist, constants.HPAWhitelistLegacy)
	} else {
		whitelist = append(whitelist, constants.HPAWhitelistCurrent)
	}

	slices.Sort(whitelist)

	return whitelist
}

func (d *Deployer) isLegacyServer(ctx context.Context) bool {
	result, err := d.client.Run(ctx, []string{"version", "--output=json"}, clusterclient.RunOptions{LogFailure: false})
	if err != nil || !result.Succeeded() {
		return false
	}

	var payload struct {
		ServerVersion struct {
			Major string `json:"major"`
			Minor string `json:"minor"`
		} `json:"serverVersion"`
	}

	if err := json.Unmarshal([]byte(result.Stdout), &payload); err != nil {
		return false
	}

	return payload.ServerVersion.Major == "1" && payload.ServerVersion.Minor == "5"
}

func (d *Deployer) replaceOne(ctx context.Context, r resources.Resource) error {
	args := []string{"replace", "-f", r.ManifestPath()}
	if r.DeployMethod() == resources.DeployMethodReplaceForce {
		args = append(args, "--force")
	}

	result, err := d.client.Run(ctx, args, clusterclient.DefaultRunOptions())
	if err != nil {
		return fmt.Errorf("%w: %s: %w", cmderrors.ErrReplaceFailed, r.Identifier(), err)
	}

	if result.Succeeded() {
		return nil
	}

	create, err := d.client.Run(ctx, []string{"create", "-f", r.ManifestPath()}, clusterclient.DefaultRunOptions())
	if err != nil {
		return fmt.Errorf("%w: %s: %w", cmderrors.ErrReplaceFailed, r.Identifier(), err)
	}

	if !create.Succeeded() {
		return fmt.Errorf("%w: %s: replace: %s; create: %s", cmderrors.ErrReplaceFailed, r.Identifier(), result.Stderr, create.Stderr)
	}

	return nil
}
