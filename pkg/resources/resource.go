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

// Package resources implements the per-kind status interpretation that
// tells an apply apart from a successful rollout. Resource stands in for
// the teacher's provisioners.Provisioner/readiness.Check pair, generalized
// from a single boolean readiness check into the full
// succeeded/failed/timed-out triad a deploy has to reason about.
package resources

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	"github.com/eschercloudai/kubernetes-deploy/pkg/events"
)

// Existence is tri-valued so "never synced" is distinguishable from "synced
// and confirmed absent" - invariant 1 depends on this distinction.
type Existence int

const (
	ExistenceUnknown Existence = iota
	ExistencePresent
	ExistenceAbsent
)

// DeployMethod selects how the Deployer submits a resource.
type DeployMethod int

const (
	// DeployMethodApply batches the resource into the single "apply -f"
	// invocation.
	DeployMethodApply DeployMethod = iota

	// DeployMethodReplace issues an individual "replace -f", falling back
	// to "create -f" if the resource doesn't exist yet.
	DeployMethodReplace

	// DeployMethodReplaceForce is DeployMethodReplace with "--force".
	DeployMethodReplaceForce
)

// Resource is the central entity of a deploy: one per discovered manifest
// document, plus transient children discovered while syncing a parent
// (Deployment -> ReplicaSet -> Pod).
type Resource interface {
	// Kind is the resource's kind tag, e.g. "Deployment".
	Kind() string

	// Name is the resource's name.
	Name() string

	// Identifier is a display string "kind/name", used as a map key and
	// in log lines.
	Identifier() string

	// ManifestPath is the path of the manifest document this resource
	// was discovered from, or "" for transiently discovered resources.
	ManifestPath() string

	// Parent is a display string for a resource discovered as the child
	// of another (a ReplicaSet inside a Deployment), or "" for a
	// top-level resource.
	Parent() string

	// Sync fetches the latest status from the cluster. It is read-only
	// and idempotent, and must never be invoked concurrently with
	// itself for the same Resource.
	Sync(ctx context.Context) error

	// SetDeployStartedAt records when the Deployer dispatched this
	// resource's apply/replace/create call. Must be set before any
	// timeout predicate can fire.
	SetDeployStartedAt(t time.Time)

	// DeployStartedAt returns the dispatch time, or the zero Time if
	// unset.
	DeployStartedAt() time.Time

	// Exists reports whether the resource was found on the last Sync.
	Exists() bool

	// DeploySucceeded reports whether the rollout has converged.
	DeploySucceeded() bool

	// DeployFailed reports whether the rollout has definitively failed.
	DeployFailed() bool

	// DeployTimedOut reports whether the per-resource timeout has
	// elapsed without success or failure. Always false until
	// SetDeployStartedAt has been called.
	DeployTimedOut() bool

	// DeployFinished is DeployFailed || DeploySucceeded || DeployTimedOut.
	DeployFinished() bool

	// Timeout is this resource kind's allotted convergence time.
	Timeout() time.Duration

	// DeployMethod selects how the Deployer submits this resource.
	DeployMethod() DeployMethod

	// StatusText is a short, human readable summary of the last Sync.
	StatusText() string

	// PrettyStatus renders a one-line status suitable for watcher
	// transition logging.
	PrettyStatus() string

	// FetchEvents collects cluster events relevant to this resource.
	// Read-only, idempotent.
	FetchEvents(ctx context.Context) ([]string, error)

	// DebugMessage aggregates status, events and (where available) logs
	// into a multi-line diagnostic for a failed or timed-out resource.
	DebugMessage(ctx context.Context) string
}

// LogFetcher is implemented by resources that can retrieve container logs
// (ReplicaSet, via its pods).
type LogFetcher interface {
	FetchLogs(ctx context.Context) (map[string]string, error)
}

// base holds the fields every kind implementation shares. Embed it, don't
// copy it.
type base struct {
	kind           string
	name           string
	namespace      string
	context        string
	manifestPath   string
	parent         string
	client         *clusterclient.Client
	eventExtractor *events.Extractor
	log            logr.Logger

	deployStartedAt time.Time
	timeout         time.Duration
	deployMethod    DeployMethod

	found      Existence
	statusText string
}

func (b *base) Kind() string         { return b.kind }
func (b *base) Name() string         { return b.name }
func (b *base) ManifestPath() string { return b.manifestPath }
func (b *base) Parent() string       { return b.parent }
func (b *base) Timeout() time.Duration {
	return b.timeout
}
func (b *base) DeployMethod() DeployMethod { return b.deployMethod }
func (b *base) StatusText() string         { return b.statusText }

func (b *base) Identifier() string {
	return b.kind + "/" + b.name
}

func (b *base) SetDeployStartedAt(t time.Time) {
	b.deployStartedAt = t
}

func (b *base) DeployStartedAt() time.Time {
	return b.deployStartedAt
}

func (b *base) Exists() bool {
	return b.found == ExistencePresent
}

// DeployTimedOut implements the shared "own timer" half of the timeout
// predicate; kinds with children OR it with their children's timeouts.
func (b *base) DeployTimedOut() bool {
	if b.deployStartedAt.IsZero() {
		return false
	}

	return time.Since(b.deployStartedAt) > b.timeout
}

func (b *base) PrettyStatus() string {
	return b.kind + "/" + b.name + ": " + b.statusText
}
