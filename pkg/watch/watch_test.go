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

package watch_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-logr/logr"

	"github.com/eschercloudai/kubernetes-deploy/pkg/resources"
	"github.com/eschercloudai/kubernetes-deploy/pkg/watch"
)

// fakeResource converges to success after a fixed number of Sync calls.
type fakeResource struct {
	name        string
	syncsToGo   atomic.Int32
	deployStart time.Time
	timeout     time.Duration
}

var _ resources.Resource = &fakeResource{}

func (f *fakeResource) Kind() string                 { return "Fake" }
func (f *fakeResource) Name() string                 { return f.name }
func (f *fakeResource) Identifier() string            { return "Fake/" + f.name }
func (f *fakeResource) ManifestPath() string          { return "" }
func (f *fakeResource) Parent() string                { return "" }
func (f *fakeResource) SetDeployStartedAt(t time.Time) { f.deployStart = t }
func (f *fakeResource) DeployStartedAt() time.Time     { return f.deployStart }
func (f *fakeResource) Exists() bool                   { return true }
func (f *fakeResource) Timeout() time.Duration         { return f.timeout }
func (f *fakeResource) DeployMethod() resources.DeployMethod {
	return resources.DeployMethodApply
}
func (f *fakeResource) StatusText() string { return "status" }
func (f *fakeResource) PrettyStatus() string {
	return f.Identifier() + ": " + f.StatusText()
}
func (f *fakeResource) FetchEvents(_ context.Context) ([]string, error) { return nil, nil }
func (f *fakeResource) DebugMessage(_ context.Context) string           { return "" }

func (f *fakeResource) Sync(_ context.Context) error {
	f.syncsToGo.Add(-1)
	return nil
}

func (f *fakeResource) DeploySucceeded() bool {
	return f.syncsToGo.Load() <= 0
}

func (f *fakeResource) DeployFailed() bool {
	return false
}

func (f *fakeResource) DeployTimedOut() bool {
	if f.deployStart.IsZero() {
		return false
	}

	return time.Since(f.deployStart) > f.timeout
}

func (f *fakeResource) DeployFinished() bool {
	return f.DeployFailed() || f.DeploySucceeded() || f.DeployTimedOut()
}

func TestWatchReturnsOnceAllResourcesConverge(t *testing.T) {
	t.Parallel()

	r := &fakeResource{name: "one", timeout: time.Minute}
	r.syncsToGo.Store(2)

	w := watch.New(logr.Discard()).WithPollInterval(time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, w.Watch(ctx, []resources.Resource{r}))
	assert.True(t, r.DeploySucceeded())
}

func TestWatchStopsOnResourceTimeout(t *testing.T) {
	t.Parallel()

	r := &fakeResource{name: "stuck", timeout: time.Millisecond}
	r.syncsToGo.Store(1000)
	r.SetDeployStartedAt(time.Now().Add(-time.Hour))

	w := watch.New(logr.Discard()).WithPollInterval(time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, w.Watch(ctx, []resources.Resource{r}))
	assert.True(t, r.DeployTimedOut())
}
