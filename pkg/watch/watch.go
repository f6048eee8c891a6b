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

// Package watch polls a resource set to convergence. Each tick fans its
// Sync calls out concurrently (one resource is never Synced twice at
// once, but distinct resources may be Synced in parallel), the same
// fan-out-with-serialized-log-output shape as
// provisioners/concurrent.Provisioner.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
	"github.com/eschercloudai/kubernetes-deploy/pkg/resources"
)

// Watcher polls a resource set until every resource reports
// DeployFinished, or the context is cancelled.
type Watcher struct {
	pollInterval time.Duration
	log          logr.Logger

	// logMu serializes transition logging across the concurrent Sync
	// fan-out within a single tick.
	logMu sync.Mutex
}

// New returns a Watcher using the default poll interval.
func New(log logr.Logger) *Watcher {
	return &Watcher{pollInterval: constants.WatchPollInterval, log: log}
}

// WithPollInterval overrides the default poll interval, mainly for tests.
func (w *Watcher) WithPollInterval(interval time.Duration) *Watcher {
	w.pollInterval = interval
	return w
}

// Watch polls resourceList until every member is finished. Termination is
// guaranteed by each resource's own timeout, not by this loop.
func (w *Watcher) Watch(ctx context.Context, resourceList []resources.Resource) error {
	lastStatus := make(map[string]string, len(resourceList))

	for {
		active := activeResources(resourceList)
		if len(active) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.pollInterval):
		}

		if err := w.syncTick(ctx, active, lastStatus); err != nil {
			return err
		}
	}
}

func activeResources(resourceList []resources.Resource) []resources.Resource {
	var active []resources.Resource

	for _, r := range resourceList {
		if !r.DeployFinished() {
			active = append(active, r)
		}
	}

	return active
}

func (w *Watcher) syncTick(ctx context.Context, active []resources.Resource, lastStatus map[string]string) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, r := range active {
		r := r

		group.Go(func() error {
			if err := r.Sync(groupCtx); err != nil {
				return err
			}

			w.logTransition(r, lastStatus)

			return nil
		})
	}

	return group.Wait()
}

func (w *Watcher) logTransition(r resources.Resource, lastStatus map[string]string) {
	w.logMu.Lock()
	defer w.logMu.Unlock()

	status := r.PrettyStatus()

	if lastStatus[r.Identifier()] == status {
		return
	}

	lastStatus[r.Identifier()] = status

	w.log.Info(status)
}
