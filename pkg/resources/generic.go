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

package resources

import (
	"context"
	"sync"

	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
)

// Generic is returned by the factory for any kind it doesn't have a
// dedicated implementation for. Sync is a no-op, and success is assumed -
// with a one-time warning the first time it's asked whether it succeeded.
type Generic struct {
	base

	warnOnce sync.Once
}

var _ Resource = &Generic{}

func newGeneric(b base) *Generic {
	if b.timeout == 0 {
		b.timeout = constants.DefaultTimeout
	}

	return &Generic{base: b}
}

func (g *Generic) Sync(_ context.Context) error {
	g.statusText = "unmonitored kind, assumed healthy"

	return nil
}

func (g *Generic) DeploySucceeded() bool {
	g.warnOnce.Do(func() {
		g.log.Info("unrecognized kind, assuming success", "kind", g.kind, "name", g.name)
	})

	return true
}

func (g *Generic) DeployFailed() bool {
	return false
}

func (g *Generic) FetchEvents(_ context.Context) ([]string, error) {
	return nil, nil
}

func (g *Generic) DebugMessage(_ context.Context) string {
	return g.PrettyStatus()
}

func (g *Generic) DeployFinished() bool {
	return g.DeployFailed() || g.DeploySucceeded() || g.DeployTimedOut()
}
