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

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
)

// ConfigMap is the simplest kind: existence is the whole story.
type ConfigMap struct {
	base
}

var _ Resource = &ConfigMap{}

func newConfigMap(b base) *ConfigMap {
	b.timeout = constants.ConfigMapTimeout

	return &ConfigMap{base: b}
}

func (c *ConfigMap) Sync(ctx context.Context) error {
	result, err := c.client.Run(ctx, []string{"get", "configmap", c.name}, clusterclient.DefaultRunOptions())
	if err != nil {
		return err
	}

	if result.Succeeded() {
		c.found = ExistencePresent
		c.statusText = "present"
	} else {
		c.found = ExistenceAbsent
		c.statusText = "not found"
	}

	return nil
}

func (c *ConfigMap) DeploySucceeded() bool {
	return c.Exists()
}

func (c *ConfigMap) DeployFailed() bool {
	return false
}

func (c *ConfigMap) DeployFinished() bool {
	return c.DeployFailed() || c.DeploySucceeded() || c.DeployTimedOut()
}

func (c *ConfigMap) FetchEvents(ctx context.Context) ([]string, error) {
	return c.base.fetchEvents(ctx)
}

func (c *ConfigMap) DebugMessage(ctx context.Context) string {
	return debugMessage(ctx, c)
}
