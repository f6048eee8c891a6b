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
	"strings"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
)

// replaceMethodKinds lists kinds that ship via replace rather than apply
// - mostly the custom, state-carrying resources a database or APM
// provider installs via its operator.
var replaceMethodKinds = map[string]bool{
	"Cloudsql": true,
	"Redis":    true,
	"Bugsnag":  true,
}

// Existential covers every kind that defaults to "success means present":
// Ingress, PersistentVolumeClaim, PodDisruptionBudget, PodTemplate, and
// the Cloudsql, Redis and Bugsnag custom-resource tags. Any other kind the
// factory doesn't recognize becomes a Generic, not an Existential.
type Existential struct {
	base
}

var _ Resource = &Existential{}

func newExistential(b base) *Existential {
	b.timeout = constants.DefaultTimeout

	if replaceMethodKinds[b.kind] {
		b.deployMethod = DeployMethodReplace
	}

	return &Existential{base: b}
}

func (e *Existential) Sync(ctx context.Context) error {
	result, err := e.client.Run(ctx, []string{"get", strings.ToLower(e.kind), e.name}, clusterclient.DefaultRunOptions())
	if err != nil {
		return err
	}

	if result.Succeeded() {
		e.found = ExistencePresent
		e.statusText = "present"
	} else {
		e.found = ExistenceAbsent
		e.statusText = "not found"
	}

	return nil
}

func (e *Existential) DeploySucceeded() bool {
	return e.Exists()
}

func (e *Existential) DeployFailed() bool {
	return false
}

func (e *Existential) DeployFinished() bool {
	return e.DeployFailed() || e.DeploySucceeded() || e.DeployTimedOut()
}

func (e *Existential) FetchEvents(ctx context.Context) ([]string, error) {
	return e.base.fetchEvents(ctx)
}

func (e *Existential) DebugMessage(ctx context.Context) string {
	return debugMessage(ctx, e)
}
