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
	"encoding/json"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
)

// revisionAnnotation records which ReplicaSet a Deployment rollout
// currently owns.
const revisionAnnotation = "deployment.kubernetes.io/revision"

// Deployment delegates most of its rollout judgement to its latest
// ReplicaSet, found fresh on every Sync by matching owner UID and
// revision annotation - there is no persistent parent/child link.
type Deployment struct {
	base

	replicas           int32
	updatedReplicas    int32
	availableReplicas  int32
	unavailableReplicas int32

	latestRS *ReplicaSet
}

var _ Resource = &Deployment{}
var _ LogFetcher = &Deployment{}

func newDeployment(b base) *Deployment {
	b.timeout = constants.DefaultTimeout

	return &Deployment{base: b}
}

func (d *Deployment) Sync(ctx context.Context) error {
	result, err := d.client.Run(ctx, []string{"get", "deployment", d.name, "--output=json"}, clusterclient.DefaultRunOptions())
	if err != nil {
		return err
	}

	if !result.Succeeded() {
		d.found = ExistenceAbsent
		d.statusText = "not found"
		d.latestRS = nil

		return nil
	}

	var dep appsv1.Deployment
	if err := json.Unmarshal([]byte(result.Stdout), &dep); err != nil {
		return fmt.Errorf("parsing deployment %s: %w", d.name, err)
	}

	d.found = ExistencePresent
	d.replicas = dep.Status.Replicas
	d.updatedReplicas = dep.Status.UpdatedReplicas
	d.availableReplicas = dep.Status.AvailableReplicas
	d.unavailableReplicas = dep.Status.UnavailableReplicas

	latest, err := d.findLatestReplicaSet(ctx, &dep)
	if err != nil {
		return err
	}

	d.latestRS = latest

	d.statusText = fmt.Sprintf(
		"%d updated, %d replicas, %d available, %d unavailable",
		d.updatedReplicas, d.replicas, d.availableReplicas, d.unavailableReplicas,
	)

	return nil
}

func (d *Deployment) findLatestReplicaSet(ctx context.Context, dep *appsv1.Deployment) (*ReplicaSet, error) {
	selector := labelSelectorString(dep.Spec.Selector.MatchLabels)
	if selector == "" {
		return nil, nil
	}

	result, err := d.client.Run(ctx, []string{"get", "replicaset", "--selector=" + selector, "--output=json"}, clusterclient.DefaultRunOptions())
	if err != nil {
		return nil, err
	}

	if !result.Succeeded() {
		return nil, nil
	}

	var list appsv1.ReplicaSetList
	if err := json.Unmarshal([]byte(result.Stdout), &list); err != nil {
		return nil, fmt.Errorf("parsing replicaset list for deployment %s: %w", d.name, err)
	}

	revision := dep.Annotations[revisionAnnotation]

	for i := range list.Items {
		rs := list.Items[i]

		if !ownedBy(rs.OwnerReferences, dep.UID) {
			continue
		}

		if rs.Annotations[revisionAnnotation] != revision {
			continue
		}

		child := newReplicaSet(base{
			kind:      "ReplicaSet",
			name:      rs.Name,
			namespace: d.namespace,
			context:   d.context,
			parent:    d.Identifier(),
			client:    d.client,
			log:       d.log,
		})
		child.SetDeployStartedAt(d.deployStartedAt)

		if err := child.feed(ctx, &rs); err != nil {
			return nil, err
		}

		return child, nil
	}

	return nil, nil
}

func (d *Deployment) DeploySucceeded() bool {
	if d.latestRS == nil || !d.latestRS.DeploySucceeded() {
		return false
	}

	return d.updatedReplicas == d.replicas && d.replicas == d.availableReplicas
}

func (d *Deployment) DeployFailed() bool {
	if d.latestRS == nil {
		return false
	}

	return d.latestRS.DeployFailed()
}

func (d *Deployment) DeployTimedOut() bool {
	if d.base.DeployTimedOut() {
		return true
	}

	if d.latestRS == nil {
		return false
	}

	return d.latestRS.DeployTimedOut()
}

func (d *Deployment) DeployFinished() bool {
	return d.DeployFailed() || d.DeploySucceeded() || d.DeployTimedOut()
}

func (d *Deployment) FetchEvents(ctx context.Context) ([]string, error) {
	return d.base.fetchEvents(ctx)
}

func (d *Deployment) FetchLogs(ctx context.Context) (map[string]string, error) {
	if d.latestRS == nil {
		return nil, nil
	}

	return d.latestRS.FetchLogs(ctx)
}

func (d *Deployment) DebugMessage(ctx context.Context) string {
	return debugMessage(ctx, d)
}
