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
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
)

// ReplicaSet tracks its owned pods, rebuilt fresh on every Sync. It runs
// in one of two modes: standalone, when discovered as a top-level
// manifest, or child, when fed JSON by a parent Deployment.
type ReplicaSet struct {
	base

	childMode bool

	replicas          int32
	availableReplicas int32
	readyReplicas     int32

	pods []*Pod
}

var _ Resource = &ReplicaSet{}
var _ LogFetcher = &ReplicaSet{}

func newReplicaSet(b base) *ReplicaSet {
	b.timeout = constants.DefaultTimeout

	return &ReplicaSet{base: b}
}

// feed supplies a ReplicaSet's JSON directly, switching it into child
// mode: its own fetch is skipped on every future Sync.
func (r *ReplicaSet) feed(ctx context.Context, rs *appsv1.ReplicaSet) error {
	r.childMode = true
	r.found = ExistencePresent

	return r.interpret(ctx, rs)
}

func (r *ReplicaSet) Sync(ctx context.Context) error {
	if r.childMode {
		return nil
	}

	result, err := r.client.Run(ctx, []string{"get", "replicaset", r.name, "--output=json"}, clusterclient.DefaultRunOptions())
	if err != nil {
		return err
	}

	if !result.Succeeded() {
		r.found = ExistenceAbsent
		r.statusText = "not found"

		return nil
	}

	var rs appsv1.ReplicaSet
	if err := json.Unmarshal([]byte(result.Stdout), &rs); err != nil {
		return fmt.Errorf("parsing replicaset %s: %w", r.name, err)
	}

	r.found = ExistencePresent

	return r.interpret(ctx, &rs)
}

func (r *ReplicaSet) interpret(ctx context.Context, rs *appsv1.ReplicaSet) error {
	r.replicas = rs.Status.Replicas
	r.availableReplicas = rs.Status.AvailableReplicas
	r.readyReplicas = rs.Status.ReadyReplicas

	pods, err := r.listOwnedPods(ctx, rs)
	if err != nil {
		return err
	}

	r.pods = pods
	r.statusText = fmt.Sprintf("%d replicas, %d available, %d ready", r.replicas, r.availableReplicas, r.readyReplicas)

	return nil
}

// listOwnedPods lists pods matching the ReplicaSet's selector - including
// non-running ones, since a pod stuck in Pending is exactly what needs
// reporting - then keeps only those this ReplicaSet actually owns.
func (r *ReplicaSet) listOwnedPods(ctx context.Context, rs *appsv1.ReplicaSet) ([]*Pod, error) {
	selector := labelSelectorString(rs.Spec.Selector.MatchLabels)
	if selector == "" {
		return nil, nil
	}

	result, err := r.client.Run(ctx, []string{"get", "pods", "-a", "--selector=" + selector, "--output=json"}, clusterclient.DefaultRunOptions())
	if err != nil {
		return nil, err
	}

	if !result.Succeeded() {
		return nil, nil
	}

	var list corev1.PodList
	if err := json.Unmarshal([]byte(result.Stdout), &list); err != nil {
		return nil, fmt.Errorf("parsing pod list for replicaset %s: %w", r.name, err)
	}

	pods := make([]*Pod, 0, len(list.Items))

	for i := range list.Items {
		pod := list.Items[i]
		if !ownedBy(pod.OwnerReferences, rs.UID) {
			continue
		}

		p := newPod(base{
			kind:      "Pod",
			name:      pod.Name,
			namespace: r.namespace,
			context:   r.context,
			parent:    r.Identifier(),
			client:    r.client,
			log:       r.log,
		})
		p.SetDeployStartedAt(r.deployStartedAt)
		p.feed(&pod)

		pods = append(pods, p)
	}

	return pods, nil
}

func ownedBy(refs []metav1.OwnerReference, uid types.UID) bool {
	for _, ref := range refs {
		if ref.UID == uid {
			return true
		}
	}

	return false
}

func (r *ReplicaSet) DeploySucceeded() bool {
	return r.replicas == r.availableReplicas && r.replicas == r.readyReplicas
}

func (r *ReplicaSet) DeployFailed() bool {
	if len(r.pods) == 0 {
		return false
	}

	for _, p := range r.pods {
		if !p.DeployFailed() {
			return false
		}
	}

	return true
}

func (r *ReplicaSet) DeployTimedOut() bool {
	if r.base.DeployTimedOut() {
		return true
	}

	if len(r.pods) == 0 {
		return false
	}

	for _, p := range r.pods {
		if !p.DeployTimedOut() {
			return false
		}
	}

	return true
}

func (r *ReplicaSet) DeployFinished() bool {
	return r.DeployFailed() || r.DeploySucceeded() || r.DeployTimedOut()
}

func (r *ReplicaSet) Exists() bool {
	if r.childMode {
		return true
	}

	return r.base.Exists()
}

func (r *ReplicaSet) FetchEvents(ctx context.Context) ([]string, error) {
	return r.base.fetchEvents(ctx)
}

// FetchLogs aggregates each owned pod's container logs, keyed
// "<pod>/<container>".
func (r *ReplicaSet) FetchLogs(ctx context.Context) (map[string]string, error) {
	logs := make(map[string]string)

	for _, p := range r.pods {
		podLogs, err := p.FetchLogs(ctx)
		if err != nil {
			continue
		}

		for k, v := range podLogs {
			logs[k] = v
		}
	}

	return logs, nil
}

func (r *ReplicaSet) DebugMessage(ctx context.Context) string {
	return debugMessage(ctx, r)
}
