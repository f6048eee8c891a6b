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

	corev1 "k8s.io/api/core/v1"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
)

// crashReasons are waiting-container reasons that indicate a pod will
// never converge on its own.
var crashReasons = map[string]bool{
	"CrashLoopBackOff": true,
	"ImagePullBackOff": true,
	"ErrImagePull":     true,
	"CreateContainerConfigError": true,
}

// Pod can be discovered standalone (a top-level manifest) or fed JSON by
// its parent ReplicaSet; feeding a pod JSON short-circuits the fetch in
// Sync.
type Pod struct {
	base

	phase           corev1.PodPhase
	unschedulable   bool
	crashing        string
	containersReady bool
	restartCount    int32

	fed     bool
	fedJSON *corev1.Pod
}

var _ Resource = &Pod{}

func newPod(b base) *Pod {
	b.timeout = constants.DefaultTimeout

	return &Pod{base: b}
}

// feed supplies a Pod's JSON directly, as done by a parent ReplicaSet
// during its own Sync, avoiding a redundant fetch.
func (p *Pod) feed(pod *corev1.Pod) {
	p.fed = true
	p.fedJSON = pod
}

func (p *Pod) Sync(ctx context.Context) error {
	var pod corev1.Pod

	if p.fed && p.fedJSON != nil {
		pod = *p.fedJSON
	} else {
		result, err := p.client.Run(ctx, []string{"get", "pod", p.name, "--output=json"}, clusterclient.DefaultRunOptions())
		if err != nil {
			return err
		}

		if !result.Succeeded() {
			p.found = ExistenceAbsent
			p.statusText = "not found"

			return nil
		}

		if err := json.Unmarshal([]byte(result.Stdout), &pod); err != nil {
			return fmt.Errorf("parsing pod %s: %w", p.name, err)
		}
	}

	p.found = ExistencePresent
	p.interpret(&pod)

	return nil
}

func (p *Pod) interpret(pod *corev1.Pod) {
	p.phase = pod.Status.Phase
	p.unschedulable = false
	p.crashing = ""
	p.containersReady = len(pod.Status.ContainerStatuses) > 0

	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodScheduled && cond.Status == corev1.ConditionFalse && cond.Reason == "Unschedulable" {
			p.unschedulable = true
		}
	}

	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			p.containersReady = false
		}

		if cs.RestartCount > p.restartCount {
			p.restartCount = cs.RestartCount
		}

		if cs.State.Waiting != nil && crashReasons[cs.State.Waiting.Reason] {
			p.crashing = cs.State.Waiting.Reason
		}
	}

	switch {
	case p.phase == corev1.PodSucceeded:
		p.statusText = "completed"
	case p.unschedulable:
		p.statusText = "unschedulable"
	case p.crashing != "":
		p.statusText = p.crashing
	case p.phase == corev1.PodFailed:
		p.statusText = "failed"
	case p.containersReady:
		p.statusText = "ready"
	default:
		p.statusText = "phase=" + string(p.phase)
	}
}

func (p *Pod) DeploySucceeded() bool {
	if !p.Exists() {
		return false
	}

	return p.phase == corev1.PodSucceeded || p.containersReady
}

func (p *Pod) DeployFailed() bool {
	if !p.Exists() {
		return false
	}

	return p.phase == corev1.PodFailed || p.unschedulable || p.crashing != ""
}

func (p *Pod) DeployFinished() bool {
	return p.DeployFailed() || p.DeploySucceeded() || p.DeployTimedOut()
}

func (p *Pod) FetchEvents(ctx context.Context) ([]string, error) {
	return p.base.fetchEvents(ctx)
}

func (p *Pod) FetchLogs(ctx context.Context) (map[string]string, error) {
	if p.fedJSON == nil {
		return nil, nil
	}

	logs := make(map[string]string, len(p.fedJSON.Spec.Containers))

	for _, c := range p.fedJSON.Spec.Containers {
		args := []string{"logs", p.name, "--container=" + c.Name, "--tail=250"}
		if !p.deployStartedAt.IsZero() {
			args = append(args, "--since-time="+p.deployStartedAt.UTC().Format("2006-01-02T15:04:05Z"))
		}

		result, err := p.client.Run(ctx, args, clusterclient.DefaultRunOptions())
		if err != nil {
			continue
		}

		logs[p.name+"/"+c.Name] = result.Stdout
	}

	return logs, nil
}

func (p *Pod) DebugMessage(ctx context.Context) string {
	return debugMessage(ctx, p)
}
