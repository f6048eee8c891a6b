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
	"sort"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
)

// Service cross-checks endpoint count against the replica count of the
// single Deployment its selector matches, falling back to "any endpoint
// at all" when the selector doesn't identify exactly one Deployment.
type Service struct {
	base

	endpointCount   int
	matchedReplicas *int32
}

var _ Resource = &Service{}

func newService(b base) *Service {
	b.timeout = constants.DefaultTimeout

	return &Service{base: b}
}

func (s *Service) Sync(ctx context.Context) error {
	result, err := s.client.Run(ctx, []string{"get", "service", s.name, "--output=json"}, clusterclient.DefaultRunOptions())
	if err != nil {
		return err
	}

	if !result.Succeeded() {
		s.found = ExistenceAbsent
		s.statusText = "not found"

		return nil
	}

	s.found = ExistencePresent

	var svc corev1.Service
	if err := json.Unmarshal([]byte(result.Stdout), &svc); err != nil {
		return fmt.Errorf("parsing service %s: %w", s.name, err)
	}

	endpoints, err := s.client.Run(ctx, []string{"get", "endpoints", s.name, "--output=json"}, clusterclient.DefaultRunOptions())
	if err != nil {
		return err
	}

	s.endpointCount = 0

	if endpoints.Succeeded() {
		var ep corev1.Endpoints
		if err := json.Unmarshal([]byte(endpoints.Stdout), &ep); err != nil {
			return fmt.Errorf("parsing endpoints %s: %w", s.name, err)
		}

		for _, subset := range ep.Subsets {
			s.endpointCount += len(subset.Addresses)
		}
	}

	s.matchedReplicas, err = s.matchDeploymentReplicas(ctx, svc.Spec.Selector)
	if err != nil {
		return err
	}

	s.statusText = fmt.Sprintf("%d endpoints", s.endpointCount)

	return nil
}

// matchDeploymentReplicas queries for Deployments matching the service's
// selector. A nil result means the selector didn't identify exactly one
// Deployment, falling success back to "any endpoint".
func (s *Service) matchDeploymentReplicas(ctx context.Context, selector map[string]string) (*int32, error) {
	if len(selector) == 0 {
		return nil, nil
	}

	result, err := s.client.Run(ctx, []string{"get", "deployment", "--selector=" + labelSelectorString(selector), "--output=json"}, clusterclient.DefaultRunOptions())
	if err != nil {
		return nil, err
	}

	if !result.Succeeded() {
		return nil, nil
	}

	var list appsv1.DeploymentList
	if err := json.Unmarshal([]byte(result.Stdout), &list); err != nil {
		return nil, fmt.Errorf("parsing deployment list for service %s: %w", s.name, err)
	}

	if len(list.Items) != 1 {
		return nil, nil
	}

	replicas := list.Items[0].Spec.Replicas
	if replicas == nil {
		one := int32(1)
		replicas = &one
	}

	return replicas, nil
}

func labelSelectorString(selector map[string]string) string {
	keys := make([]string, 0, len(selector))
	for k := range selector {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, selector[k]))
	}

	return strings.Join(parts, ",")
}

func (s *Service) DeploySucceeded() bool {
	if !s.Exists() {
		return false
	}

	if s.matchedReplicas != nil {
		return int32(s.endpointCount) == *s.matchedReplicas
	}

	return s.endpointCount > 0
}

func (s *Service) DeployFailed() bool {
	return false
}

func (s *Service) DeployFinished() bool {
	return s.DeployFailed() || s.DeploySucceeded() || s.DeployTimedOut()
}

func (s *Service) FetchEvents(ctx context.Context) ([]string, error) {
	return s.base.fetchEvents(ctx)
}

func (s *Service) DebugMessage(ctx context.Context) string {
	msg := debugMessage(ctx, s)

	if s.DeployTimedOut() && !s.DeploySucceeded() {
		msg += "hint: endpoint count never matched - check the service selector against the target pods\n"
	}

	return msg
}
