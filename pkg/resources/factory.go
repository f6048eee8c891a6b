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
	"github.com/go-logr/logr"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	"github.com/eschercloudai/kubernetes-deploy/pkg/events"
)

// existentialKinds recognizes the kinds that default to
// existence-implies-success without a dedicated status interpreter.
var existentialKinds = map[string]bool{
	"Ingress":               true,
	"PersistentVolumeClaim": true,
	"PodDisruptionBudget":   true,
	"PodTemplate":           true,
	"Cloudsql":              true,
	"Redis":                 true,
	"Bugsnag":               true,
}

// NewForType is the single place kind discrimination happens. Anything it
// doesn't recognize falls back to Generic: sync is a no-op, and success is
// assumed with a one-time warning.
func NewForType(client *clusterclient.Client, kind, name, namespace, context, manifestPath string, log logr.Logger, eventExtractor *events.Extractor) Resource {
	b := base{
		kind:           kind,
		name:           name,
		namespace:      namespace,
		context:        context,
		manifestPath:   manifestPath,
		client:         client,
		eventExtractor: eventExtractor,
		log:            log.WithValues("kind", kind, "name", name),
	}

	switch {
	case kind == "ConfigMap":
		return newConfigMap(b)
	case kind == "Service":
		return newService(b)
	case kind == "Deployment":
		return newDeployment(b)
	case kind == "ReplicaSet":
		return newReplicaSet(b)
	case kind == "Pod":
		return newPod(b)
	case existentialKinds[kind]:
		return newExistential(b)
	default:
		return newGeneric(b)
	}
}
