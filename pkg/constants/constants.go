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

package constants

import (
	"fmt"
	"os"
	"path"
	"time"
)

var (
	// Application is the application name.
	//nolint:gochecknoglobals
	Application = path.Base(os.Args[0])

	// Version is the application version set via the Makefile.
	//nolint:gochecknoglobals
	Version string

	// Revision is the git revision set via the Makefile.
	//nolint:gochecknoglobals
	Revision string
)

// VersionString returns a canonical version string.
func VersionString() string {
	return fmt.Sprintf("%s/%s (revision/%s)", Application, Version, Revision)
}

// Protected namespaces may never be pruned, and require an explicit
// override flag to be deployed to at all.
var ProtectedNamespaces = map[string]bool{
	"default":     true,
	"kube-system": true,
	"kube-public": true,
}

// PredeployPriority is the fixed, ordered sequence of kinds that are fully
// converged before the main deploy begins. Order matters: kind K+1 never
// starts until every resource of kind K has finished.
var PredeployPriority = []string{
	"Cloudsql",
	"Redis",
	"Bugsnag",
	"ConfigMap",
	"PersistentVolumeClaim",
	"Pod",
}

// Default per-kind timeouts, spec §4.9.
const (
	DefaultTimeout   = 5 * time.Minute
	ConfigMapTimeout = 30 * time.Second
)

// WatchPollInterval is how often the ResourceWatcher re-syncs the
// in-flight set.
const WatchPollInterval = 4 * time.Second

// EventLookbackSlop is subtracted from deploy_started_at when deciding
// whether a cluster event is "seen" - it accounts for clock skew between
// this process and the event source.
const EventLookbackSlop = 5 * time.Second

// PruneWhitelistCommon is present for every server version.
var PruneWhitelistCommon = []string{
	"core/v1/ConfigMap",
	"core/v1/Pod",
	"core/v1/Service",
	"batch/v1/Job",
	"extensions/v1beta1/DaemonSet",
	"extensions/v1beta1/Deployment",
	"extensions/v1beta1/Ingress",
	"apps/v1beta1/StatefulSet",
}

const (
	// HPAWhitelistLegacy is used against a 1.5 server.
	HPAWhitelistLegacy = "extensions/v1beta1/HorizontalPodAutoscaler"

	// HPAWhitelistCurrent is used against anything newer than 1.5.
	HPAWhitelistCurrent = "autoscaling/v1/HorizontalPodAutoscaler"
)
