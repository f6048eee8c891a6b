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

package errors

import (
	"errors"
)

var (
	// ErrInvalidConfiguration is raised when the deploy's static
	// configuration (kubeconfig, template directory, namespace, context)
	// fails validation before anything touches the cluster.
	ErrInvalidConfiguration = errors.New("invalid deploy configuration")

	// ErrProtectedNamespace is raised when prune is requested against a
	// protected namespace. There is no override for this one.
	ErrProtectedNamespace = errors.New("prune is not permitted against a protected namespace")

	// ErrClusterUnreachable is raised when the target context or
	// namespace can't be confirmed to exist.
	ErrClusterUnreachable = errors.New("cluster context or namespace could not be confirmed")

	// ErrInvalidTemplate is raised when a rendered manifest fails its
	// dry-run validation.
	ErrInvalidTemplate = errors.New("template failed validation")

	// ErrApplyFailed is raised when the apply-batch CLI invocation exits
	// non-zero.
	ErrApplyFailed = errors.New("apply failed")

	// ErrReplaceFailed is raised when an individual replace (and its
	// create fallback) both fail.
	ErrReplaceFailed = errors.New("replace failed")

	// ErrResourceFailed is raised when the verdict step finds at least
	// one resource that did not succeed.
	ErrResourceFailed = errors.New("one or more resources failed to deploy")

	// ErrNotFound is raised when a requested resource name isn't found.
	ErrNotFound = errors.New("resource name not found")
)
