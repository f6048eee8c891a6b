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

// Package secrets provisions out-of-band secret material (a vault lease,
// a generated TLS cert) ahead of the main deploy. It mirrors the
// external-provisioner seam in provisioners.Provisioner: the orchestrator
// only ever calls ChangesRequired then, conditionally, Apply.
package secrets

import "context"

//go:generate go run go.uber.org/mock/mockgen -source=secrets.go -destination=mock/mock_secrets.go -package=mock

// Provisioner decides whether secret material needs refreshing and
// applies the refresh. Implementations are free to hit any external
// system; the orchestrator treats this as opaque.
type Provisioner interface {
	// ChangesRequired reports whether Apply has anything to do.
	ChangesRequired(ctx context.Context) (bool, error)

	// Apply performs the refresh.
	Apply(ctx context.Context) error
}

// Noop is the default Provisioner: nothing is ever required.
type Noop struct{}

var _ Provisioner = Noop{}

func (Noop) ChangesRequired(_ context.Context) (bool, error) {
	return false, nil
}

func (Noop) Apply(_ context.Context) error {
	return nil
}
