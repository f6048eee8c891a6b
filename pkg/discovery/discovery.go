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

// Package discovery walks a template directory, renders each document,
// validates it against the cluster with a dry-run, and turns the result
// into the Resource set the rest of a deploy operates on.
package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	cmderrors "github.com/eschercloudai/kubernetes-deploy/pkg/cmd/errors"
	"github.com/eschercloudai/kubernetes-deploy/pkg/events"
	"github.com/eschercloudai/kubernetes-deploy/pkg/render"
	"github.com/eschercloudai/kubernetes-deploy/pkg/resources"
	"github.com/eschercloudai/kubernetes-deploy/pkg/util"
)

// InvalidTemplateError carries the rendered content and CLI stderr for a
// document that failed dry-run validation.
type InvalidTemplateError struct {
	Source  string
	Content string
	Stderr  string
}

func (e *InvalidTemplateError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Source, cmderrors.ErrInvalidTemplate, e.Stderr)
}

func (e *InvalidTemplateError) Unwrap() error {
	return cmderrors.ErrInvalidTemplate
}

// Discovery enumerates, renders and validates the manifests in a single
// template directory.
type Discovery struct {
	dir            string
	bindings       render.Bindings
	client         *clusterclient.Client
	renderer       render.Renderer
	eventExtractor *events.Extractor
	tempDir        string
	log            logr.Logger
}

// New returns a Discovery rooted at dir. renderer is used for ".yml.erb"
// documents only; plain ".yml" documents are always passed through
// unchanged. eventExtractor is threaded straight into every classified
// Resource so FetchEvents shares one "seen" cache for the run; nil leaves
// event fetching a no-op, which the teacher-style dispatch stubs in tests
// rely on.
func New(dir string, bindings render.Bindings, client *clusterclient.Client, renderer render.Renderer, eventExtractor *events.Extractor, log logr.Logger) *Discovery {
	return &Discovery{
		dir:            dir,
		bindings:       bindings,
		client:         client,
		renderer:       renderer,
		eventExtractor: eventExtractor,
		log:            log,
	}
}

// Discover renders, splits, validates and classifies every manifest
// document under the template directory. The temporary files it writes
// survive for the lifetime of the Discovery value - the Deployer reads
// them back by path - and are not cleaned up here; call Close when the
// deploy is done with them.
func (d *Discovery) Discover(ctx context.Context) ([]resources.Resource, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading template directory: %w", cmderrors.ErrInvalidConfiguration, err)
	}

	names := matchingFilenames(entries)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no manifest files found in %s", cmderrors.ErrInvalidConfiguration, d.dir)
	}

	if d.tempDir == "" {
		tempDir, err := os.MkdirTemp("", "kubernetes-deploy-*")
		if err != nil {
			return nil, fmt.Errorf("creating temp directory: %w", err)
		}

		d.tempDir = tempDir
	}

	var result []resources.Resource

	for _, name := range names {
		discovered, err := d.discoverFile(ctx, name)
		if err != nil {
			return nil, err
		}

		result = append(result, discovered...)
	}

	return result, nil
}

// Close removes any temporary manifest files written during Discover.
func (d *Discovery) Close() error {
	if d.tempDir == "" {
		return nil
	}

	return os.RemoveAll(d.tempDir)
}

func matchingFilenames(entries []os.DirEntry) []string {
	var names []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if strings.HasSuffix(entry.Name(), ".yml") || strings.HasSuffix(entry.Name(), ".yml.erb") {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	return names
}

func (d *Discovery) discoverFile(ctx context.Context, name string) ([]resources.Resource, error) {
	path := filepath.Join(d.dir, name)

	raw, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", cmderrors.ErrInvalidConfiguration, name, err)
	}

	renderer := render.Renderer(render.Passthrough{})
	if strings.HasSuffix(name, ".yml.erb") {
		renderer = d.renderer
	}

	rendered, err := renderer.Render(name, string(raw), d.bindings)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering %s: %w", cmderrors.ErrInvalidTemplate, name, err)
	}

	var found []resources.Resource

	for i, doc := range util.SplitYAML(rendered) {
		resource, err := d.validateAndClassify(ctx, name, i, doc)
		if err != nil {
			return nil, err
		}

		found = append(found, resource)
	}

	return found, nil
}

func (d *Discovery) validateAndClassify(ctx context.Context, source string, index int, doc string) (resources.Resource, error) {
	tempPath := filepath.Join(d.tempDir, fmt.Sprintf("%s.%d.yml", strings.TrimSuffix(source, ".erb"), index))

	if err := os.WriteFile(tempPath, []byte(doc), 0o600); err != nil {
		return nil, fmt.Errorf("writing rendered manifest %s: %w", tempPath, err)
	}

	kind, name, err := decodeKindName(doc)
	if err != nil {
		return nil, &InvalidTemplateError{Source: source, Content: doc, Stderr: err.Error()}
	}

	result, err := d.client.Run(ctx, []string{"create", "-f", tempPath, "--dry-run=client", "--output=name"}, clusterclient.RunOptions{
		UseNamespace: true,
		UseContext:   true,
		LogFailure:   false,
	})
	if err != nil {
		return nil, fmt.Errorf("dry-run validating %s: %w", tempPath, err)
	}

	if !result.Succeeded() {
		return nil, &InvalidTemplateError{Source: source, Content: doc, Stderr: result.Stderr}
	}

	return resources.NewForType(d.client, kind, name, d.client.Namespace(), d.client.Context(), tempPath, d.log, d.eventExtractor), nil
}

// decodeKindName recovers the authored Kind and metadata.name from a
// rendered document via the same YAML->JSON->unstructured round trip a
// typed client-go reader takes against API server JSON, rather than
// inferring them from the dry-run CLI's "--output=name" text. The dry-run
// call remains the authority on whether the document is actually valid
// against the cluster (an unknown CRD kind decodes here just fine and is
// only caught there) - this only replaces how Kind/Name are read off a
// document already known to parse.
func decodeKindName(doc string) (string, string, error) {
	var obj unstructured.Unstructured

	if err := yaml.Unmarshal([]byte(doc), &obj); err != nil {
		return "", "", fmt.Errorf("decoding manifest: %w", err)
	}

	if obj.GetKind() == "" || obj.GetName() == "" {
		return "", "", fmt.Errorf("manifest is missing kind or metadata.name")
	}

	return obj.GetKind(), obj.GetName(), nil
}
