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

package events_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-logr/logr"

	"k8s.io/cli-runtime/pkg/genericclioptions"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	"github.com/eschercloudai/kubernetes-deploy/pkg/events"
)

func stubEventScript(t *testing.T, records []string) string {
	t.Helper()

	dir := t.TempDir()
	script := filepath.Join(dir, "events.sh")

	joined := ""
	for _, r := range records {
		joined += r + "\x1e"
	}

	content := "#!/bin/sh\nprintf '%s' '" + joined + "'\n"

	require.NoError(t, os.WriteFile(script, []byte(content), 0o755)) //nolint:gosec

	return script
}

func TestFetchFiltersIgnoredReasonsAndOldEvents(t *testing.T) {

	now := time.Now().UTC().Truncate(time.Second)

	records := []string{
		"Pod\x1fweb-1\x1f3\x1f" + now.Format(time.RFC3339) + "\x1fBackOff\x1fcrash looping",
		"Pod\x1fweb-1\x1f1\x1f" + now.Format(time.RFC3339) + "\x1fCreated\x1fcreated container",
		"Pod\x1fweb-1\x1f1\x1f" + now.Add(-time.Hour).Format(time.RFC3339) + "\x1fFailed\x1fstale failure",
	}

	script := stubEventScript(t, records)

	t.Setenv("KUBERNETES_DEPLOY_BIN", script)

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "ns", "ctx", logr.Discard())

	extractor, err := events.New(client, 0)
	require.NoError(t, err)

	texts, err := extractor.Fetch(context.Background(), "Pod", "web-1", now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "BackOff")
	assert.Contains(t, texts[0], "crash looping")
	assert.Contains(t, texts[0], "(3 events)")
}

func TestFetchDeduplicatesAcrossCalls(t *testing.T) {

	now := time.Now().UTC().Truncate(time.Second)
	record := "Pod\x1fweb-1\x1f1\x1f" + now.Format(time.RFC3339) + "\x1fBackOff\x1fcrash looping"

	script := stubEventScript(t, []string{record})

	t.Setenv("KUBERNETES_DEPLOY_BIN", script)

	client := clusterclient.New(&genericclioptions.ConfigFlags{}, "ns", "ctx", logr.Discard())

	extractor, err := events.New(client, 0)
	require.NoError(t, err)

	first, err := extractor.Fetch(context.Background(), "Pod", "web-1", now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := extractor.Fetch(context.Background(), "Pod", "web-1", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, second)
}
