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
	"fmt"
	"strings"
)

// fetchEvents is shared by every kind's FetchEvents: it reads the
// Extractor threaded through base by NewForType, rather than a package
// global, so each Orchestrator run (and each test) gets its own "seen"
// cache instead of sharing one across the process.
func (b *base) fetchEvents(ctx context.Context) ([]string, error) {
	if b.eventExtractor == nil {
		return nil, nil
	}

	texts, err := b.eventExtractor.Fetch(ctx, b.kind, b.name, b.deployStartedAt)
	if err != nil {
		b.log.Info("event fetch failed", "kind", b.kind, "name", b.name, "error", err.Error())
		return nil, nil //nolint:nilerr
	}

	return texts, nil
}

// debugMessage aggregates status and events into the multi-line
// diagnostic the Orchestrator attaches to a failed or timed-out verdict.
func debugMessage(ctx context.Context, r Resource) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", r.PrettyStatus())

	events, err := r.FetchEvents(ctx)
	if err == nil && len(events) > 0 {
		b.WriteString("events:\n")

		for _, e := range events {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}

	if fetcher, ok := r.(LogFetcher); ok {
		logs, err := fetcher.FetchLogs(ctx)
		if err == nil && len(logs) > 0 {
			b.WriteString("logs:\n")

			for id, text := range logs {
				fmt.Fprintf(&b, "  --- %s ---\n%s\n", id, text)
			}
		}
	}

	return b.String()
}
