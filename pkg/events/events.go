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

// Package events builds the templated cluster-event query used by every
// resource kind's FetchEvents, and parses the result.
package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
)

// fieldSep and recordSep delimit the templated go-template output; chosen
// to be vanishingly unlikely inside an event message.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// ignoredReasons are filtered out at query time - they fire on every
// successful creation and carry no diagnostic value.
var ignoredReasons = map[string]bool{
	"Started": true,
	"Created": true,
}

// Event is one parsed cluster event record.
type Event struct {
	InvolvedKind string
	InvolvedName string
	Count        int
	LastSeen     time.Time
	Reason       string
	Message      string
}

// Text renders the event the way the watcher and debug messages display
// it.
func (e Event) Text() string {
	return fmt.Sprintf("%s: %s (%d events)", e.Reason, e.Message, e.Count)
}

// goTemplate produces one record per event, fields and records delimited
// by fieldSep/recordSep, via "kubectl get events --template".
const goTemplate = `{{range .items}}{{.involvedObject.kind}}` + fieldSep +
	`{{.involvedObject.name}}` + fieldSep + `{{.count}}` + fieldSep +
	`{{.lastTimestamp}}` + fieldSep + `{{.reason}}` + fieldSep +
	`{{.message}}` + recordSep + `{{end}}`

// Extractor fetches and parses cluster events for a resource, with a
// bounded cache so a long watch doesn't re-log the same event forever.
type Extractor struct {
	client *clusterclient.Client
	seen   *lru.Cache[string, bool]
}

// New returns an Extractor. cacheSize bounds the number of distinct
// "seen" markers retained; 0 selects a sane default.
func New(client *clusterclient.Client, cacheSize int) (*Extractor, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}

	cache, err := lru.New[string, bool](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("event cache: %w", err)
	}

	return &Extractor{client: client, seen: cache}, nil
}

// Fetch queries and parses events for the given involved object, filters
// to those at-or-after deployStartedAt minus a small clock-skew
// allowance, and returns their rendered text in cluster-reported order.
// Each (kind, name, reason, lastTimestamp) combination is reported once
// per Extractor lifetime.
func (e *Extractor) Fetch(ctx context.Context, kind, name string, deployStartedAt time.Time) ([]string, error) {
	result, err := e.client.Run(ctx, []string{
		"get", "events",
		"--field-selector", fmt.Sprintf("involvedObject.kind=%s,involvedObject.name=%s,reason!=Started,reason!=Created", kind, name),
		"--template", goTemplate,
	}, clusterclient.RunOptions{UseNamespace: true, UseContext: true, LogFailure: false})
	if err != nil {
		return nil, fmt.Errorf("event query: %w", err)
	}

	if !result.Succeeded() {
		return nil, nil
	}

	cutoff := deployStartedAt.Add(-constants.EventLookbackSlop)

	var texts []string

	for _, record := range strings.Split(result.Stdout, recordSep) {
		if strings.TrimSpace(record) == "" {
			continue
		}

		event, ok := parseRecord(record)
		if !ok {
			continue
		}

		if ignoredReasons[event.Reason] {
			continue
		}

		if !deployStartedAt.IsZero() && event.LastSeen.Before(cutoff) {
			continue
		}

		key := fmt.Sprintf("%s/%s/%s/%s", event.InvolvedKind, event.InvolvedName, event.Reason, event.LastSeen.Format(time.RFC3339))
		if _, ok := e.seen.Get(key); ok {
			continue
		}

		e.seen.Add(key, true)

		texts = append(texts, event.Text())
	}

	return texts, nil
}

func parseRecord(record string) (Event, bool) {
	fields := strings.Split(record, fieldSep)
	if len(fields) != 6 {
		return Event{}, false
	}

	count, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		count = 0
	}

	lastSeen, err := time.Parse(time.RFC3339, strings.TrimSpace(fields[3]))
	if err != nil {
		lastSeen = time.Time{}
	}

	return Event{
		InvolvedKind: fields[0],
		InvolvedName: fields[1],
		Count:        count,
		LastSeen:     lastSeen,
		Reason:       fields[4],
		Message:      fields[5],
	}, true
}
