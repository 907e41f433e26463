/*

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

// Package events turns a state change into cluster events, classifying
// severity and suppressing duplicates within a sliding time window.
package events

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/DeepInside-Informatics/kco/internal/statestore"
)

const dedupWindow = 5 * time.Minute

// Type is the cluster event severity.
type Type string

const (
	TypeNormal  Type = "Normal"
	TypeWarning Type = "Warning"
)

// Event is the cluster-facing shape of an emitted event, independent of the
// Kubernetes API object it is eventually rendered into.
type Event struct {
	Namespace string
	Name      string
	Reason    string
	Message   string
	Type      Type
}

// Creator is the narrow collaborator Emitter needs from the Kubernetes
// client: the ability to create a namespaced Event object for the
// TargetApp involved object.
type Creator interface {
	CreateEvent(ctx context.Context, namespace, involvedName, involvedKind, reason, message, eventType string) error
}

var warningFields = map[string]struct{}{
	"health": {}, "status": {}, "error": {}, "errors": {}, "failed": {}, "failure": {},
}

var summaryBadKeywords = []string{"error", "failed", "unhealthy", "down"}

var fieldReasons = map[string]string{
	"health": "HealthStatusChanged",
	"status": "StatusChanged",
	"error":  "ErrorStateChanged",
	"errors": "ErrorsDetected",
}

var fieldBadKeywords = []string{
	"error", "failed", "failure", "unhealthy", "down", "critical", "fatal", "exception", "timeout",
}

// Emitter creates and deduplicates cluster events for state changes.
type Emitter struct {
	creator Creator
	dedup   *gocache.Cache
	log     *zap.SugaredLogger
}

// New constructs an Emitter backed by creator for actually recording events.
func New(creator Creator, log *zap.SugaredLogger) *Emitter {
	return &Emitter{
		creator: creator,
		dedup:   gocache.New(dedupWindow, dedupWindow/2),
		log:     log,
	}
}

// Emit inspects change and creates the appropriate cluster event(s) for
// namespace/name, subject to deduplication. It returns the events that were
// actually created (i.e. survived dedup), for metrics/test purposes.
func (e *Emitter) Emit(ctx context.Context, namespace, name string, change statestore.Change) []Event {
	if !change.HasChanges() {
		return nil
	}

	var candidates []Event
	if change.IsInitial() {
		candidates = append(candidates, Event{
			Namespace: namespace, Name: name,
			Reason: "InitialStateDetected", Message: "Initial state observed", Type: TypeNormal,
		})
	} else {
		candidates = append(candidates, e.summaryEvent(namespace, name, change))
		candidates = append(candidates, e.specificFieldEvents(namespace, name, change)...)
	}

	emitted := make([]Event, 0, len(candidates))
	for _, ev := range candidates {
		if e.shouldEmit(ev) {
			if err := e.creator.CreateEvent(ctx, ev.Namespace, ev.Name, "TargetApp", ev.Reason, ev.Message, string(ev.Type)); err != nil {
				if e.log != nil {
					e.log.Warnw("failed to create cluster event", "tenantKey", namespace+"/"+name, "reason", ev.Reason, "error", err)
				}
				continue
			}
			emitted = append(emitted, ev)
		}
	}
	return emitted
}

func (e *Emitter) summaryEvent(namespace, name string, change statestore.Change) Event {
	reason := "StateFieldChanged"
	if len(change.ChangedPaths) > 1 {
		reason = "StateChanged"
	}

	warning := false
	for _, path := range change.ChangedPaths {
		leaf := leafOf(path)
		if _, isWarningField := warningFields[leaf]; !isWarningField {
			continue
		}
		v, _ := statestore.Lookup(change.NewSnapshot.Data, path)
		if containsAny(stringify(v), summaryBadKeywords) {
			warning = true
			break
		}
	}

	evType := TypeNormal
	if warning {
		evType = TypeWarning
	}

	return Event{
		Namespace: namespace, Name: name,
		Reason:  reason,
		Message: fmt.Sprintf("Changed fields: %s", strings.Join(change.ChangedPaths, ", ")),
		Type:    evType,
	}
}

func (e *Emitter) specificFieldEvents(namespace, name string, change statestore.Change) []Event {
	var out []Event
	for _, path := range change.ChangedPaths {
		leaf := leafOf(path)
		reason, ok := fieldReasons[leaf]
		if !ok {
			continue
		}

		v, _ := statestore.Lookup(change.NewSnapshot.Data, path)
		evType := TypeNormal
		if containsAny(stringify(v), fieldBadKeywords) {
			evType = TypeWarning
		}

		out = append(out, Event{
			Namespace: namespace, Name: name,
			Reason:  reason,
			Message: fmt.Sprintf("%s changed to %s", path, stringify(v)),
			Type:    evType,
		})
	}
	return out
}

func (e *Emitter) shouldEmit(ev Event) bool {
	key := dedupKey(ev)
	if _, found := e.dedup.Get(key); found {
		return false
	}
	e.dedup.Set(key, struct{}{}, gocache.DefaultExpiration)
	return true
}

func dedupKey(ev Event) string {
	h := fnv.New64a()
	h.Write([]byte(ev.Message))
	return fmt.Sprintf("%s/%s/%s/%x", ev.Namespace, ev.Name, ev.Reason, h.Sum64())
}

func leafOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func stringify(v any) string {
	return fmt.Sprintf("%v", v)
}

func containsAny(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
