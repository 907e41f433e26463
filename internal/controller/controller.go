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

// Package controller owns the registry of Supervisors and translates
// lifecycle commands (start/update/stop/shutdown) into Supervisor
// operations.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DeepInside-Informatics/kco/internal/actions"
	"github.com/DeepInside-Informatics/kco/internal/events"
	"github.com/DeepInside-Informatics/kco/internal/metrics"
	"github.com/DeepInside-Informatics/kco/internal/ratelimit"
	"github.com/DeepInside-Informatics/kco/internal/statestore"
	"github.com/DeepInside-Informatics/kco/internal/supervisor"
)

const cleanupInterval = time.Hour
const idleBucketTTL = time.Hour

// Controller is the sole process-wide owner of the State Store, Event
// Emitter, Rate Limiter, and the live set of Supervisors.
type Controller struct {
	stateStore  *statestore.Store
	emitter     *events.Emitter
	rateLimiter *ratelimit.Limiter
	registry    *actions.Registry
	resolver    supervisor.PodResolver
	stats       supervisor.StatsSink
	log         *zap.SugaredLogger

	mu          sync.Mutex
	supervisors map[string]*supervisor.Supervisor

	tenantMu    sync.Mutex
	tenantStats map[string]*TenantStats

	cancelCleanup context.CancelFunc
	cleanupDone   chan struct{}
}

// TenantStats is the per-tenant activity summary the reconciler copies onto
// a TargetApp's status subresource.
type TenantStats struct {
	LastPolled      time.Time
	ActionsExecuted int64
	EventsGenerated int64
}

// tenantStatsRecorder wraps the Controller's externally supplied StatsSink
// (e.g. the Prometheus Sink) so every poll/event/action observation also
// updates the per-tenant counters TenantStats exposes, without the
// Supervisor itself needing to know about status reporting.
type tenantStatsRecorder struct {
	tenantKey  string
	controller *Controller
	underlying supervisor.StatsSink
}

func (r tenantStatsRecorder) RecordPoll(namespace, tappName, status string, duration time.Duration) {
	if status == "success" {
		r.controller.touchTenantStats(r.tenantKey, func(ts *TenantStats) {
			ts.LastPolled = time.Now()
		})
	}
	if r.underlying != nil {
		r.underlying.RecordPoll(namespace, tappName, status, duration)
	}
}

func (r tenantStatsRecorder) RecordEvent(namespace, tappName, eventType string) {
	r.controller.touchTenantStats(r.tenantKey, func(ts *TenantStats) {
		ts.EventsGenerated++
	})
	if r.underlying != nil {
		r.underlying.RecordEvent(namespace, tappName, eventType)
	}
}

func (r tenantStatsRecorder) RecordAction(namespace, tappName, action, status string) {
	r.controller.touchTenantStats(r.tenantKey, func(ts *TenantStats) {
		ts.ActionsExecuted++
	})
	if r.underlying != nil {
		r.underlying.RecordAction(namespace, tappName, action, status)
	}
}

func (c *Controller) touchTenantStats(tenantKey string, mutate func(*TenantStats)) {
	c.tenantMu.Lock()
	defer c.tenantMu.Unlock()
	ts, ok := c.tenantStats[tenantKey]
	if !ok {
		return
	}
	mutate(ts)
}

// TenantStats returns a point-in-time copy of namespace/name's activity
// counters, and whether the tenant is currently tracked.
func (c *Controller) TenantStats(namespace, name string) (TenantStats, bool) {
	tenantKey := namespace + "/" + name

	c.tenantMu.Lock()
	defer c.tenantMu.Unlock()
	ts, ok := c.tenantStats[tenantKey]
	if !ok {
		return TenantStats{}, false
	}
	return *ts, true
}

// New constructs a Controller. Call Run to start its background cleanup
// task before accepting lifecycle commands.
func New(
	stateStore *statestore.Store,
	emitter *events.Emitter,
	rateLimiter *ratelimit.Limiter,
	registry *actions.Registry,
	resolver supervisor.PodResolver,
	stats supervisor.StatsSink,
	log *zap.SugaredLogger,
) *Controller {
	return &Controller{
		stateStore:  stateStore,
		emitter:     emitter,
		rateLimiter: rateLimiter,
		registry:    registry,
		resolver:    resolver,
		stats:       stats,
		log:         log,
		supervisors: make(map[string]*supervisor.Supervisor),
		tenantStats: make(map[string]*TenantStats),
	}
}

// Run starts the hourly rate-limiter cleanup sweep. Call Shutdown to stop it.
func (c *Controller) Run(ctx context.Context) {
	cleanupCtx, cancel := context.WithCancel(ctx)
	c.cancelCleanup = cancel
	c.cleanupDone = make(chan struct{})

	go func() {
		defer close(c.cleanupDone)
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				evicted := c.rateLimiter.Cleanup(idleBucketTTL)
				if c.log != nil && evicted > 0 {
					c.log.Infow("evicted idle rate limit buckets", "count", evicted)
				}
			}
		}
	}()
}

// StartMonitoring translates spec into a Supervisor config, validates it,
// and starts monitoring namespace/name. If the tenantKey is already
// present, the existing Supervisor is left undisturbed.
func (c *Controller) StartMonitoring(ctx context.Context, namespace, name string, spec map[string]any) error {
	tenantKey := namespace + "/" + name

	c.mu.Lock()
	if _, exists := c.supervisors[tenantKey]; exists {
		c.mu.Unlock()
		if c.log != nil {
			c.log.Warnw("start requested for already-monitored tenant, ignoring", "tenantKey", tenantKey)
		}
		return nil
	}
	c.mu.Unlock()

	cfg, err := toSupervisorConfig(namespace, name, spec)
	if err != nil {
		return fmt.Errorf("invalid TApp configuration: %w", err)
	}

	c.tenantMu.Lock()
	c.tenantStats[tenantKey] = &TenantStats{}
	c.tenantMu.Unlock()

	recorder := tenantStatsRecorder{tenantKey: tenantKey, controller: c, underlying: c.stats}
	sup := supervisor.New(cfg, c.rateLimiter, c.stateStore, c.emitter, c.registry, c.resolver, recorder, c.log)

	c.mu.Lock()
	c.supervisors[tenantKey] = sup
	activeCount := len(c.supervisors)
	c.mu.Unlock()
	metrics.SetActiveMonitors(activeCount)

	sup.Start(ctx)
	return nil
}

// StopMonitoring removes and stops the Supervisor for namespace/name, if any.
func (c *Controller) StopMonitoring(namespace, name string) {
	tenantKey := namespace + "/" + name

	c.mu.Lock()
	sup, ok := c.supervisors[tenantKey]
	delete(c.supervisors, tenantKey)
	activeCount := len(c.supervisors)
	c.mu.Unlock()
	metrics.SetActiveMonitors(activeCount)

	c.tenantMu.Lock()
	delete(c.tenantStats, tenantKey)
	c.tenantMu.Unlock()

	if !ok {
		return
	}
	sup.Stop()
}

// UpdateMonitoring performs a full restart: stop, then start with the new
// spec. Partial reconfiguration is not supported.
func (c *Controller) UpdateMonitoring(ctx context.Context, namespace, name string, spec map[string]any) error {
	c.StopMonitoring(namespace, name)
	return c.StartMonitoring(ctx, namespace, name, spec)
}

// Shutdown cancels the cleanup task and stops every Supervisor concurrently.
func (c *Controller) Shutdown() {
	if c.cancelCleanup != nil {
		c.cancelCleanup()
	}
	if c.cleanupDone != nil {
		<-c.cleanupDone
	}

	c.mu.Lock()
	sups := make([]*supervisor.Supervisor, 0, len(c.supervisors))
	for _, s := range c.supervisors {
		sups = append(sups, s)
	}
	c.supervisors = make(map[string]*supervisor.Supervisor)
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sups {
		wg.Add(1)
		go func(s *supervisor.Supervisor) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
}

// Attached reports whether the Controller has at least completed
// construction and is ready to accept lifecycle commands; used by the
// readiness probe.
func (c *Controller) Attached() bool {
	return c != nil
}

// Stats is a point-in-time view of the Controller and its owned components.
type Stats struct {
	ActiveMonitors int
	TenantKeys     []string
	StateStore     statestore.Stats
	RateLimiter    ratelimit.Stats
}

// Stats reports counts and tenant keys from the Controller and its owned
// components.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	keys := make([]string, 0, len(c.supervisors))
	for k := range c.supervisors {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	return Stats{
		ActiveMonitors: len(keys),
		TenantKeys:     keys,
		StateStore:     c.stateStore.Stats(),
		RateLimiter:    c.rateLimiter.Stats(),
	}
}
