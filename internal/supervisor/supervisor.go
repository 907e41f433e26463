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

// Package supervisor runs the per-TApp poll/diff/emit/act loop.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DeepInside-Informatics/kco/internal/actions"
	"github.com/DeepInside-Informatics/kco/internal/events"
	"github.com/DeepInside-Informatics/kco/internal/queryclient"
	"github.com/DeepInside-Informatics/kco/internal/ratelimit"
	"github.com/DeepInside-Informatics/kco/internal/statestore"
)

// Phase is the Supervisor's one-way lifecycle state.
type Phase string

const (
	PhaseInitializing Phase = "Initializing"
	PhaseRunning       Phase = "Running"
	PhaseStopping      Phase = "Stopping"
	PhaseStopped       Phase = "Stopped"
)

// TriggerAction binds a TriggerSpec to the named action and its parameters,
// as configured on the TApp.
type TriggerAction struct {
	Trigger    actions.TriggerSpec
	ActionName string
	Parameters map[string]any
}

// Config is the immutable per-TApp configuration a Supervisor runs against.
type Config struct {
	Namespace              string
	Name                   string
	Selector               map[string]string
	Endpoint               string
	PollingInterval        time.Duration
	Query                  string
	Actions                []TriggerAction
	RequestTimeout         time.Duration
	MaxRetries             int
	ActionExecutionTimeout time.Duration
}

// TenantKey returns the namespace/name identity used across every shared
// component keyed by tenant.
func (c Config) TenantKey() string {
	return c.Namespace + "/" + c.Name
}

// PodResolver discovers the pod IP backing a path-style endpoint.
type PodResolver interface {
	ResolvePodIP(ctx context.Context, namespace string, selector map[string]string) (string, error)
}

// StatsSink receives poll-outcome and action-outcome observations for
// metrics export. Implementations must not block meaningfully.
type StatsSink interface {
	RecordPoll(namespace, tappName, status string, duration time.Duration)
	RecordEvent(namespace, tappName, eventType string)
	RecordAction(namespace, tappName, action, status string)
}

// Supervisor runs the poll loop for exactly one tenant.
type Supervisor struct {
	cfg         Config
	rateLimiter *ratelimit.Limiter
	stateStore  *statestore.Store
	emitter     *events.Emitter
	registry    *actions.Registry
	resolver    PodResolver
	stats       StatsSink
	log         *zap.SugaredLogger

	mu     sync.Mutex
	phase  Phase
	cancel context.CancelFunc
	done   chan struct{}
	client *queryclient.Client
}

// New constructs a Supervisor in PhaseInitializing. Call Start to run it.
func New(
	cfg Config,
	rateLimiter *ratelimit.Limiter,
	stateStore *statestore.Store,
	emitter *events.Emitter,
	registry *actions.Registry,
	resolver PodResolver,
	stats StatsSink,
	log *zap.SugaredLogger,
) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		rateLimiter: rateLimiter,
		stateStore:  stateStore,
		emitter:     emitter,
		registry:    registry,
		resolver:    resolver,
		stats:       stats,
		log:         log,
		phase:       PhaseInitializing,
	}
}

// Phase reports the Supervisor's current lifecycle state.
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Start launches the poll loop. A second call is a no-op (idempotent).
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.phase != PhaseInitializing {
		s.mu.Unlock()
		if s.log != nil {
			s.log.Warnw("start called on a non-initializing supervisor", "tenantKey", s.cfg.TenantKey(), "phase", s.phase)
		}
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.phase = PhaseRunning
	s.client = s.buildClient(loopCtx)
	s.mu.Unlock()

	go s.run(loopCtx)
}

// Stop signals cancellation, awaits the loop's exit, and removes the
// tenant's snapshot from the state store.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.phase == PhaseStopped || s.phase == PhaseStopping {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseStopping
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	s.stateStore.Remove(s.cfg.TenantKey())

	s.mu.Lock()
	s.phase = PhaseStopped
	s.mu.Unlock()
}

func (s *Supervisor) buildClient(ctx context.Context) *queryclient.Client {
	endpoint := s.cfg.Endpoint
	if s.resolver != nil {
		if podIP, err := s.resolver.ResolvePodIP(ctx, s.cfg.Namespace, s.cfg.Selector); err == nil {
			endpoint = queryclient.ResolveEndpoint(s.cfg.Endpoint, podIP)
		} else if s.log != nil {
			s.log.Warnw("pod discovery failed, endpoint left unresolved until next start/update", "tenantKey", s.cfg.TenantKey(), "error", err)
		}
	}
	return queryclient.New(endpoint, s.cfg.RequestTimeout, s.cfg.MaxRetries)
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	for {
		if ctx.Err() != nil {
			return
		}
		s.cycle(ctx)
	}
}

func (s *Supervisor) cycle(ctx context.Context) {
	started := time.Now()
	tenantKey := s.cfg.TenantKey()

	if !s.client.HealthCheck(ctx) {
		s.stats.RecordPoll(s.cfg.Namespace, s.cfg.Name, "health_check_failed", time.Since(started))
		s.sleep(ctx, s.cfg.PollingInterval)
		return
	}

	if !s.rateLimiter.Acquire(ctx, tenantKey, 1, s.cfg.PollingInterval/2) {
		s.stats.RecordPoll(s.cfg.Namespace, s.cfg.Name, "rate_limited", time.Since(started))
		s.sleep(ctx, s.cfg.PollingInterval)
		return
	}

	data, err := s.client.Query(ctx, s.cfg.Query)
	if err != nil {
		s.stats.RecordPoll(s.cfg.Namespace, s.cfg.Name, "error", time.Since(started))
		if s.log != nil {
			s.log.Warnw("query failed", "tenantKey", tenantKey, "error", err)
		}
		wait := s.cfg.PollingInterval
		if wait > 30*time.Second {
			wait = 30 * time.Second
		}
		s.sleep(ctx, wait)
		return
	}

	change := s.stateStore.Update(tenantKey, data)
	s.stats.RecordPoll(s.cfg.Namespace, s.cfg.Name, "success", time.Since(started))

	if change.HasChanges() {
		eventType := "change"
		if change.IsInitial() {
			eventType = "initial"
		}
		emitted := s.emitter.Emit(ctx, s.cfg.Namespace, s.cfg.Name, change)
		for range emitted {
			s.stats.RecordEvent(s.cfg.Namespace, s.cfg.Name, eventType)
		}
	}

	for _, ta := range s.cfg.Actions {
		actionCtx := actions.Context{
			StateChange: change,
			Trigger:     ta.Trigger,
			Parameters:  ta.Parameters,
			TApp: actions.TAppConfig{
				Namespace: s.cfg.Namespace,
				Name:      s.cfg.Name,
				Selector:  s.cfg.Selector,
			},
		}
		result := s.registry.Execute(ta.ActionName, actionCtx, s.cfg.ActionExecutionTimeout)
		s.stats.RecordAction(s.cfg.Namespace, s.cfg.Name, ta.ActionName, string(result.Status))
		if s.log != nil {
			s.log.Infow("action dispatched", "tenantKey", tenantKey, "action", ta.ActionName, "status", result.Status, "message", result.Message)
		}
	}

	s.sleep(ctx, s.cfg.PollingInterval)
}

// sleep blocks for d or until ctx is cancelled, whichever comes first. This
// is the cancellable-sleep primitive used pervasively by the loop: never a
// naked time.Sleep.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// String is a debugging helper.
func (c Config) String() string {
	return fmt.Sprintf("Config{tenantKey=%s, interval=%s}", c.TenantKey(), c.PollingInterval)
}
