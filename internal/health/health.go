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

// Package health serves the operator's liveness, readiness, and stats
// endpoints over a plain HTTP server separate from the metrics server.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeepInside-Informatics/kco/internal/controller"
)

// AttachmentChecker reports whether the Controller is attached and ready to
// accept lifecycle commands, and a stats snapshot for /stats.
type AttachmentChecker interface {
	Attached() bool
	Stats() controller.Stats
}

// Server exposes /healthz, /readyz, /stats, and /metrics.
type Server struct {
	checker   AttachmentChecker
	version   string
	startedAt time.Time
	httpSrv   *http.Server
}

// New builds a health Server listening on addr.
func New(addr, version string, checker AttachmentChecker) *Server {
	s := &Server{
		checker:   checker,
		version:   version,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/stats", s.handleStats)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start runs the server until ctx is cancelled, then shuts it down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
		"version":        s.version,
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.checker != nil && s.checker.Attached() {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ready",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{
		"status":    "not_ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    map[string]bool{"controller_attached": false},
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
		"version":        s.version,
	}
	if s.checker != nil {
		body["controller"] = s.checker.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
