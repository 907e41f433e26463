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

package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	s, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.LogLevel != "info" || s.LogFormat != "json" {
		t.Fatalf("unexpected log defaults: %+v", s)
	}
	if s.GraphQLTimeout != 10 || s.GraphQLMaxRetries != 3 {
		t.Fatalf("unexpected graphql defaults: %+v", s)
	}
	if s.DefaultPollingInterval != 30 || s.ActionExecutionTimeout != 300 {
		t.Fatalf("unexpected polling/action defaults: %+v", s)
	}
	if !s.MetricsEnabled || s.MetricsPort != 8080 || s.HealthPort != 8081 {
		t.Fatalf("unexpected metrics/health defaults: %+v", s)
	}
	if s.RateLimitRequests != 100 {
		t.Fatalf("unexpected rate limit default: %+v", s)
	}
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	t.Setenv("KCO_LOG_LEVEL", "debug")
	t.Setenv("KCO_GRAPHQL_TIMEOUT", "5")
	t.Setenv("KCO_METRICS_PORT", "9090")

	s, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.LogLevel != "debug" {
		t.Fatalf("expected overridden log level, got %q", s.LogLevel)
	}
	if s.GraphQLTimeout != 5 {
		t.Fatalf("expected overridden timeout, got %d", s.GraphQLTimeout)
	}
	if s.MetricsAddr() != ":9090" {
		t.Fatalf("expected metrics addr :9090, got %q", s.MetricsAddr())
	}
}

func TestValidateRejectsOutOfRangeGraphQLTimeout(t *testing.T) {
	t.Setenv("KCO_GRAPHQL_TIMEOUT", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for graphql timeout below range")
	}
}

func TestValidateRejectsOutOfRangePollingInterval(t *testing.T) {
	t.Setenv("KCO_DEFAULT_POLLING_INTERVAL", "4")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for polling interval below range")
	}
}

func TestValidateRejectsOutOfRangeActionExecutionTimeout(t *testing.T) {
	t.Setenv("KCO_ACTION_EXECUTION_TIMEOUT", "5")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for action execution timeout below range")
	}
}

func TestValidateRejectsPortsOutOfRange(t *testing.T) {
	t.Setenv("KCO_METRICS_PORT", "80")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for metrics port below range")
	}
}

func TestValidateRejectsZeroRateLimit(t *testing.T) {
	t.Setenv("KCO_RATE_LIMIT_REQUESTS", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for rate limit below 1")
	}
}

func TestHealthAddr(t *testing.T) {
	s := &Settings{HealthPort: 8081}
	if s.HealthAddr() != ":8081" {
		t.Fatalf("expected :8081, got %q", s.HealthAddr())
	}
}
