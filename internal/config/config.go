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

// Package config loads the operator's process-wide settings from KCO_-prefixed
// environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Settings holds the global operator configuration, loaded from environment
// variables. Per-TApp settings (polling interval, timeout, retries, ...) live
// on the TargetApp custom resource instead.
type Settings struct {
	LogLevel  string `env:"KCO_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"KCO_LOG_FORMAT" envDefault:"json"`

	GraphQLTimeout    int `env:"KCO_GRAPHQL_TIMEOUT" envDefault:"10"`
	GraphQLMaxRetries int `env:"KCO_GRAPHQL_MAX_RETRIES" envDefault:"3"`

	DefaultPollingInterval int `env:"KCO_DEFAULT_POLLING_INTERVAL" envDefault:"30"`
	ActionExecutionTimeout int `env:"KCO_ACTION_EXECUTION_TIMEOUT" envDefault:"300"`

	MetricsEnabled bool `env:"KCO_METRICS_ENABLED" envDefault:"true"`
	MetricsPort    int  `env:"KCO_METRICS_PORT" envDefault:"8080"`
	HealthPort     int  `env:"KCO_HEALTH_PORT" envDefault:"8081"`

	Namespace string `env:"KCO_NAMESPACE"`

	RateLimitRequests int `env:"KCO_RATE_LIMIT_REQUESTS" envDefault:"100"`
}

// Load reads Settings from the environment and validates range constraints.
func Load() (*Settings, error) {
	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.GraphQLTimeout < 1 || s.GraphQLTimeout > 60 {
		return fmt.Errorf("KCO_GRAPHQL_TIMEOUT must be in [1, 60], got %d", s.GraphQLTimeout)
	}
	if s.GraphQLMaxRetries < 0 || s.GraphQLMaxRetries > 10 {
		return fmt.Errorf("KCO_GRAPHQL_MAX_RETRIES must be in [0, 10], got %d", s.GraphQLMaxRetries)
	}
	if s.DefaultPollingInterval < 5 || s.DefaultPollingInterval > 3600 {
		return fmt.Errorf("KCO_DEFAULT_POLLING_INTERVAL must be in [5, 3600], got %d", s.DefaultPollingInterval)
	}
	if s.ActionExecutionTimeout < 10 || s.ActionExecutionTimeout > 1800 {
		return fmt.Errorf("KCO_ACTION_EXECUTION_TIMEOUT must be in [10, 1800], got %d", s.ActionExecutionTimeout)
	}
	if s.MetricsPort < 1024 || s.MetricsPort > 65535 {
		return fmt.Errorf("KCO_METRICS_PORT must be in [1024, 65535], got %d", s.MetricsPort)
	}
	if s.HealthPort < 1024 || s.HealthPort > 65535 {
		return fmt.Errorf("KCO_HEALTH_PORT must be in [1024, 65535], got %d", s.HealthPort)
	}
	if s.RateLimitRequests < 1 {
		return fmt.Errorf("KCO_RATE_LIMIT_REQUESTS must be >= 1, got %d", s.RateLimitRequests)
	}
	return nil
}

// MetricsAddr returns the listen address for the Prometheus /metrics server.
func (s *Settings) MetricsAddr() string {
	return fmt.Sprintf(":%d", s.MetricsPort)
}

// HealthAddr returns the listen address for the health/readiness/stats server.
func (s *Settings) HealthAddr() string {
	return fmt.Sprintf(":%d", s.HealthPort)
}
