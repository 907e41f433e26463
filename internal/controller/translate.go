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

package controller

import (
	"fmt"
	"time"

	"github.com/DeepInside-Informatics/kco/internal/actions"
	"github.com/DeepInside-Informatics/kco/internal/supervisor"
)

// toSupervisorConfig translates a raw TApp spec (as decoded from the custom
// resource, accepting both camelCase and snake_case top-level keys) into a
// validated supervisor.Config.
func toSupervisorConfig(namespace, name string, spec map[string]any) (supervisor.Config, error) {
	selector, err := lookupStringMap(spec, "selector", "selector")
	if err != nil {
		return supervisor.Config{}, err
	}
	if len(selector) == 0 {
		return supervisor.Config{}, fmt.Errorf("selector is required")
	}

	endpoint := lookupStringDefault(spec, "graphqlEndpoint", "graphql_endpoint", "/graphql")

	pollingInterval := lookupIntDefault(spec, "pollingInterval", "polling_interval", 30)
	if pollingInterval < 5 || pollingInterval > 3600 {
		return supervisor.Config{}, fmt.Errorf("pollingInterval must be in [5, 3600], got %d", pollingInterval)
	}

	query, ok := lookupString(spec, "stateQuery", "state_query")
	if !ok || query == "" {
		return supervisor.Config{}, fmt.Errorf("stateQuery is required")
	}

	timeout := lookupIntDefault(spec, "timeout", "timeout", 10)
	if timeout < 1 || timeout > 60 {
		return supervisor.Config{}, fmt.Errorf("timeout must be in [1, 60], got %d", timeout)
	}

	maxRetries := lookupIntDefault(spec, "maxRetries", "max_retries", 3)
	if maxRetries < 0 || maxRetries > 10 {
		return supervisor.Config{}, fmt.Errorf("maxRetries must be in [0, 10], got %d", maxRetries)
	}

	triggerActions, err := translateActions(spec)
	if err != nil {
		return supervisor.Config{}, err
	}

	return supervisor.Config{
		Namespace:              namespace,
		Name:                   name,
		Selector:               selector,
		Endpoint:               endpoint,
		PollingInterval:        time.Duration(pollingInterval) * time.Second,
		Query:                  query,
		Actions:                triggerActions,
		RequestTimeout:         time.Duration(timeout) * time.Second,
		MaxRetries:             maxRetries,
		ActionExecutionTimeout: 300 * time.Second,
	}, nil
}

func translateActions(spec map[string]any) ([]supervisor.TriggerAction, error) {
	raw, ok := spec["actions"]
	if !ok {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("actions must be a list")
	}

	out := make([]supervisor.TriggerAction, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("actions[%d] must be an object", i)
		}

		actionName, ok := lookupString(m, "action", "action")
		if !ok || actionName == "" {
			return nil, fmt.Errorf("actions[%d].action is required", i)
		}

		triggerRaw, ok := m["trigger"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("actions[%d].trigger is required", i)
		}
		field, _ := lookupString(triggerRaw, "field", "field")
		condition, _ := lookupString(triggerRaw, "condition", "condition")
		trigger := actions.TriggerSpec{Field: field, Condition: condition, Value: triggerRaw["value"]}

		params, _ := m["parameters"].(map[string]any)

		out = append(out, supervisor.TriggerAction{Trigger: trigger, ActionName: actionName, Parameters: params})
	}
	return out, nil
}

func lookupString(spec map[string]any, camel, snake string) (string, bool) {
	if v, ok := spec[camel]; ok {
		s, ok := v.(string)
		return s, ok
	}
	if snake != camel {
		if v, ok := spec[snake]; ok {
			s, ok := v.(string)
			return s, ok
		}
	}
	return "", false
}

func lookupStringDefault(spec map[string]any, camel, snake, def string) string {
	if s, ok := lookupString(spec, camel, snake); ok {
		return s
	}
	return def
}

func lookupIntDefault(spec map[string]any, camel, snake string, def int) int {
	v, ok := spec[camel]
	if !ok && snake != camel {
		v, ok = spec[snake]
	}
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func lookupStringMap(spec map[string]any, camel, snake string) (map[string]string, error) {
	v, ok := spec[camel]
	if !ok && snake != camel {
		v, ok = spec[snake]
	}
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object of string to string", camel)
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("%s.%s must be a string", camel, k)
		}
		out[k] = s
	}
	return out, nil
}
