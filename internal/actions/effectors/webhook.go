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

package effectors

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/DeepInside-Informatics/kco/internal/actions"
)

// Webhook issues an outbound HTTP request carrying a templated payload
// describing the triggering state change.
type Webhook struct {
	httpClient *http.Client
}

// NewWebhook constructs the webhook effector.
func NewWebhook() *Webhook {
	return &Webhook{httpClient: &http.Client{}}
}

func (e *Webhook) Name() string { return "webhook" }

func (e *Webhook) CanHandle(ctx actions.Context) bool {
	return actions.Evaluate(ctx.Trigger, ctx.StateChange)
}

func (e *Webhook) Execute(ctx actions.Context) actions.Result {
	rawURL, ok := ctx.Parameters["url"]
	if !ok {
		return actions.Result{Status: actions.StatusFailed, Message: "url is required"}
	}
	url, ok := toString(rawURL)
	if !ok {
		return actions.Result{Status: actions.StatusFailed, Message: "url must be a string"}
	}

	method := "POST"
	if raw, ok := ctx.Parameters["method"]; ok {
		m, ok := toString(raw)
		if !ok {
			return actions.Result{Status: actions.StatusFailed, Message: "method must be a string"}
		}
		method = strings.ToUpper(m)
	}

	timeout := 30 * time.Second
	if raw, ok := ctx.Parameters["timeout"]; ok {
		n, ok := toInt(raw)
		if !ok {
			return actions.Result{Status: actions.StatusFailed, Message: "timeout must be an integer"}
		}
		timeout = time.Duration(n) * time.Second
	}

	httpClient := e.httpClient
	if raw, ok := ctx.Parameters["verifySSL"]; ok {
		verify, ok := raw.(bool)
		if !ok {
			return actions.Result{Status: actions.StatusFailed, Message: "verifySSL must be a boolean"}
		}
		if !verify {
			httpClient = &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
		}
	}

	headers, _ := toStringMap(ctx.Parameters["headers"])

	body, err := e.preparePayload(ctx)
	if err != nil {
		return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("preparing payload: %v", err)}
	}

	execCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(execCtx, method, url, bytes.NewReader(body))
	if err != nil {
		return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("building request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Kco-Delivery-Id", uuid.NewString())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("webhook request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("webhook returned status %d", resp.StatusCode)}
	}
	return actions.Result{
		Status:  actions.StatusSuccess,
		Message: fmt.Sprintf("webhook delivered, status %d", resp.StatusCode),
		Details: map[string]any{"statusCode": resp.StatusCode},
	}
}

// preparePayload builds the base object, merges the configured template over
// it, serializes to JSON text, and performs whole-string substitution of
// {{tapp_name}}, {{namespace}}, {{timestamp}} before returning the final
// request body. This mirrors the source behavior exactly: substitution
// happens against the fully serialized text, not per-field, so any
// occurrence of the literal placeholders anywhere in newState/oldState is
// also replaced.
func (e *Webhook) preparePayload(ctx actions.Context) ([]byte, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339)

	base := map[string]any{
		"timestamp": timestamp,
		"targetApp": map[string]any{
			"name":      ctx.TApp.Name,
			"namespace": ctx.TApp.Namespace,
		},
		"stateChange": map[string]any{
			"isInitial":     ctx.StateChange.IsInitial(),
			"changedFields": ctx.StateChange.ChangedPaths,
			"newState":      ctx.StateChange.NewSnapshot.Data,
		},
		"trigger": map[string]any{
			"field":     ctx.Trigger.Field,
			"condition": ctx.Trigger.Condition,
			"value":     ctx.Trigger.Value,
		},
		"action": "webhook",
	}
	if ctx.StateChange.OldSnapshot != nil {
		base["stateChange"].(map[string]any)["oldState"] = ctx.StateChange.OldSnapshot.Data
	}

	if template, ok := ctx.Parameters["payload"]; ok {
		if templateMap, ok := template.(map[string]any); ok {
			base = lo.Assign(base, templateMap)
		}
	}

	encoded, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}

	text := string(encoded)
	text = strings.ReplaceAll(text, "{{tapp_name}}", ctx.TApp.Name)
	text = strings.ReplaceAll(text, "{{namespace}}", ctx.TApp.Namespace)
	text = strings.ReplaceAll(text, "{{timestamp}}", timestamp)

	var reparsed any
	if err := json.Unmarshal([]byte(text), &reparsed); err != nil {
		// A placeholder substitution produced invalid JSON (e.g. a raw
		// value embedding quotes); fall back to the pre-substitution text.
		return encoded, nil
	}
	return json.Marshal(reparsed)
}
