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

// Package queryclient issues the application-level state query against a
// Target Application and classifies failures as transport (retried with
// exponential backoff) or logical (surfaced immediately).
package queryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
)

// TransportError wraps a connection, TLS, or 5xx-class failure. These are
// retried by Query up to the configured attempt budget.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// LogicalError wraps a malformed or error-bearing response. These are never
// retried; they are surfaced to the caller on the first attempt.
type LogicalError struct {
	Err error
}

func (e *LogicalError) Error() string { return fmt.Sprintf("logical error: %v", e.Err) }
func (e *LogicalError) Unwrap() error { return e.Err }

// Client issues state queries against a single Target Application endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	maxRetries int
}

// New constructs a Client bound to endpoint (already resolved to an absolute
// URL by the caller) with the given per-request timeout and retry budget.
func New(endpoint string, requestTimeout time.Duration, maxRetries int) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		endpoint:   endpoint,
		maxRetries: maxRetries,
	}
}

// Endpoint returns the resolved endpoint this client queries.
func (c *Client) Endpoint() string { return c.endpoint }

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Data   map[string]any  `json:"data"`
	Errors []map[string]any `json:"errors,omitempty"`
}

// Query issues queryString against the endpoint, retrying transport failures
// with exponential backoff (base 2 seconds: attempt k sleeps 2^k) up to
// maxRetries total retries. Logical failures are never retried.
func (c *Client) Query(ctx context.Context, queryString string) (map[string]any, error) {
	var result map[string]any

	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			data, err := c.doRequest(ctx, queryString)
			if err != nil {
				return err
			}
			result = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)+1),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(1<<(n+1)) * time.Second
		}),
		retry.RetryIf(func(err error) bool {
			var te *TransportError
			return errors.As(err, &te)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) doRequest(ctx context.Context, queryString string) (map[string]any, error) {
	body, err := json.Marshal(queryRequest{Query: queryString})
	if err != nil {
		return nil, &LogicalError{Err: fmt.Errorf("encoding query: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &LogicalError{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &TransportError{Err: fmt.Errorf("server returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &LogicalError{Err: fmt.Errorf("server returned status %d", resp.StatusCode)}
	}

	var parsed queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &LogicalError{Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(parsed.Errors) > 0 {
		return nil, &LogicalError{Err: fmt.Errorf("query returned %d error(s): %v", len(parsed.Errors), parsed.Errors[0])}
	}
	if parsed.Data == nil {
		return nil, &LogicalError{Err: errors.New("response had no data field")}
	}
	return parsed.Data, nil
}

// HealthCheck issues a minimal introspection query and reports boolean
// reachability. A health-check failure does not consume the retry budget of
// subsequent real queries: it performs exactly one attempt.
func (c *Client) HealthCheck(ctx context.Context) bool {
	_, err := c.doRequest(ctx, "{__typename}")
	return err == nil
}

// ResolveEndpoint builds an absolute URL for endpoint. If endpoint already
// carries a scheme it is returned unchanged; otherwise it is joined to
// podIP on the default port.
func ResolveEndpoint(endpoint, podIP string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return fmt.Sprintf("http://%s:8080%s", podIP, endpoint)
}
