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

// Package effectors holds the compiled-in built-in actions registered with
// the action Registry at controller startup.
package effectors

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"github.com/DeepInside-Informatics/kco/internal/actions"
)

// PodClient is the subset of the Kubernetes client restart_pod needs.
type PodClient interface {
	PodsBySelector(ctx context.Context, namespace string, selector map[string]string) ([]corev1.Pod, error)
	DeletePod(ctx context.Context, namespace, name string, gracePeriodSeconds int64) error
}

// RestartPod deletes each pod matching a selector, relying on the owning
// controller (Deployment/StatefulSet/etc.) to recreate it.
type RestartPod struct {
	client PodClient
}

// NewRestartPod constructs the restart_pod effector.
func NewRestartPod(client PodClient) *RestartPod {
	return &RestartPod{client: client}
}

func (e *RestartPod) Name() string { return "restart_pod" }

func (e *RestartPod) CanHandle(ctx actions.Context) bool {
	return actions.Evaluate(ctx.Trigger, ctx.StateChange)
}

func (e *RestartPod) Execute(ctx actions.Context) actions.Result {
	selector := ctx.TApp.Selector
	if raw, ok := ctx.Parameters["podSelector"]; ok {
		m, ok := toStringMap(raw)
		if !ok {
			return actions.Result{Status: actions.StatusFailed, Message: "podSelector must be a map of string to string"}
		}
		selector = m
	}

	gracePeriod := int64(30)
	if raw, ok := ctx.Parameters["gracePeriod"]; ok {
		n, ok := toInt(raw)
		if !ok {
			return actions.Result{Status: actions.StatusFailed, Message: "gracePeriod must be an integer"}
		}
		gracePeriod = int64(n)
	}

	pods, err := e.client.PodsBySelector(context.Background(), ctx.TApp.Namespace, selector)
	if err != nil {
		return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("listing pods: %v", err)}
	}
	if len(pods) == 0 {
		return actions.Result{Status: actions.StatusSkipped, Message: "no pods matched selector"}
	}
	names := make([]string, len(pods))
	for i, p := range pods {
		names[i] = p.Name
	}

	succeeded := 0
	var lastErr error
	for _, name := range names {
		if err := e.client.DeletePod(context.Background(), ctx.TApp.Namespace, name, gracePeriod); err != nil {
			lastErr = err
			continue
		}
		succeeded++
	}

	if succeeded == 0 {
		return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("failed to delete any of %d pod(s): %v", len(names), lastErr)}
	}
	return actions.Result{
		Status:  actions.StatusSuccess,
		Message: fmt.Sprintf("restarted %d/%d pod(s)", succeeded, len(names)),
		Details: map[string]any{"podsMatched": len(names), "podsRestarted": succeeded},
	}
}
