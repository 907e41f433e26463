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
	"context"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/DeepInside-Informatics/kco/internal/actions"
)

// ExecClient is the subset of the Kubernetes client exec_command needs.
type ExecClient interface {
	PodsBySelector(ctx context.Context, namespace string, selector map[string]string) ([]corev1.Pod, error)
	Exec(ctx context.Context, namespace, pod, container string, command []string) (stdout, stderr string, err error)
}

// ExecCommand runs a command inside each pod matching a selector.
type ExecCommand struct {
	client ExecClient
}

// NewExecCommand constructs the exec_command effector.
func NewExecCommand(client ExecClient) *ExecCommand {
	return &ExecCommand{client: client}
}

func (e *ExecCommand) Name() string { return "exec_command" }

func (e *ExecCommand) CanHandle(ctx actions.Context) bool {
	return actions.Evaluate(ctx.Trigger, ctx.StateChange)
}

func (e *ExecCommand) Execute(ctx actions.Context) actions.Result {
	command, err := e.resolveCommand(ctx.Parameters)
	if err != nil {
		return actions.Result{Status: actions.StatusFailed, Message: err.Error()}
	}

	selector := ctx.TApp.Selector
	if raw, ok := ctx.Parameters["podSelector"]; ok {
		m, ok := toStringMap(raw)
		if !ok {
			return actions.Result{Status: actions.StatusFailed, Message: "podSelector must be a map of string to string"}
		}
		selector = m
	}

	timeout := 60 * time.Second
	if raw, ok := ctx.Parameters["timeout"]; ok {
		n, ok := toInt(raw)
		if !ok {
			return actions.Result{Status: actions.StatusFailed, Message: "timeout must be an integer"}
		}
		timeout = time.Duration(n) * time.Second
	}

	execCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pods, err := e.client.PodsBySelector(execCtx, ctx.TApp.Namespace, selector)
	if err != nil {
		return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("listing pods: %v", err)}
	}
	if len(pods) == 0 {
		return actions.Result{Status: actions.StatusSkipped, Message: "no pods matched selector"}
	}

	requestedContainer, _ := toString(ctx.Parameters["container"])

	succeeded := 0
	outputs := make(map[string]string, len(pods))
	var lastErr error
	var containerWarnings []string
	for _, pod := range pods {
		container, warn := resolveContainer(pod, requestedContainer)
		if warn {
			// surfaced via Details below rather than a log dependency in this package
			containerWarnings = append(containerWarnings, fmt.Sprintf("pod %s has multiple containers, using %s", pod.Name, container))
		}
		stdout, stderr, err := e.client.Exec(execCtx, ctx.TApp.Namespace, pod.Name, container, command)
		if err != nil {
			if execCtx.Err() != nil {
				return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("exec timed out after %s", timeout)}
			}
			lastErr = err
			continue
		}
		succeeded++
		outputs[pod.Name] = stdout + stderr
	}

	if succeeded == 0 {
		return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("command failed on all %d pod(s): %v", len(pods), lastErr)}
	}
	details := map[string]any{"output": outputs}
	if len(containerWarnings) > 0 {
		details["warnings"] = containerWarnings
	}
	return actions.Result{
		Status:  actions.StatusSuccess,
		Message: fmt.Sprintf("command succeeded on %d/%d pod(s)", succeeded, len(pods)),
		Details: details,
	}
}

// resolveCommand accepts a string (wrapped as "sh -c <string>", optionally
// prefixed by a "cd <dir> &&" when workingDir is set) or a sequence.
func (e *ExecCommand) resolveCommand(params map[string]any) ([]string, error) {
	raw, ok := params["command"]
	if !ok {
		return nil, fmt.Errorf("command is required")
	}

	workingDir, _ := toString(params["workingDir"])

	if s, ok := toString(raw); ok {
		if workingDir != "" {
			s = fmt.Sprintf("cd %s && %s", workingDir, s)
		}
		return []string{"sh", "-c", s}, nil
	}

	seq, ok := toStringSlice(raw)
	if !ok {
		return nil, fmt.Errorf("command must be a string or a sequence of strings")
	}
	if workingDir != "" {
		joined := strings.Join(seq, " ")
		return []string{"sh", "-c", fmt.Sprintf("cd %s && %s", workingDir, joined)}, nil
	}
	return seq, nil
}

// resolveContainer picks the requested container, falling back to the pod's
// single container, or its first container (with warn=true) when multiple
// exist and none was requested.
func resolveContainer(pod corev1.Pod, requested string) (name string, warn bool) {
	if requested != "" {
		return requested, false
	}
	if len(pod.Spec.Containers) == 1 {
		return pod.Spec.Containers[0].Name, false
	}
	if len(pod.Spec.Containers) > 1 {
		return pod.Spec.Containers[0].Name, true
	}
	return "", false
}
