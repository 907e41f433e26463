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

	"github.com/DeepInside-Informatics/kco/internal/actions"
)

// DeploymentClient is the subset of the Kubernetes client scale_deployment
// needs.
type DeploymentClient interface {
	ScaleDeployment(ctx context.Context, namespace, name string, replicas int32) error
}

// ScaleDeployment sets a Deployment's replica count.
type ScaleDeployment struct {
	client DeploymentClient
}

// NewScaleDeployment constructs the scale_deployment effector.
func NewScaleDeployment(client DeploymentClient) *ScaleDeployment {
	return &ScaleDeployment{client: client}
}

func (e *ScaleDeployment) Name() string { return "scale_deployment" }

func (e *ScaleDeployment) CanHandle(ctx actions.Context) bool {
	return actions.Evaluate(ctx.Trigger, ctx.StateChange)
}

func (e *ScaleDeployment) Execute(ctx actions.Context) actions.Result {
	rawName, ok := ctx.Parameters["deploymentName"]
	if !ok {
		return actions.Result{Status: actions.StatusFailed, Message: "deploymentName is required"}
	}
	name, ok := toString(rawName)
	if !ok {
		return actions.Result{Status: actions.StatusFailed, Message: "deploymentName must be a string"}
	}

	rawReplicas, ok := ctx.Parameters["replicas"]
	if !ok {
		return actions.Result{Status: actions.StatusFailed, Message: "replicas is required"}
	}
	replicas, ok := toInt(rawReplicas)
	if !ok {
		return actions.Result{Status: actions.StatusFailed, Message: "replicas must be an integer"}
	}
	if replicas < 0 {
		return actions.Result{Status: actions.StatusFailed, Message: "replicas must be non-negative"}
	}

	if err := e.client.ScaleDeployment(context.Background(), ctx.TApp.Namespace, name, int32(replicas)); err != nil {
		return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("scaling deployment %s: %v", name, err)}
	}

	return actions.Result{
		Status:  actions.StatusSuccess,
		Message: fmt.Sprintf("scaled %s to %d replicas", name, replicas),
		Details: map[string]any{"deploymentName": name, "replicas": replicas},
	}
}
