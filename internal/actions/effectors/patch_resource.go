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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DeepInside-Informatics/kco/internal/actions"
	"github.com/DeepInside-Informatics/kco/internal/k8sclient"
)

// ResourcePatcher is the subset of the Kubernetes client patch_resource
// needs.
type ResourcePatcher interface {
	PatchResource(ctx context.Context, resourceType k8sclient.ResourceType, namespace, name string, patch []byte) error
}

// PatchResource applies a strategic-merge patch to one of a fixed set of
// namespaced resource types.
type PatchResource struct {
	client ResourcePatcher
}

// NewPatchResource constructs the patch_resource effector.
func NewPatchResource(client ResourcePatcher) *PatchResource {
	return &PatchResource{client: client}
}

func (e *PatchResource) Name() string { return "patch_resource" }

func (e *PatchResource) CanHandle(ctx actions.Context) bool {
	return actions.Evaluate(ctx.Trigger, ctx.StateChange)
}

func (e *PatchResource) Execute(ctx actions.Context) actions.Result {
	rawType, ok := ctx.Parameters["resourceType"]
	if !ok {
		return actions.Result{Status: actions.StatusFailed, Message: "resourceType is required"}
	}
	typeStr, ok := toString(rawType)
	if !ok {
		return actions.Result{Status: actions.StatusFailed, Message: "resourceType must be a string"}
	}

	rawName, ok := ctx.Parameters["resourceName"]
	if !ok {
		return actions.Result{Status: actions.StatusFailed, Message: "resourceName is required"}
	}
	name, ok := toString(rawName)
	if !ok {
		return actions.Result{Status: actions.StatusFailed, Message: "resourceName must be a string"}
	}

	patchData, ok := ctx.Parameters["patchData"]
	if !ok {
		return actions.Result{Status: actions.StatusFailed, Message: "patchData is required"}
	}
	patchBytes, err := json.Marshal(patchData)
	if err != nil {
		return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("encoding patchData: %v", err)}
	}

	typeStr = strings.ToLower(typeStr)
	if !isSupportedResourceType(typeStr) {
		return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("unsupported resourceType %q, expected one of %v", typeStr, k8sclient.SupportedResourceTypes)}
	}

	if err := e.client.PatchResource(context.Background(), k8sclient.ResourceType(typeStr), ctx.TApp.Namespace, name, patchBytes); err != nil {
		return actions.Result{Status: actions.StatusFailed, Message: fmt.Sprintf("patching %s %s: %v", typeStr, name, err)}
	}

	return actions.Result{
		Status:  actions.StatusSuccess,
		Message: fmt.Sprintf("patched %s %s", typeStr, name),
		Details: map[string]any{"resourceType": typeStr, "resourceName": name},
	}
}

func isSupportedResourceType(s string) bool {
	for _, rt := range k8sclient.SupportedResourceTypes {
		if string(rt) == s {
			return true
		}
	}
	return false
}
