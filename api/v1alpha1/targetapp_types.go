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

package v1alpha1

import (
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// TriggerSpec names the field, comparison condition, and value that decides
// whether an ActionSpec fires for a given polling cycle.
type TriggerSpec struct {
	// Field is a dotted path into the polled state, e.g. "app.health".
	// +kubebuilder:validation:Required
	Field string `json:"field"`

	// Condition is one of equals, not_equals, greater_than, less_than,
	// contains, exists, not_exists.
	// +kubebuilder:validation:Enum=equals;not_equals;greater_than;less_than;contains;exists;not_exists
	Condition string `json:"condition"`

	// Value is compared against Field under Condition. Unused by exists/not_exists.
	// +optional
	Value *apiextensionsv1.JSON `json:"value,omitempty"`
}

// ActionSpec binds a Trigger to a named, registered effector and its parameters.
type ActionSpec struct {
	// Trigger decides whether Action runs for a given state change.
	Trigger TriggerSpec `json:"trigger"`

	// Action is the registered effector name, e.g. restart_pod, scale_deployment,
	// patch_resource, exec_command, webhook.
	// +kubebuilder:validation:Required
	Action string `json:"action"`

	// Parameters are passed verbatim to the effector.
	// +optional
	Parameters *apiextensionsv1.JSON `json:"parameters,omitempty"`
}

// TargetAppSpec defines the desired monitoring behavior for a TargetApp.
type TargetAppSpec struct {
	// Selector identifies the pods backing this Target Application.
	// +kubebuilder:validation:Required
	Selector map[string]string `json:"selector"`

	// GraphQLEndpoint is the state query endpoint, absolute or pod-relative path.
	// +kubebuilder:default="/graphql"
	// +optional
	GraphQLEndpoint string `json:"graphqlEndpoint,omitempty"`

	// PollingInterval is the poll cadence in seconds.
	// +kubebuilder:validation:Minimum=5
	// +kubebuilder:validation:Maximum=3600
	// +kubebuilder:default=30
	// +optional
	PollingInterval int `json:"pollingInterval,omitempty"`

	// StateQuery is the GraphQL query string issued against GraphQLEndpoint.
	// +kubebuilder:validation:Required
	StateQuery string `json:"stateQuery"`

	// Actions are the trigger-bound effector dispatches evaluated each cycle.
	// +optional
	Actions []ActionSpec `json:"actions,omitempty"`

	// Timeout is the per-request timeout in seconds.
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=60
	// +kubebuilder:default=10
	// +optional
	Timeout int `json:"timeout,omitempty"`

	// MaxRetries bounds transport-error retry attempts per query.
	// +kubebuilder:validation:Minimum=0
	// +kubebuilder:validation:Maximum=10
	// +kubebuilder:default=3
	// +optional
	MaxRetries int `json:"maxRetries,omitempty"`
}

// TargetAppStatus reports the observed state of the monitoring loop. Fields
// are monotonic within a single Supervisor lifetime: counters never decrease
// and LastPolled never regresses.
type TargetAppStatus struct {
	// State is a short summary: Monitoring, Failed.
	// +optional
	State string `json:"state,omitempty"`

	// LastPolled is the timestamp of the most recently completed poll cycle.
	// +optional
	LastPolled *metav1.Time `json:"lastPolled,omitempty"`

	// LastError holds the most recent poll or action error, if any.
	// +optional
	LastError string `json:"lastError,omitempty"`

	// ActionsExecuted counts effector dispatches since monitoring began.
	// +optional
	ActionsExecuted int64 `json:"actionsExecuted,omitempty"`

	// EventsGenerated counts cluster Events emitted since monitoring began.
	// +optional
	EventsGenerated int64 `json:"eventsGenerated,omitempty"`

	// ObservedGeneration is the spec generation the Controller last acted on.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="State",type=string,JSONPath=`.status.state`
// +kubebuilder:printcolumn:name="LastPolled",type=date,JSONPath=`.status.lastPolled`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// TargetApp is the Schema for the targetapps API.
type TargetApp struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   TargetAppSpec   `json:"spec,omitempty"`
	Status TargetAppStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// TargetAppList contains a list of TargetApp.
type TargetAppList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []TargetApp `json:"items"`
}

func init() {
	SchemeBuilder.Register(&TargetApp{}, &TargetAppList{})
}
