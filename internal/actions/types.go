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

// Package actions holds the plugin registry that dispatches trigger-matched
// configuration to built-in effectors, and the free-function trigger
// evaluator shared by all of them.
package actions

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DeepInside-Informatics/kco/internal/statestore"
)

// TriggerSpec names the field/condition/value a Supervisor checks against a
// StateChange before dispatching an action.
type TriggerSpec struct {
	Field     string
	Condition string
	Value     any
}

// TAppConfig is the immutable subset of a TApp's configuration an effector
// may need (its selector and namespace), passed by value so effectors
// cannot retain a mutable reference to it.
type TAppConfig struct {
	Namespace string
	Name      string
	Selector  map[string]string
}

// Context is passed by value to an effector's CanHandle and Execute. An
// effector must not retain it across calls.
type Context struct {
	StateChange statestore.Change
	Trigger     TriggerSpec
	Parameters  map[string]any
	TApp        TAppConfig
}

// Status is the outcome of an action execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of dispatching one action. DurationSeconds is always
// stamped by the Registry, never trusted from the effector.
type Result struct {
	Status          Status
	Message         string
	Details         map[string]any
	DurationSeconds float64
}

// Effector is a compiled-in plugin performing one kind of cluster or
// external side effect. Implementations must not panic for expected failure
// modes; they should return a failed Result instead. An unexpected panic is
// still recovered by the Registry and converted to a failed Result.
type Effector interface {
	Name() string
	CanHandle(ctx Context) bool
	Execute(ctx Context) Result
}

// Evaluate is the free function trigger evaluator shared by every
// effector's CanHandle, replacing the inheritance-based base class.
func Evaluate(trigger TriggerSpec, change statestore.Change) bool {
	if trigger.Field == "" || trigger.Condition == "" {
		return false
	}

	if !change.IsInitial() && !changedPathContains(change.ChangedPaths, trigger.Field) {
		return false
	}

	value, present := statestore.Lookup(change.NewSnapshot.Data, trigger.Field)

	switch trigger.Condition {
	case "equals":
		return present && fmt.Sprint(value) == fmt.Sprint(trigger.Value)
	case "not_equals":
		return !present || fmt.Sprint(value) != fmt.Sprint(trigger.Value)
	case "greater_than":
		a, aok := toFloat(value)
		b, bok := toFloat(trigger.Value)
		return aok && bok && a > b
	case "less_than":
		a, aok := toFloat(value)
		b, bok := toFloat(trigger.Value)
		return aok && bok && a < b
	case "contains":
		return present && strings.Contains(fmt.Sprint(value), fmt.Sprint(trigger.Value))
	case "exists":
		return present
	case "not_exists":
		return !present
	default:
		return false
	}
}

func changedPathContains(paths []string, field string) bool {
	for _, p := range paths {
		if p == field {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// stamp fills in the DurationSeconds field of a Result based on the time
// elapsed since started, overriding whatever the effector itself set.
func stamp(r Result, started time.Time) Result {
	r.DurationSeconds = time.Since(started).Seconds()
	return r
}
