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

// Package reconciler bridges TargetApp custom resource lifecycle events to
// the Controller's StartMonitoring/UpdateMonitoring/StopMonitoring calls.
package reconciler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	operatorv1alpha1 "github.com/DeepInside-Informatics/kco/api/v1alpha1"
	"github.com/DeepInside-Informatics/kco/internal/controller"
)

const monitoringFinalizer = "operator.kco.local/monitoring-finalizer"

// TargetAppReconciler reconciles a TargetApp object against a Controller.
type TargetAppReconciler struct {
	client.Client
	Log        logr.Logger
	Scheme     *runtime.Scheme
	Controller *controller.Controller
}

// +kubebuilder:rbac:groups=operator.kco.local,resources=targetapps,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=operator.kco.local,resources=targetapps/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=operator.kco.local,resources=targetapps/finalizers,verbs=update
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch;delete
// +kubebuilder:rbac:groups="",resources=pods/exec,verbs=create
// +kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;patch

func (r *TargetAppReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := r.Log.WithValues("targetapp", req.NamespacedName)

	var tapp operatorv1alpha1.TargetApp
	if err := r.Get(ctx, req.NamespacedName, &tapp); err != nil {
		if apierrors.IsNotFound(err) {
			r.Controller.StopMonitoring(req.Namespace, req.Name)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, fmt.Errorf("fetching TargetApp: %w", err)
	}

	if !tapp.DeletionTimestamp.IsZero() {
		r.Controller.StopMonitoring(req.Namespace, req.Name)
		if controllerutil.ContainsFinalizer(&tapp, monitoringFinalizer) {
			controllerutil.RemoveFinalizer(&tapp, monitoringFinalizer)
			if err := r.Update(ctx, &tapp); err != nil {
				return ctrl.Result{}, fmt.Errorf("removing finalizer: %w", err)
			}
		}
		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(&tapp, monitoringFinalizer) {
		controllerutil.AddFinalizer(&tapp, monitoringFinalizer)
		if err := r.Update(ctx, &tapp); err != nil {
			return ctrl.Result{}, fmt.Errorf("adding finalizer: %w", err)
		}
		return ctrl.Result{Requeue: true}, nil
	}

	spec, err := specToMap(tapp.Spec)
	if err != nil {
		log.Error(err, "failed to marshal TargetApp spec")
		return ctrl.Result{}, nil
	}

	if tapp.Generation == tapp.Status.ObservedGeneration && tapp.Status.State != "" {
		return ctrl.Result{}, nil
	}

	if tapp.Status.ObservedGeneration == 0 {
		if err := r.Controller.StartMonitoring(ctx, tapp.Namespace, tapp.Name, spec); err != nil {
			log.Error(err, "failed to start monitoring")
			tapp.Status.State = "Failed"
			tapp.Status.LastError = err.Error()
			_ = r.Status().Update(ctx, &tapp)
			return ctrl.Result{}, nil
		}
	} else {
		if err := r.Controller.UpdateMonitoring(ctx, tapp.Namespace, tapp.Name, spec); err != nil {
			log.Error(err, "failed to update monitoring")
			tapp.Status.State = "Failed"
			tapp.Status.LastError = err.Error()
			_ = r.Status().Update(ctx, &tapp)
			return ctrl.Result{}, nil
		}
	}

	tapp.Status.State = "Monitoring"
	tapp.Status.LastError = ""
	tapp.Status.ObservedGeneration = tapp.Generation
	if ts, ok := r.Controller.TenantStats(tapp.Namespace, tapp.Name); ok {
		if !ts.LastPolled.IsZero() {
			polled := metav1.NewTime(ts.LastPolled)
			tapp.Status.LastPolled = &polled
		}
		tapp.Status.ActionsExecuted = ts.ActionsExecuted
		tapp.Status.EventsGenerated = ts.EventsGenerated
	}
	if err := r.Status().Update(ctx, &tapp); err != nil {
		return ctrl.Result{}, fmt.Errorf("updating status: %w", err)
	}

	return ctrl.Result{}, nil
}

func (r *TargetAppReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&operatorv1alpha1.TargetApp{}).
		Complete(r)
}

// specToMap converts a typed TargetAppSpec into the map[string]any shape the
// Controller accepts, preserving the JSON field names used throughout the
// config translation layer.
func specToMap(spec operatorv1alpha1.TargetAppSpec) (map[string]any, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal spec: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	return out, nil
}
