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

// Command operator runs the kco-operator controller manager: it watches
// TargetApp custom resources and supervises the poll/diff/emit/act loop for
// each one.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	operatorv1alpha1 "github.com/DeepInside-Informatics/kco/api/v1alpha1"
	"github.com/DeepInside-Informatics/kco/internal/actions"
	"github.com/DeepInside-Informatics/kco/internal/actions/effectors"
	"github.com/DeepInside-Informatics/kco/internal/config"
	"github.com/DeepInside-Informatics/kco/internal/controller"
	"github.com/DeepInside-Informatics/kco/internal/events"
	"github.com/DeepInside-Informatics/kco/internal/health"
	"github.com/DeepInside-Informatics/kco/internal/k8sclient"
	"github.com/DeepInside-Informatics/kco/internal/logging"
	"github.com/DeepInside-Informatics/kco/internal/metrics"
	"github.com/DeepInside-Informatics/kco/internal/ratelimit"
	"github.com/DeepInside-Informatics/kco/internal/reconciler"
	"github.com/DeepInside-Informatics/kco/internal/statestore"
)

var (
	scheme  = runtime.NewScheme()
	version = "dev"
)

func init() {
	_ = clientgoscheme.AddToScheme(scheme)
	_ = operatorv1alpha1.AddToScheme(scheme)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	zapLogger, err := logging.New(settings.LogLevel, settings.LogFormat)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()
	logrLogger := logging.NewLogrLogger(zapLogger)
	ctrl.SetLogger(logrLogger)

	k8s, err := k8sclient.New()
	if err != nil {
		return fmt.Errorf("building kubernetes client: %w", err)
	}

	registry := actions.NewRegistry()
	registry.Register(effectors.NewRestartPod(k8s))
	registry.Register(effectors.NewScaleDeployment(k8s))
	registry.Register(effectors.NewPatchResource(k8s))
	registry.Register(effectors.NewExecCommand(k8s))
	registry.Register(effectors.NewWebhook())

	limiter := ratelimit.New(settings.RateLimitRequests)
	stateStore := statestore.New()
	emitter := events.New(k8s, sugar)
	stats := metrics.Sink{}

	if settings.MetricsEnabled {
		prometheus.MustRegister(metrics.All()...)
		go serveMetrics(settings.MetricsAddr())
	}

	kco := controller.New(stateStore, emitter, limiter, registry, k8s, stats, sugar)

	// The operator owns its own /metrics and /healthz servers, so
	// controller-runtime's built-in metrics server is disabled.
	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:  scheme,
		Metrics: metricsserver.Options{BindAddress: "0"},
	})
	if err != nil {
		return fmt.Errorf("starting manager: %w", err)
	}

	if err := (&reconciler.TargetAppReconciler{
		Client:     mgr.GetClient(),
		Log:        logrLogger.WithName("controllers").WithName("TargetApp"),
		Scheme:     mgr.GetScheme(),
		Controller: kco,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("setting up TargetApp reconciler: %w", err)
	}

	ctx := ctrl.SetupSignalHandler()
	kco.Run(ctx)

	healthSrv := health.New(settings.HealthAddr(), version, kco)
	go func() {
		if err := healthSrv.Start(ctx); err != nil {
			sugar.Errorw("health server exited with error", "error", err)
		}
	}()

	sugar.Info("starting manager")
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("problem running manager: %w", err)
	}

	kco.Shutdown()
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	_ = http.ListenAndServe(addr, mux)
}
