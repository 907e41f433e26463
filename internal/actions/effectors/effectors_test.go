package effectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/DeepInside-Informatics/kco/internal/actions"
	"github.com/DeepInside-Informatics/kco/internal/k8sclient"
	"github.com/DeepInside-Informatics/kco/internal/statestore"
)

type fakePodClient struct {
	pods       []corev1.Pod
	deleteErrs map[string]error
	deleted    []string
}

func (f *fakePodClient) PodsBySelector(_ context.Context, _ string, _ map[string]string) ([]corev1.Pod, error) {
	return f.pods, nil
}

func (f *fakePodClient) DeletePod(_ context.Context, _ string, name string, _ int64) error {
	if err, ok := f.deleteErrs[name]; ok {
		return err
	}
	f.deleted = append(f.deleted, name)
	return nil
}

func initialContext(trigger actions.TriggerSpec, params map[string]any) actions.Context {
	return actions.Context{
		StateChange: statestore.Change{NewSnapshot: statestore.NewSnapshot(map[string]any{"app": map[string]any{"health": "unhealthy"}})},
		Trigger:     trigger,
		Parameters:  params,
		TApp:        actions.TAppConfig{Namespace: "ns", Name: "app", Selector: map[string]string{"app": "x"}},
	}
}

func TestRestartPodSuccess(t *testing.T) {
	client := &fakePodClient{pods: []corev1.Pod{{ObjectMeta: metaName("p1")}, {ObjectMeta: metaName("p2")}}}
	eff := NewRestartPod(client)

	res := eff.Execute(initialContext(actions.TriggerSpec{}, map[string]any{"gracePeriod": 15}))
	if res.Status != actions.StatusSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(client.deleted) != 2 {
		t.Fatalf("expected both pods deleted, got %v", client.deleted)
	}
}

func TestRestartPodSkippedWhenNoPods(t *testing.T) {
	client := &fakePodClient{}
	eff := NewRestartPod(client)

	res := eff.Execute(initialContext(actions.TriggerSpec{}, map[string]any{}))
	if res.Status != actions.StatusSkipped {
		t.Fatalf("expected skipped, got %+v", res)
	}
}

type fakeDeploymentClient struct {
	scaled   string
	replicas int32
	err      error
}

func (f *fakeDeploymentClient) ScaleDeployment(_ context.Context, _ string, name string, replicas int32) error {
	f.scaled = name
	f.replicas = replicas
	return f.err
}

func TestScaleDeploymentSuccess(t *testing.T) {
	client := &fakeDeploymentClient{}
	eff := NewScaleDeployment(client)

	res := eff.Execute(initialContext(actions.TriggerSpec{}, map[string]any{"deploymentName": "web", "replicas": 3.0}))
	if res.Status != actions.StatusSuccess || client.scaled != "web" || client.replicas != 3 {
		t.Fatalf("unexpected result: %+v client=%+v", res, client)
	}
}

func TestScaleDeploymentRejectsNegativeReplicas(t *testing.T) {
	client := &fakeDeploymentClient{}
	eff := NewScaleDeployment(client)

	res := eff.Execute(initialContext(actions.TriggerSpec{}, map[string]any{"deploymentName": "web", "replicas": -1.0}))
	if res.Status != actions.StatusFailed {
		t.Fatalf("expected failed for negative replicas, got %+v", res)
	}
}

func TestScaleDeploymentRequiresParameters(t *testing.T) {
	eff := NewScaleDeployment(&fakeDeploymentClient{})
	res := eff.Execute(initialContext(actions.TriggerSpec{}, map[string]any{}))
	if res.Status != actions.StatusFailed {
		t.Fatalf("expected failed when required params missing, got %+v", res)
	}
}

type fakePatcher struct {
	calledType k8sclient.ResourceType
}

func (f *fakePatcher) PatchResource(_ context.Context, rt k8sclient.ResourceType, _, _ string, _ []byte) error {
	f.calledType = rt
	return nil
}

func TestPatchResourceUnsupportedType(t *testing.T) {
	eff := NewPatchResource(&fakePatcher{})
	res := eff.Execute(initialContext(actions.TriggerSpec{}, map[string]any{
		"resourceType": "job", "resourceName": "x", "patchData": map[string]any{},
	}))
	if res.Status != actions.StatusFailed {
		t.Fatalf("expected failed for unsupported type, got %+v", res)
	}
}

func TestPatchResourceSuccessCaseInsensitive(t *testing.T) {
	client := &fakePatcher{}
	eff := NewPatchResource(client)
	res := eff.Execute(initialContext(actions.TriggerSpec{}, map[string]any{
		"resourceType": "DEPLOYMENT", "resourceName": "x", "patchData": map[string]any{"spec": map[string]any{}},
	}))
	if res.Status != actions.StatusSuccess || client.calledType != k8sclient.ResourceDeployment {
		t.Fatalf("unexpected result: %+v client=%+v", res, client)
	}
}

type fakeExecClient struct {
	pods   []corev1.Pod
	output string
	err    error
}

func (f *fakeExecClient) PodsBySelector(_ context.Context, _ string, _ map[string]string) ([]corev1.Pod, error) {
	return f.pods, nil
}

func (f *fakeExecClient) Exec(_ context.Context, _, _, _ string, _ []string) (string, string, error) {
	return f.output, "", f.err
}

func TestExecCommandWrapsStringAsShell(t *testing.T) {
	client := &fakeExecClient{pods: []corev1.Pod{{ObjectMeta: metaName("p1")}}, output: "ok"}
	eff := NewExecCommand(client)

	cmd, err := eff.resolveCommand(map[string]any{"command": "echo hi"})
	if err != nil || len(cmd) != 3 || cmd[0] != "sh" || cmd[1] != "-c" || cmd[2] != "echo hi" {
		t.Fatalf("expected sh -c wrapping, got %v err=%v", cmd, err)
	}
}

func TestExecCommandSuccess(t *testing.T) {
	client := &fakeExecClient{pods: []corev1.Pod{{ObjectMeta: metaName("p1")}}, output: "ok"}
	eff := NewExecCommand(client)

	res := eff.Execute(initialContext(actions.TriggerSpec{}, map[string]any{"command": "echo hi"}))
	if res.Status != actions.StatusSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestWebhookSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	eff := NewWebhook()
	res := eff.Execute(initialContext(actions.TriggerSpec{}, map[string]any{"url": srv.URL}))
	if res.Status != actions.StatusSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestWebhookNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	eff := NewWebhook()
	res := eff.Execute(initialContext(actions.TriggerSpec{}, map[string]any{"url": srv.URL}))
	if res.Status != actions.StatusFailed {
		t.Fatalf("expected failed for 500 response, got %+v", res)
	}
}

func TestWebhookRequiresURL(t *testing.T) {
	eff := NewWebhook()
	res := eff.Execute(initialContext(actions.TriggerSpec{}, map[string]any{}))
	if res.Status != actions.StatusFailed {
		t.Fatalf("expected failed when url missing, got %+v", res)
	}
}

func metaName(name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{Name: name}
}
