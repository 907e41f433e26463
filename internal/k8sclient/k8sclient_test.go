package k8sclient

import (
	"context"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestPodsBySelector(t *testing.T) {
	cs := fake.NewSimpleClientset(
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "a", Namespace: "ns", Labels: map[string]string{"app": "x"}}},
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "b", Namespace: "ns", Labels: map[string]string{"app": "y"}}},
	)
	c := NewFromClientset(cs)

	pods, err := c.PodsBySelector(context.Background(), "ns", map[string]string{"app": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pods) != 1 || pods[0].Name != "a" {
		t.Fatalf("expected exactly pod 'a', got %+v", pods)
	}
}

func TestCreateEvent(t *testing.T) {
	cs := fake.NewSimpleClientset()
	c := NewFromClientset(cs)

	err := c.CreateEvent(context.Background(), "ns", "myapp", "TargetApp", "InitialStateDetected", "hello", "Normal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, _ := cs.CoreV1().Events("ns").List(context.Background(), metav1.ListOptions{})
	if len(events.Items) != 1 {
		t.Fatalf("expected one event, got %d", len(events.Items))
	}
	ev := events.Items[0]
	if ev.Reason != "InitialStateDetected" || ev.Count != 1 || ev.Source.Component != "kco-operator" {
		t.Fatalf("unexpected event shape: %+v", ev)
	}
}

func TestScaleDeployment(t *testing.T) {
	replicas := int32(2)
	cs := fake.NewSimpleClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "dep", Namespace: "ns"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
	})
	c := NewFromClientset(cs)

	if err := c.ScaleDeployment(context.Background(), "ns", "dep", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dep, _ := cs.AppsV1().Deployments("ns").Get(context.Background(), "dep", metav1.GetOptions{})
	if dep.Spec.Replicas == nil || *dep.Spec.Replicas != 5 {
		t.Fatalf("expected replicas=5, got %+v", dep.Spec.Replicas)
	}
}

func TestDeletePodNotFoundIsNotError(t *testing.T) {
	cs := fake.NewSimpleClientset()
	c := NewFromClientset(cs)

	if err := c.DeletePod(context.Background(), "ns", "missing", 30); err != nil {
		t.Fatalf("expected not-found delete to be tolerated, got %v", err)
	}
}

func TestPatchResourceUnsupportedType(t *testing.T) {
	cs := fake.NewSimpleClientset()
	c := NewFromClientset(cs)

	err := c.PatchResource(context.Background(), "job", "ns", "name", []byte(`{}`))
	if err == nil {
		t.Fatalf("expected error for unsupported resource type")
	}
}
