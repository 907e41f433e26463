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

// Package k8sclient wraps the subset of client-go the monitoring control
// plane needs: pod discovery, event creation, and the cluster mutations
// issued by the built-in effectors.
package k8sclient

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
)

// Client is a thin, typed wrapper over a client-go clientset.
type Client struct {
	clientset kubernetes.Interface
	config    *rest.Config
}

// New builds a Client from in-cluster configuration, falling back to the
// local kubeconfig for out-of-cluster development, mirroring the fallback
// every controller-runtime-based operator performs at startup.
func New() (*Client, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		cfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{}).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("loading kubernetes configuration: %w", err)
		}
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building clientset: %w", err)
	}

	return &Client{clientset: cs, config: cfg}, nil
}

// NewFromClientset wraps an existing clientset, primarily for tests built
// against k8s.io/client-go/kubernetes/fake.
func NewFromClientset(cs kubernetes.Interface) *Client {
	return &Client{clientset: cs}
}

// PodsBySelector returns the pods in namespace matching selector.
func (c *Client) PodsBySelector(ctx context.Context, namespace string, selector map[string]string) ([]corev1.Pod, error) {
	list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.SelectorFromSet(selector).String(),
	})
	if err != nil {
		return nil, fmt.Errorf("listing pods by selector: %w", err)
	}
	return list.Items, nil
}

// ResolvePodIP returns the IP of the first pod matching selector in
// namespace that has an assigned IP (pod readiness is not checked),
// implementing supervisor.PodResolver. Rediscovery only happens
// when a Supervisor is started or updated, never mid-cycle.
func (c *Client) ResolvePodIP(ctx context.Context, namespace string, selector map[string]string) (string, error) {
	pods, err := c.PodsBySelector(ctx, namespace, selector)
	if err != nil {
		return "", err
	}
	for _, pod := range pods {
		if pod.Status.PodIP != "" {
			return pod.Status.PodIP, nil
		}
	}
	return "", fmt.Errorf("no pod with an assigned IP found for selector %v in namespace %s", selector, namespace)
}

// CreateEvent records a namespaced Event whose involved object is identified
// by kind/name/namespace, matching the shape in the external interface
// contract: generateName "<name>-", firstTimestamp == lastTimestamp == now,
// count == 1, source.component == "kco-operator".
func (c *Client) CreateEvent(ctx context.Context, namespace, involvedName, involvedKind, reason, message, eventType string) error {
	now := metav1.Now()
	event := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: involvedName + "-",
			Namespace:    namespace,
		},
		InvolvedObject: corev1.ObjectReference{
			Kind:      involvedKind,
			Name:      involvedName,
			Namespace: namespace,
		},
		Reason:         reason,
		Message:        message,
		Type:           eventType,
		FirstTimestamp: now,
		LastTimestamp:  now,
		Count:          1,
		Source:         corev1.EventSource{Component: "kco-operator"},
	}

	_, err := c.clientset.CoreV1().Events(namespace).Create(ctx, event, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("creating event: %w", err)
	}
	return nil
}

// ScaleDeployment reads the named deployment and patches its replica count.
func (c *Client) ScaleDeployment(ctx context.Context, namespace, name string, replicas int32) error {
	deployments := c.clientset.AppsV1().Deployments(namespace)

	if _, err := deployments.Get(ctx, name, metav1.GetOptions{}); err != nil {
		return fmt.Errorf("reading deployment: %w", err)
	}

	patch := []byte(fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas))
	if _, err := deployments.Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{}); err != nil {
		return fmt.Errorf("scaling deployment: %w", err)
	}
	return nil
}

// DeletePod deletes name with the given grace period.
func (c *Client) DeletePod(ctx context.Context, namespace, name string, gracePeriodSeconds int64) error {
	err := c.clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{
		GracePeriodSeconds: &gracePeriodSeconds,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting pod: %w", err)
	}
	return nil
}

// ResourceType enumerates the patchable resource kinds exposed to the
// patch_resource effector.
type ResourceType string

const (
	ResourcePod         ResourceType = "pod"
	ResourceService      ResourceType = "service"
	ResourceConfigMap    ResourceType = "configmap"
	ResourceSecret       ResourceType = "secret"
	ResourceDeployment   ResourceType = "deployment"
	ResourceReplicaSet   ResourceType = "replicaset"
	ResourceDaemonSet    ResourceType = "daemonset"
	ResourceStatefulSet  ResourceType = "statefulset"
)

// SupportedResourceTypes is the accepted set for patch_resource's error
// message when an unsupported type is requested.
var SupportedResourceTypes = []ResourceType{
	ResourcePod, ResourceService, ResourceConfigMap, ResourceSecret,
	ResourceDeployment, ResourceReplicaSet, ResourceDaemonSet, ResourceStatefulSet,
}

// PatchResource applies a strategic-merge patch to the named resource of
// resourceType in namespace.
func (c *Client) PatchResource(ctx context.Context, resourceType ResourceType, namespace, name string, patch []byte) error {
	var err error
	switch ResourceType(strings.ToLower(string(resourceType))) {
	case ResourcePod:
		_, err = c.clientset.CoreV1().Pods(namespace).Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	case ResourceService:
		_, err = c.clientset.CoreV1().Services(namespace).Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	case ResourceConfigMap:
		_, err = c.clientset.CoreV1().ConfigMaps(namespace).Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	case ResourceSecret:
		_, err = c.clientset.CoreV1().Secrets(namespace).Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	case ResourceDeployment:
		_, err = c.clientset.AppsV1().Deployments(namespace).Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	case ResourceReplicaSet:
		_, err = c.clientset.AppsV1().ReplicaSets(namespace).Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	case ResourceDaemonSet:
		_, err = c.clientset.AppsV1().DaemonSets(namespace).Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	case ResourceStatefulSet:
		_, err = c.clientset.AppsV1().StatefulSets(namespace).Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	default:
		return fmt.Errorf("unsupported resource type %q, expected one of %v", resourceType, SupportedResourceTypes)
	}
	if err != nil {
		return fmt.Errorf("patching %s/%s: %w", resourceType, name, err)
	}
	return nil
}

// Exec runs command inside container of pod via the SPDY remote-command
// protocol, returning the captured stdout/stderr.
func (c *Client) Exec(ctx context.Context, namespace, pod, container string, command []string) (stdout, stderr string, err error) {
	if c.config == nil {
		return "", "", fmt.Errorf("exec unavailable: client not constructed with a rest.Config")
	}

	req := c.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec")

	req.VersionedParams(&corev1.PodExecOptions{
		Container: container,
		Command:   command,
		Stdin:     false,
		Stdout:    true,
		Stderr:    true,
		TTY:       false,
	}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(c.config, "POST", req.URL())
	if err != nil {
		return "", "", fmt.Errorf("building exec executor: %w", err)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdoutBuf,
		Stderr: &stderrBuf,
	})
	return stdoutBuf.String(), stderrBuf.String(), err
}
