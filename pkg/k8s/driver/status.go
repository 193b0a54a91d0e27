package driver

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/Kushon/cat-api-deploy/pkg/release"
	"github.com/Kushon/cat-api-deploy/pkg/scheduler"
)

// ResourceStatus is the observed state of one release resource.
type ResourceStatus struct {
	Resource string `json:"resource"`
	Owner    string `json:"owner"`
	Found    bool   `json:"found"`
	Summary  string `json:"summary"`
}

// Status reports the observed state of one manifest's cluster resource.
func (d *Driver) Status(ctx context.Context, m release.Manifest) (ResourceStatus, error) {
	st := ResourceStatus{Resource: m.String(), Owner: string(m.Owner)}
	ns := m.Namespace

	var err error
	switch m.Object.(type) {
	case *appsv1.Deployment:
		var dep *appsv1.Deployment
		dep, err = d.client.AppsV1().Deployments(ns).Get(ctx, m.Name, metav1.GetOptions{})
		if err == nil {
			st.Found = true
			st.Summary = fmt.Sprintf("%d/%d replicas ready", dep.Status.ReadyReplicas, dep.Status.Replicas)
		}

	case *appsv1.StatefulSet:
		var sts *appsv1.StatefulSet
		sts, err = d.client.AppsV1().StatefulSets(ns).Get(ctx, m.Name, metav1.GetOptions{})
		if err == nil {
			st.Found = true
			st.Summary = fmt.Sprintf("%d/%d replicas ready", sts.Status.ReadyReplicas, sts.Status.Replicas)
		}

	case *batchv1.Job:
		var state scheduler.TaskState
		state, err = d.TaskState(ctx, ns, m.Name)
		if err == nil && state != scheduler.TaskNotFound {
			st.Found = true
			st.Summary = string(state)
		}

	case *corev1.ConfigMap:
		_, err = d.client.CoreV1().ConfigMaps(ns).Get(ctx, m.Name, metav1.GetOptions{})
		st.Found, st.Summary = err == nil, "present"

	case *corev1.Secret:
		_, err = d.client.CoreV1().Secrets(ns).Get(ctx, m.Name, metav1.GetOptions{})
		st.Found, st.Summary = err == nil, "present"

	case *corev1.Service:
		_, err = d.client.CoreV1().Services(ns).Get(ctx, m.Name, metav1.GetOptions{})
		st.Found, st.Summary = err == nil, "present"

	case *corev1.ServiceAccount:
		_, err = d.client.CoreV1().ServiceAccounts(ns).Get(ctx, m.Name, metav1.GetOptions{})
		st.Found, st.Summary = err == nil, "present"

	case *networkingv1.Ingress:
		_, err = d.client.NetworkingV1().Ingresses(ns).Get(ctx, m.Name, metav1.GetOptions{})
		st.Found, st.Summary = err == nil, "present"

	case *autoscalingv2.HorizontalPodAutoscaler:
		var hpa *autoscalingv2.HorizontalPodAutoscaler
		hpa, err = d.client.AutoscalingV2().HorizontalPodAutoscalers(ns).Get(ctx, m.Name, metav1.GetOptions{})
		if err == nil {
			st.Found = true
			st.Summary = fmt.Sprintf("%d current replicas", hpa.Status.CurrentReplicas)
		}

	default:
		return st, fmt.Errorf("unsupported manifest kind %q", m.Kind)
	}

	if apierrors.IsNotFound(err) {
		st.Summary = "missing"
		return st, nil
	}
	if err != nil {
		return st, err
	}
	return st, nil
}
