package render

import (
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	"github.com/Kushon/cat-api-deploy/pkg/naming"
	"github.com/Kushon/cat-api-deploy/pkg/release"
)

// applicationService is part of the ingress component: it exposes the
// application pods inside the cluster so the ingress has a backend. Its
// selector is the application's selector set; nothing else ever selects
// those pods.
func (r *renderer) applicationService() release.Manifest {
	name := r.name(release.ComponentApplication)
	port := int32(r.t.IntOr("application.port", 8000))

	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.ns,
			Labels:      naming.Labels(r.id.Name, release.ComponentApplication),
			Annotations: r.annotations(),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: naming.SelectorLabels(r.id.Name, release.ComponentApplication),
			Ports: []corev1.ServicePort{
				{Name: "http", Port: port, TargetPort: intstr.FromString("http")},
			},
		},
	}

	return release.Manifest{
		Kind:      "Service",
		Name:      name,
		Namespace: r.ns,
		Labels:    svc.Labels,
		Owner:     release.ComponentIngress,
		Object:    svc,
	}
}

func (r *renderer) ingress() release.Manifest {
	name := r.name(release.ComponentIngress)
	host := r.t.StringOr("ingress.host", "cat-api.local")
	path := r.t.StringOr("ingress.path", "/")
	backend := networkingv1.IngressBackend{
		Service: &networkingv1.IngressServiceBackend{
			Name: r.name(release.ComponentApplication),
			Port: networkingv1.ServiceBackendPort{Name: "http"},
		},
	}

	ing := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.ns,
			Labels:      naming.Labels(r.id.Name, release.ComponentIngress),
			Annotations: r.annotations(),
		},
		Spec: networkingv1.IngressSpec{
			IngressClassName: ptr.To(r.t.StringOr("ingress.className", "nginx")),
			Rules: []networkingv1.IngressRule{
				{
					Host: host,
					IngressRuleValue: networkingv1.IngressRuleValue{
						HTTP: &networkingv1.HTTPIngressRuleValue{
							Paths: []networkingv1.HTTPIngressPath{
								{
									Path:     path,
									PathType: ptr.To(networkingv1.PathTypePrefix),
									Backend:  backend,
								},
							},
						},
					},
				},
			},
		},
	}

	if r.t.BoolOr("ingress.tls", false) {
		ing.Spec.TLS = []networkingv1.IngressTLS{
			{Hosts: []string{host}, SecretName: name + "-tls"},
		}
	}

	return release.Manifest{
		Kind:      "Ingress",
		Name:      name,
		Namespace: r.ns,
		Labels:    ing.Labels,
		Owner:     release.ComponentIngress,
		Object:    ing,
	}
}

func (r *renderer) autoscaler() release.Manifest {
	name := r.name(release.ComponentApplication)

	hpa := &autoscalingv2.HorizontalPodAutoscaler{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.ns,
			Labels:      naming.Labels(r.id.Name, release.ComponentAutoscaling),
			Annotations: r.annotations(),
		},
		Spec: autoscalingv2.HorizontalPodAutoscalerSpec{
			ScaleTargetRef: autoscalingv2.CrossVersionObjectReference{
				APIVersion: "apps/v1",
				Kind:       "Deployment",
				Name:       r.name(release.ComponentApplication),
			},
			MinReplicas: ptr.To(int32(r.t.IntOr("autoscaling.minReplicas", 2))),
			MaxReplicas: int32(r.t.IntOr("autoscaling.maxReplicas", 6)),
			Metrics: []autoscalingv2.MetricSpec{
				{
					Type: autoscalingv2.ResourceMetricSourceType,
					Resource: &autoscalingv2.ResourceMetricSource{
						Name: corev1.ResourceCPU,
						Target: autoscalingv2.MetricTarget{
							Type:               autoscalingv2.UtilizationMetricType,
							AverageUtilization: ptr.To(int32(r.t.IntOr("autoscaling.targetCPUUtilization", 80))),
						},
					},
				},
			},
		},
	}

	return release.Manifest{
		Kind:      "HorizontalPodAutoscaler",
		Name:      name,
		Namespace: r.ns,
		Labels:    hpa.Labels,
		Owner:     release.ComponentAutoscaling,
		Object:    hpa,
	}
}

func (r *renderer) serviceAccount() release.Manifest {
	name := r.name(release.ComponentServiceIdentity)

	annotations := r.annotations()
	for k, v := range r.t.Sub("serviceAccount.annotations") {
		if s, ok := v.(string); ok {
			annotations[k] = s
		}
	}

	sa := &corev1.ServiceAccount{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.ns,
			Labels:      naming.Labels(r.id.Name, release.ComponentServiceIdentity),
			Annotations: annotations,
		},
	}

	return release.Manifest{
		Kind:      "ServiceAccount",
		Name:      name,
		Namespace: r.ns,
		Labels:    sa.Labels,
		Owner:     release.ComponentServiceIdentity,
		Object:    sa,
	}
}
