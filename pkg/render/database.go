package render

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/Kushon/cat-api-deploy/pkg/errors"
	"github.com/Kushon/cat-api-deploy/pkg/naming"
	"github.com/Kushon/cat-api-deploy/pkg/release"
)

// databaseManifests emits the bundled-mode database set: stateful
// workload, headless service (the stable network identity clients
// resolve), credentials secret and server configuration. In external
// mode none of these exist.
func (r *renderer) databaseManifests() ([]release.Manifest, error) {
	sts, err := r.databaseStatefulSet()
	if err != nil {
		return nil, err
	}
	return []release.Manifest{
		r.databaseConfigMap(),
		r.databaseSecret(),
		r.databaseHeadlessService(),
		sts,
	}, nil
}

func (r *renderer) databaseConfigMap() release.Manifest {
	name := r.name(release.ComponentDatabase)

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.ns,
			Labels:      naming.Labels(r.id.Name, release.ComponentDatabase),
			Annotations: r.annotations(),
		},
		Data: map[string]string{
			"POSTGRES_DB": r.t.StringOr("database.name", "cats"),
		},
	}

	return release.Manifest{
		Kind:      "ConfigMap",
		Name:      name,
		Namespace: r.ns,
		Labels:    cm.Labels,
		Owner:     release.ComponentDatabase,
		Object:    cm,
	}
}

func (r *renderer) databaseSecret() release.Manifest {
	name := r.name(release.ComponentDatabase)

	sec := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.ns,
			Labels:      naming.Labels(r.id.Name, release.ComponentDatabase),
			Annotations: r.annotations(),
		},
		Type: corev1.SecretTypeOpaque,
		StringData: map[string]string{
			"POSTGRES_USER":     r.t.StringOr("database.auth.username", ""),
			"POSTGRES_PASSWORD": r.t.StringOr("database.auth.password", ""),
		},
	}

	return release.Manifest{
		Kind:      "Secret",
		Name:      name,
		Namespace: r.ns,
		Labels:    sec.Labels,
		Owner:     release.ComponentDatabase,
		Object:    sec,
	}
}

// databaseHeadlessService is the canonical database address. Its name is
// what dependency wiring hands to the application; the stateful workload
// name is never used for addressing.
func (r *renderer) databaseHeadlessService() release.Manifest {
	name := naming.DatabaseServiceName(r.id.Name)
	port := int32(r.t.IntOr("database.port", 5432))

	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.ns,
			Labels:      naming.Labels(r.id.Name, release.ComponentDatabase),
			Annotations: r.annotations(),
		},
		Spec: corev1.ServiceSpec{
			ClusterIP: corev1.ClusterIPNone,
			Selector:  naming.SelectorLabels(r.id.Name, release.ComponentDatabase),
			Ports: []corev1.ServicePort{
				{Name: "postgresql", Port: port},
			},
		},
	}

	return release.Manifest{
		Kind:      "Service",
		Name:      name,
		Namespace: r.ns,
		Labels:    svc.Labels,
		Owner:     release.ComponentDatabase,
		Object:    svc,
	}
}

func (r *renderer) databaseStatefulSet() (release.Manifest, error) {
	name := r.name(release.ComponentDatabase)
	port := int32(r.t.IntOr("database.port", 5432))

	resources, err := parseResources(r.t, "database.resources")
	if err != nil {
		return release.Manifest{}, err
	}

	size, err := resource.ParseQuantity(r.t.StringOr("database.storage.size", "8Gi"))
	if err != nil {
		return release.Manifest{}, errors.Wrap(errors.ErrCodeConfiguration,
			"invalid storage size", err).
			WithPhase("render").WithPath("database.storage.size")
	}

	pvc := corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: "data"},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: size},
			},
		},
	}
	if class := r.t.StringOr("database.storage.className", ""); class != "" {
		pvc.Spec.StorageClassName = ptr.To(class)
	}

	container := corev1.Container{
		Name:  string(release.ComponentDatabase),
		Image: imageRef(r.t, "database.image"),
		Ports: []corev1.ContainerPort{
			{Name: "postgresql", ContainerPort: port},
		},
		EnvFrom: []corev1.EnvFromSource{
			{ConfigMapRef: &corev1.ConfigMapEnvSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: name},
			}},
			{SecretRef: &corev1.SecretEnvSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: name},
			}},
		},
		VolumeMounts: []corev1.VolumeMount{
			{Name: "data", MountPath: "/var/lib/postgresql/data"},
		},
		Resources: resources,
	}

	sts := &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.ns,
			Labels:      naming.Labels(r.id.Name, release.ComponentDatabase),
			Annotations: r.annotations(),
		},
		Spec: appsv1.StatefulSetSpec{
			ServiceName: naming.DatabaseServiceName(r.id.Name),
			Replicas:    ptr.To(int32(1)),
			Selector: &metav1.LabelSelector{
				MatchLabels: naming.SelectorLabels(r.id.Name, release.ComponentDatabase),
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: naming.Labels(r.id.Name, release.ComponentDatabase),
					Annotations: map[string]string{
						AnnotationConfigChecksum: databaseChecksum(r.t),
					},
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{container},
				},
			},
			VolumeClaimTemplates: []corev1.PersistentVolumeClaim{pvc},
		},
	}

	return release.Manifest{
		Kind:      "StatefulSet",
		Name:      name,
		Namespace: r.ns,
		Labels:    sts.Labels,
		Owner:     release.ComponentDatabase,
		Object:    sts,
	}, nil
}
