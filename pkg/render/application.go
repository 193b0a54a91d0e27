package render

import (
	"fmt"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	"github.com/Kushon/cat-api-deploy/pkg/naming"
	"github.com/Kushon/cat-api-deploy/pkg/release"
	"github.com/Kushon/cat-api-deploy/pkg/settings"
)

// Secret keys of the application credentials secret.
const (
	SecretKeyUsername      = "username"
	SecretKeyPassword      = "password"
	SecretKeyCachePassword = "redis-password"
)

// applicationConfigMap holds the plain (non-sensitive) runtime
// configuration injected into the application via envFrom.
func (r *renderer) applicationConfigMap() release.Manifest {
	name := r.name(release.ComponentApplication)

	data := map[string]string{
		"ENVIRONMENT": r.t.ScopedString("application", "environment", "production"),
	}
	if cache, ok := cacheEnv(r.t); ok {
		for k, v := range cache {
			data[k] = v
		}
	}
	// Operator-supplied extra environment, plain values only.
	for k, v := range r.t.Sub("application.env") {
		data[k] = fmt.Sprintf("%v", v)
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.ns,
			Labels:      naming.Labels(r.id.Name, release.ComponentApplication),
			Annotations: r.annotations(),
		},
		Data: data,
	}

	return release.Manifest{
		Kind:      "ConfigMap",
		Name:      name,
		Namespace: r.ns,
		Labels:    cm.Labels,
		Owner:     release.ComponentApplication,
		Object:    cm,
	}
}

// applicationSecret carries the database credentials. Sensitive values
// never appear in plain configuration; the workload references them
// through secret key selectors only.
func (r *renderer) applicationSecret() release.Manifest {
	name := r.name(release.ComponentApplication)

	sec := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.ns,
			Labels:      naming.Labels(r.id.Name, release.ComponentApplication),
			Annotations: r.annotations(),
		},
		Type: corev1.SecretTypeOpaque,
		StringData: map[string]string{
			SecretKeyUsername: r.t.StringOr("database.auth.username", ""),
			SecretKeyPassword: r.t.StringOr("database.auth.password", ""),
		},
	}
	if pw := cachePassword(r.t); pw != "" {
		sec.StringData[SecretKeyCachePassword] = pw
	}

	return release.Manifest{
		Kind:      "Secret",
		Name:      name,
		Namespace: r.ns,
		Labels:    sec.Labels,
		Owner:     release.ComponentApplication,
		Object:    sec,
	}
}

func (r *renderer) applicationDeployment() (release.Manifest, error) {
	name := r.name(release.ComponentApplication)
	port := r.t.IntOr("application.port", 8000)

	resources, err := parseResources(r.t, "application.resources")
	if err != nil {
		return release.Manifest{}, err
	}

	podAnnotations := map[string]string{
		AnnotationConfigChecksum: applicationChecksum(r.t),
	}

	container := corev1.Container{
		Name:            string(release.ComponentApplication),
		Image:           imageRef(r.t, "application.image"),
		ImagePullPolicy: corev1.PullPolicy(r.t.StringOr("application.image.pullPolicy", "IfNotPresent")),
		Ports: []corev1.ContainerPort{
			{Name: "http", ContainerPort: int32(port)},
		},
		Env: r.databaseEnv(),
		EnvFrom: []corev1.EnvFromSource{
			{ConfigMapRef: &corev1.ConfigMapEnvSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: name},
			}},
		},
		Resources: resources,
		ReadinessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				HTTPGet: &corev1.HTTPGetAction{
					Path: "/",
					Port: intstr.FromString("http"),
				},
			},
			InitialDelaySeconds: 5,
			PeriodSeconds:       10,
		},
	}

	spec := corev1.PodSpec{
		Containers: []corev1.Container{container},
	}
	if r.t.BoolOr("serviceAccount.enabled", false) {
		spec.ServiceAccountName = r.name(release.ComponentServiceIdentity)
	}

	deploy := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.ns,
			Labels:      naming.Labels(r.id.Name, release.ComponentApplication),
			Annotations: r.annotations(),
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(r.t.IntOr("application.replicas", 2))),
			Selector: &metav1.LabelSelector{
				MatchLabels: naming.SelectorLabels(r.id.Name, release.ComponentApplication),
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels:      naming.Labels(r.id.Name, release.ComponentApplication),
					Annotations: podAnnotations,
				},
				Spec: spec,
			},
		},
	}

	return release.Manifest{
		Kind:      "Deployment",
		Name:      name,
		Namespace: r.ns,
		Labels:    deploy.Labels,
		Owner:     release.ComponentApplication,
		Object:    deploy,
	}, nil
}

// databaseEnv builds the injected database connection contract:
// DB_HOST/DB_PORT exactly as resolved by the dependency wiring, DB_NAME
// from settings, credentials by secret reference only.
func (r *renderer) databaseEnv() []corev1.EnvVar {
	secretName := r.name(release.ComponentApplication)
	secretRef := func(key string) *corev1.EnvVarSource {
		return &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: secretName},
				Key:                  key,
			},
		}
	}

	env := []corev1.EnvVar{
		{Name: "DB_HOST", Value: r.db.Host},
		{Name: "DB_PORT", Value: strconv.Itoa(r.db.Port)},
		{Name: "DB_NAME", Value: r.t.StringOr("database.name", "cats")},
		{Name: "DB_USER", ValueFrom: secretRef(SecretKeyUsername)},
		{Name: "DB_PASSWORD", ValueFrom: secretRef(SecretKeyPassword)},
	}
	if cachePassword(r.t) != "" {
		env = append(env, corev1.EnvVar{
			Name: "REDIS_PASSWORD", ValueFrom: secretRef(SecretKeyCachePassword),
		})
	}
	return env
}

func cachePassword(t settings.Tree) string {
	if !t.BoolOr("cache.enabled", false) {
		return ""
	}
	return t.StringOr("cache.password", "")
}

// cacheEnv returns the external cache reference variables.
func cacheEnv(t settings.Tree) (map[string]string, bool) {
	if !t.BoolOr("cache.enabled", false) {
		return nil, false
	}
	return map[string]string{
		"CACHE_ENABLED": "true",
		"REDIS_HOST":    t.StringOr("cache.host", ""),
		"REDIS_PORT":    strconv.Itoa(t.IntOr("cache.port", 6379)),
		"REDIS_DB":      strconv.Itoa(t.IntOr("cache.db", 0)),
	}, true
}

func imageRef(t settings.Tree, path string) string {
	return t.StringOr(path+".repository", "") + ":" + t.StringOr(path+".tag", "")
}
