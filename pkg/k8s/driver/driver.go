// Package driver submits rendered manifests to a Kubernetes cluster
// through typed clients. All operations are idempotent: applying an
// existing resource updates it in place, deleting an absent one is not
// an error.
package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"

	"github.com/Kushon/cat-api-deploy/pkg/naming"
	"github.com/Kushon/cat-api-deploy/pkg/release"
	"github.com/Kushon/cat-api-deploy/pkg/scheduler"
)

const (
	recordSuffix = "-migration-state"

	recordKeyRevision    = "revision"
	recordKeyChecksum    = "checksum"
	recordKeyCompletedAt = "completedAt"
)

// Driver applies release manifests through a Kubernetes clientset.
type Driver struct {
	client kubernetes.Interface
	log    *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// New creates a Driver on top of the given clientset.
func New(client kubernetes.Interface, opts ...Option) *Driver {
	d := &Driver{client: client, log: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Apply creates or updates one manifest. Jobs are create-only: an
// existing job with the same name is adopted, never replaced, since its
// pod template is immutable and a replacement would discard a run
// already in flight.
func (d *Driver) Apply(ctx context.Context, m release.Manifest) error {
	ns := m.Namespace
	opts := metav1.CreateOptions{}

	switch obj := m.Object.(type) {
	case *corev1.ConfigMap:
		_, err := d.client.CoreV1().ConfigMaps(ns).Create(ctx, obj, opts)
		if apierrors.IsAlreadyExists(err) {
			_, err = d.client.CoreV1().ConfigMaps(ns).Update(ctx, obj, metav1.UpdateOptions{})
		}
		return err

	case *corev1.Secret:
		_, err := d.client.CoreV1().Secrets(ns).Create(ctx, obj, opts)
		if apierrors.IsAlreadyExists(err) {
			_, err = d.client.CoreV1().Secrets(ns).Update(ctx, obj, metav1.UpdateOptions{})
		}
		return err

	case *corev1.Service:
		_, err := d.client.CoreV1().Services(ns).Create(ctx, obj, opts)
		if apierrors.IsAlreadyExists(err) {
			// ClusterIP is immutable once allocated; carry it over.
			existing, getErr := d.client.CoreV1().Services(ns).Get(ctx, obj.Name, metav1.GetOptions{})
			if getErr != nil {
				return getErr
			}
			obj = obj.DeepCopy()
			obj.ResourceVersion = existing.ResourceVersion
			obj.Spec.ClusterIP = existing.Spec.ClusterIP
			obj.Spec.ClusterIPs = existing.Spec.ClusterIPs
			_, err = d.client.CoreV1().Services(ns).Update(ctx, obj, metav1.UpdateOptions{})
		}
		return err

	case *corev1.ServiceAccount:
		_, err := d.client.CoreV1().ServiceAccounts(ns).Create(ctx, obj, opts)
		if apierrors.IsAlreadyExists(err) {
			_, err = d.client.CoreV1().ServiceAccounts(ns).Update(ctx, obj, metav1.UpdateOptions{})
		}
		return err

	case *appsv1.Deployment:
		_, err := d.client.AppsV1().Deployments(ns).Create(ctx, obj, opts)
		if apierrors.IsAlreadyExists(err) {
			_, err = d.client.AppsV1().Deployments(ns).Update(ctx, obj, metav1.UpdateOptions{})
		}
		return err

	case *appsv1.StatefulSet:
		_, err := d.client.AppsV1().StatefulSets(ns).Create(ctx, obj, opts)
		if apierrors.IsAlreadyExists(err) {
			_, err = d.client.AppsV1().StatefulSets(ns).Update(ctx, obj, metav1.UpdateOptions{})
		}
		return err

	case *batchv1.Job:
		_, err := d.client.BatchV1().Jobs(ns).Create(ctx, obj, opts)
		return ignoreAlreadyExists(err)

	case *networkingv1.Ingress:
		_, err := d.client.NetworkingV1().Ingresses(ns).Create(ctx, obj, opts)
		if apierrors.IsAlreadyExists(err) {
			_, err = d.client.NetworkingV1().Ingresses(ns).Update(ctx, obj, metav1.UpdateOptions{})
		}
		return err

	case *autoscalingv2.HorizontalPodAutoscaler:
		_, err := d.client.AutoscalingV2().HorizontalPodAutoscalers(ns).Create(ctx, obj, opts)
		if apierrors.IsAlreadyExists(err) {
			_, err = d.client.AutoscalingV2().HorizontalPodAutoscalers(ns).Update(ctx, obj, metav1.UpdateOptions{})
		}
		return err
	}

	return fmt.Errorf("unsupported manifest kind %q", m.Kind)
}

// Delete removes one manifest. Missing resources are not an error.
func (d *Driver) Delete(ctx context.Context, m release.Manifest) error {
	ns := m.Namespace
	opts := metav1.DeleteOptions{}

	switch m.Object.(type) {
	case *corev1.ConfigMap:
		return ignoreNotFound(d.client.CoreV1().ConfigMaps(ns).Delete(ctx, m.Name, opts))
	case *corev1.Secret:
		return ignoreNotFound(d.client.CoreV1().Secrets(ns).Delete(ctx, m.Name, opts))
	case *corev1.Service:
		return ignoreNotFound(d.client.CoreV1().Services(ns).Delete(ctx, m.Name, opts))
	case *corev1.ServiceAccount:
		return ignoreNotFound(d.client.CoreV1().ServiceAccounts(ns).Delete(ctx, m.Name, opts))
	case *appsv1.Deployment:
		return ignoreNotFound(d.client.AppsV1().Deployments(ns).Delete(ctx, m.Name, opts))
	case *appsv1.StatefulSet:
		return ignoreNotFound(d.client.AppsV1().StatefulSets(ns).Delete(ctx, m.Name, opts))
	case *batchv1.Job:
		return ignoreNotFound(d.deleteJob(ctx, ns, m.Name))
	case *networkingv1.Ingress:
		return ignoreNotFound(d.client.NetworkingV1().Ingresses(ns).Delete(ctx, m.Name, opts))
	case *autoscalingv2.HorizontalPodAutoscaler:
		return ignoreNotFound(d.client.AutoscalingV2().HorizontalPodAutoscalers(ns).Delete(ctx, m.Name, opts))
	}

	return fmt.Errorf("unsupported manifest kind %q", m.Kind)
}

// TaskState reports the observed state of a migration job.
func (d *Driver) TaskState(ctx context.Context, namespace, name string) (scheduler.TaskState, error) {
	job, err := d.client.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return scheduler.TaskNotFound, nil
	}
	if err != nil {
		return "", err
	}

	for _, cond := range job.Status.Conditions {
		if cond.Status != corev1.ConditionTrue {
			continue
		}
		switch cond.Type {
		case batchv1.JobComplete:
			return scheduler.TaskSucceeded, nil
		case batchv1.JobFailed:
			return scheduler.TaskFailed, nil
		}
	}
	return scheduler.TaskRunning, nil
}

// MigrationRecord loads the release's migration record from its state
// ConfigMap.
func (d *Driver) MigrationRecord(ctx context.Context, id release.Identity) (scheduler.Record, bool, error) {
	cm, err := d.client.CoreV1().ConfigMaps(id.Namespace).Get(ctx, id.Name+recordSuffix, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return scheduler.Record{}, false, nil
	}
	if err != nil {
		return scheduler.Record{}, false, err
	}

	rec := scheduler.Record{Checksum: cm.Data[recordKeyChecksum]}
	if raw := cm.Data[recordKeyRevision]; raw != "" {
		rec.Revision, _ = strconv.Atoi(raw)
	}
	if raw := cm.Data[recordKeyCompletedAt]; raw != "" {
		rec.CompletedAt, _ = time.Parse(time.RFC3339, raw)
	}
	return rec, true, nil
}

// SaveMigrationRecord writes the release's migration record, replacing
// any previous one.
func (d *Driver) SaveMigrationRecord(ctx context.Context, id release.Identity, rec scheduler.Record) error {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      id.Name + recordSuffix,
			Namespace: id.Namespace,
			Labels:    naming.Labels(id.Name, release.ComponentMigration),
		},
		Data: map[string]string{
			recordKeyRevision:    strconv.Itoa(rec.Revision),
			recordKeyChecksum:    rec.Checksum,
			recordKeyCompletedAt: rec.CompletedAt.Format(time.RFC3339),
		},
	}

	_, err := d.client.CoreV1().ConfigMaps(id.Namespace).Create(ctx, cm, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		_, err = d.client.CoreV1().ConfigMaps(id.Namespace).Update(ctx, cm, metav1.UpdateOptions{})
	}
	return err
}

// DeleteMigrationRecord removes the state ConfigMap, if present.
func (d *Driver) DeleteMigrationRecord(ctx context.Context, id release.Identity) error {
	err := d.client.CoreV1().ConfigMaps(id.Namespace).Delete(ctx, id.Name+recordSuffix, metav1.DeleteOptions{})
	return ignoreNotFound(err)
}

// CleanupTask schedules a finished job for removal. With a positive TTL
// the job's own TTL controller handles it; TTLSecondsAfterFinished stays
// mutable after completion, unlike the rest of the job template. Zero
// means delete now.
func (d *Driver) CleanupTask(ctx context.Context, namespace, name string, ttlSeconds int) error {
	if ttlSeconds <= 0 {
		return ignoreNotFound(d.deleteJob(ctx, namespace, name))
	}

	job, err := d.client.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return ignoreNotFound(err)
	}
	job.Spec.TTLSecondsAfterFinished = ptr.To(int32(ttlSeconds))
	_, err = d.client.BatchV1().Jobs(namespace).Update(ctx, job, metav1.UpdateOptions{})
	return err
}

// deleteJob removes a job together with its pods.
func (d *Driver) deleteJob(ctx context.Context, namespace, name string) error {
	policy := metav1.DeletePropagationBackground
	return d.client.BatchV1().Jobs(namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &policy,
	})
}

// PodLogs streams logs from the newest pod matching the selector.
func (d *Driver) PodLogs(ctx context.Context, namespace string, selector map[string]string, follow bool, tailLines int64) (io.ReadCloser, error) {
	pods, err := d.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.Set(selector).String(),
	})
	if err != nil {
		return nil, err
	}
	if len(pods.Items) == 0 {
		return nil, fmt.Errorf("no pods match selector %s in namespace %s",
			labels.Set(selector).String(), namespace)
	}

	sort.Slice(pods.Items, func(i, j int) bool {
		return pods.Items[j].CreationTimestamp.Before(&pods.Items[i].CreationTimestamp)
	})

	logOpts := &corev1.PodLogOptions{Follow: follow}
	if tailLines > 0 {
		logOpts.TailLines = ptr.To(tailLines)
	}
	return d.client.CoreV1().Pods(namespace).GetLogs(pods.Items[0].Name, logOpts).Stream(ctx)
}

func ignoreAlreadyExists(err error) error {
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func ignoreNotFound(err error) error {
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}
