package render

import (
	"fmt"
	"strconv"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/Kushon/cat-api-deploy/pkg/errors"
	"github.com/Kushon/cat-api-deploy/pkg/naming"
	"github.com/Kushon/cat-api-deploy/pkg/release"
	"github.com/Kushon/cat-api-deploy/pkg/settings"
)

// migrationComponent is the revision-scoped component the migration task
// renders under.
func migrationComponent(revision int) release.Component {
	return release.Component(fmt.Sprintf("%s-r%d", release.ComponentMigration, revision))
}

// migrationJob renders the one-shot schema migration task. The job name
// embeds the release revision, so each install/upgrade attempt owns its
// task and a retained failed task from an earlier revision never blocks
// the next one.
func (r *renderer) migrationJob() (release.Manifest, error) {
	name := naming.FullName(r.id.Name, migrationComponent(r.id.Revision))

	command, err := stringSlice(r.t, "migration.command")
	if err != nil {
		return release.Manifest{}, err
	}
	if len(command) == 0 {
		return release.Manifest{}, errors.New(errors.ErrCodeConfiguration,
			"migration command must not be empty").
			WithPhase("render").WithPath("migration.command")
	}

	image := r.t.StringOr("migration.image", "")
	if image == "" {
		image = imageRef(r.t, "application.image")
	}

	hook := release.HookPreUpgrade
	if r.id.Revision <= 1 {
		hook = release.HookPreInstall
	}

	annotations := r.annotations()
	annotations[AnnotationConfigChecksum] = MigrationChecksum(r.t)
	annotations[AnnotationTTLAfterSuccess] = strconv.Itoa(r.t.IntOr("migration.ttlSecondsAfterSuccess", 300))

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.ns,
			Labels:      naming.Labels(r.id.Name, release.ComponentMigration),
			Annotations: annotations,
		},
		Spec: batchv1.JobSpec{
			// One shot: the task runs to completion or failure, never
			// restarts into a partial-success state.
			BackoffLimit: ptr.To(int32(r.t.IntOr("migration.backoffLimit", 0))),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: naming.Labels(r.id.Name, release.ComponentMigration),
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:    string(release.ComponentMigration),
							Image:   image,
							Command: command,
							Env:     r.databaseEnv(),
						},
					},
				},
			},
		},
	}

	return release.Manifest{
		Kind:      "Job",
		Name:      name,
		Namespace: r.ns,
		Labels:    job.Labels,
		Owner:     release.ComponentMigration,
		Hook:      hook,
		Object:    job,
	}, nil
}

func stringSlice(t settings.Tree, path string) ([]string, error) {
	v, ok := t.Lookup(path)
	if !ok {
		return nil, nil
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeConfiguration,
			"expected a sequence").WithPhase("render").WithPath(path)
	}
	out := make([]string, len(seq))
	for i, item := range seq {
		out[i] = fmt.Sprintf("%v", item)
	}
	return out, nil
}
