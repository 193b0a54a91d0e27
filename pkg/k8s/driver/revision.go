package driver

import (
	"context"
	"strconv"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/Kushon/cat-api-deploy/pkg/naming"
	"github.com/Kushon/cat-api-deploy/pkg/release"
	"github.com/Kushon/cat-api-deploy/pkg/render"
)

// ReleaseRevision reports the revision of the installed release, read
// from the application workload's revision annotation. Zero means the
// release is not installed.
func (d *Driver) ReleaseRevision(ctx context.Context, id release.Identity) (int, error) {
	name := naming.FullName(id.Name, release.ComponentApplication)
	dep, err := d.client.AppsV1().Deployments(id.Namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	raw := dep.Annotations[render.AnnotationRevision]
	if raw == "" {
		return 0, nil
	}
	rev, err := strconv.Atoi(raw)
	if err != nil || rev < 1 {
		return 0, nil
	}
	return rev, nil
}
