// Package render turns a resolved settings tree and a release identity
// into the typed manifest set of the release.
//
// Rendering is pure and total over the closed component set: every
// component is either emitted or skipped based on its enable flag and
// mode, and a failed validation aborts with no partial output before any
// manifest reaches the cluster driver.
package render

import (
	"fmt"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/Kushon/cat-api-deploy/pkg/errors"
	"github.com/Kushon/cat-api-deploy/pkg/naming"
	"github.com/Kushon/cat-api-deploy/pkg/release"
	"github.com/Kushon/cat-api-deploy/pkg/settings"
	"github.com/Kushon/cat-api-deploy/pkg/wiring"
)

// Render produces the release's manifest set. The result is a pure
// function of (settings, identity): re-rendering the same inputs yields
// byte-identical manifests and names.
func Render(t settings.Tree, id release.Identity) ([]release.Manifest, error) {
	r, err := newRenderer(t, id)
	if err != nil {
		return nil, err
	}

	var manifests []release.Manifest

	if t.BoolOr("application.enabled", true) {
		manifests = append(manifests, r.applicationConfigMap(), r.applicationSecret())
		deploy, err := r.applicationDeployment()
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, deploy)
	}

	if r.mode == wiring.ModeBundled && t.BoolOr("database.enabled", true) {
		db, err := r.databaseManifests()
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, db...)
	}

	if t.BoolOr("application.enabled", true) {
		job, err := r.migrationJob()
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, job)
	}

	if t.BoolOr("ingress.enabled", false) {
		manifests = append(manifests, r.applicationService(), r.ingress())
	}

	if t.BoolOr("autoscaling.enabled", false) {
		manifests = append(manifests, r.autoscaler())
	}

	if t.BoolOr("serviceAccount.enabled", false) {
		manifests = append(manifests, r.serviceAccount())
	}

	return manifests, nil
}

type renderer struct {
	t  settings.Tree
	id release.Identity
	ns string
	db wiring.Endpoint

	mode wiring.Mode
}

// newRenderer validates every cross-component requirement up front, so a
// misconfiguration is reported before a single manifest exists.
func newRenderer(t settings.Tree, id release.Identity) (*renderer, error) {
	if !naming.ValidName(id.Name) {
		return nil, errors.Newf(errors.ErrCodeConfiguration,
			"release name %q is not a valid DNS label", id.Name).WithPhase("render")
	}
	// The migration task renders under a revision-scoped name, so the
	// collision check must see it alongside the static components.
	components := append(release.Components(), migrationComponent(id.Revision))
	if err := naming.CheckCollisions(id.Name, components); err != nil {
		return nil, err
	}

	mode, err := wiring.DatabaseMode(t)
	if err != nil {
		return nil, err
	}

	var db wiring.Endpoint
	if t.BoolOr("application.enabled", true) {
		// The single source of truth for the database address.
		db, err = wiring.DatabaseAddress(t, id)
		if err != nil {
			return nil, err
		}

		if t.StringOr("application.image.repository", "") == "" {
			return nil, errors.New(errors.ErrCodeConfiguration,
				"application image repository is required").
				WithPhase("render").WithPath("application.image.repository")
		}
		if t.StringOr("application.image.tag", "") == "" {
			return nil, errors.New(errors.ErrCodeConfiguration,
				"application image tag is required").
				WithPhase("render").WithPath("application.image.tag")
		}
	}

	if mode == wiring.ModeBundled && t.BoolOr("database.enabled", true) {
		if t.StringOr("database.auth.password", "") == "" {
			return nil, errors.New(errors.ErrCodeConfiguration,
				"bundled database requires an explicit password").
				WithPhase("render").WithPath("database.auth.password")
		}
	}

	return &renderer{
		t:    t,
		id:   id,
		ns:   targetNamespace(t, id),
		db:   db,
		mode: mode,
	}, nil
}

// targetNamespace honors the shared global scope's namespace override.
func targetNamespace(t settings.Tree, id release.Identity) string {
	if ns := t.StringOr("global.namespaceOverride", ""); ns != "" {
		return ns
	}
	return id.Namespace
}

func (r *renderer) annotations() map[string]string {
	return map[string]string{
		AnnotationRevision: strconv.Itoa(r.id.Revision),
	}
}

func (r *renderer) name(c release.Component) string {
	return naming.FullName(r.id.Name, c)
}

// parseResources converts a settings resources subtree into typed
// requirements. Unparseable quantities are configuration errors.
func parseResources(t settings.Tree, path string) (corev1.ResourceRequirements, error) {
	out := corev1.ResourceRequirements{}
	sub := t.Sub(path)
	if sub == nil {
		return out, nil
	}

	for field, dst := range map[string]*corev1.ResourceList{
		"requests": &out.Requests,
		"limits":   &out.Limits,
	} {
		entries := sub.Sub(field)
		if entries == nil {
			continue
		}
		list := corev1.ResourceList{}
		for name, raw := range entries {
			q, err := resource.ParseQuantity(fmt.Sprintf("%v", raw))
			if err != nil {
				return out, errors.Wrap(errors.ErrCodeConfiguration,
					"invalid resource quantity", err).
					WithPhase("render").WithPath(path + "." + field + "." + name)
			}
			list[corev1.ResourceName(name)] = q
		}
		*dst = list
	}
	return out, nil
}
