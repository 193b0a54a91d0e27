// Package release defines the identity and manifest model shared by the
// settings resolver, renderer and lifecycle scheduler.
package release

import (
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
)

// Identity names one install/upgrade attempt of a release. It is immutable
// for the duration of an operation; Revision increments monotonically on
// each successful apply. There is no ambient release context anywhere in
// the engine: every resolver, renderer and scheduler call receives an
// Identity explicitly.
type Identity struct {
	Name      string
	Namespace string
	Revision  int
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s@r%d", id.Namespace, id.Name, id.Revision)
}

// Component identifies a logical part of the release. The set is closed:
// rendering is a total function over these components, gated by their
// enable flags in the settings tree.
type Component string

const (
	// ComponentApplication is the cat-api workload.
	ComponentApplication Component = "cat-api"

	// ComponentDatabase is the bundled PostgreSQL instance. In external
	// mode the component renders no resources and exists as a reference
	// only.
	ComponentDatabase Component = "postgresql"

	// ComponentMigration is the one-shot schema migration task.
	ComponentMigration Component = "db-migrate"

	// ComponentIngress exposes the application over HTTP.
	ComponentIngress Component = "ingress"

	// ComponentAutoscaling scales the application workload.
	ComponentAutoscaling Component = "autoscaling"

	// ComponentServiceIdentity is the application service account.
	ComponentServiceIdentity Component = "service-account"
)

// Components returns every component of the closed set, in render order.
func Components() []Component {
	return []Component{
		ComponentApplication,
		ComponentDatabase,
		ComponentMigration,
		ComponentIngress,
		ComponentAutoscaling,
		ComponentServiceIdentity,
	}
}

func (c Component) String() string {
	return string(c)
}

// HookPhase tags a manifest that runs once, outside the steady-state
// rollout, before another phase proceeds.
type HookPhase string

const (
	HookNone       HookPhase = ""
	HookPreInstall HookPhase = "pre-install"
	HookPreUpgrade HookPhase = "pre-upgrade"
)

// Manifest is one declarative cluster object produced by the renderer.
// Manifests are immutable values: a changed setting produces a new
// manifest on the next render, never an in-place mutation.
type Manifest struct {
	Kind      string
	Name      string
	Namespace string
	Labels    map[string]string
	Owner     Component
	Hook      HookPhase

	// Object is the typed cluster object to submit.
	Object runtime.Object
}

func (m Manifest) String() string {
	return fmt.Sprintf("%s/%s", m.Kind, m.Name)
}

// IsHook reports whether the manifest runs in a hook phase.
func (m Manifest) IsHook() bool {
	return m.Hook != HookNone
}
