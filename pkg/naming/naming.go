// Package naming produces the deterministic resource names, label sets
// and selector sets shared by every rendered manifest of a release.
//
// All functions are pure: the same release identity and component always
// yield byte-identical output, so re-rendering never churns names.
package naming

import (
	"regexp"
	"strings"

	"github.com/Kushon/cat-api-deploy/pkg/errors"
	"github.com/Kushon/cat-api-deploy/pkg/release"
)

// MaxNameLength is the orchestrator-imposed limit on resource names
// (DNS label, 63 characters).
const MaxNameLength = 63

// Selector label keys. The selector set is minimal and stable: object
// selectors are immutable post-creation, so mutable metadata (version,
// timestamps) never goes here.
const (
	LabelName      = "app.kubernetes.io/name"
	LabelInstance  = "app.kubernetes.io/instance"
	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelComponent = "app.kubernetes.io/component"
)

// ManagedBy identifies manifests produced by this engine.
const ManagedBy = "catdeploy"

var dnsLabel = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidName reports whether s is a valid DNS-label resource name.
func ValidName(s string) bool {
	return len(s) <= MaxNameLength && dnsLabel.MatchString(s)
}

// FullName derives the resource name for a component of a release:
// "<release>-<component>", truncated to MaxNameLength.
//
// Truncation always preserves the component suffix whole and shortens the
// release prefix instead. Distinct components therefore never merge into
// one name, whatever the release name length. Trailing separators left by
// the cut are trimmed so the result stays a valid DNS label.
func FullName(releaseName string, c release.Component) string {
	component := string(c)
	name := releaseName + "-" + component
	if len(name) <= MaxNameLength {
		return name
	}

	budget := MaxNameLength - len(component) - 1
	if budget < 1 {
		// Component alone exceeds the limit; cut it directly. Does not
		// happen for the built-in component set.
		return strings.TrimRight(component[:MaxNameLength], "-")
	}
	prefix := strings.TrimRight(releaseName[:budget], "-")
	return prefix + "-" + component
}

// DatabaseServiceName is the stable network identity of the bundled
// database: the headless service in front of the stateful workload. This
// name, not the workload's own, is the canonical address clients resolve;
// it stays valid whichever backing instance is currently scheduled.
func DatabaseServiceName(releaseName string) string {
	base := FullName(releaseName, release.ComponentDatabase)
	const suffix = "-hl"
	if len(base)+len(suffix) <= MaxNameLength {
		return base + suffix
	}
	cut := strings.TrimRight(base[:MaxNameLength-len(suffix)], "-")
	return cut + suffix
}

// SelectorLabels returns the minimal stable label set used both to stamp
// a component's resources and to select them.
func SelectorLabels(releaseName string, c release.Component) map[string]string {
	return map[string]string{
		LabelName:     string(c),
		LabelInstance: releaseName,
	}
}

// Labels returns the full stamping label set: the selector subset plus
// non-selector metadata.
func Labels(releaseName string, c release.Component) map[string]string {
	l := SelectorLabels(releaseName, c)
	l[LabelManagedBy] = ManagedBy
	l[LabelComponent] = string(c)
	return l
}

// CheckCollisions verifies that no two components of one release truncate
// to the same full name. Guaranteed not to trigger by the FullName
// suffix-budget rule; a hit is a fatal invariant violation.
func CheckCollisions(releaseName string, components []release.Component) error {
	seen := make(map[string]release.Component, len(components))
	for _, c := range components {
		name := FullName(releaseName, c)
		if prev, ok := seen[name]; ok {
			return errors.Newf(errors.ErrCodeNamingCollision,
				"components %s and %s both truncate to %q", prev, c, name).
				WithPhase("render")
		}
		seen[name] = c
	}
	return nil
}
