package render

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/Kushon/cat-api-deploy/pkg/settings"
)

// Annotations stamped on rendered manifests.
const (
	// AnnotationConfigChecksum carries a hash of the settings subtree a
	// workload was parameterized from. A configuration-only change (an
	// edited environment value, a rotated credential) changes the hash on
	// the pod template, which forces a rollout even though the image tag
	// did not move. Without it, stale pods would keep old configuration.
	AnnotationConfigChecksum = "cat-api.dev/config-checksum"

	// AnnotationRevision records the release revision a manifest was
	// rendered for.
	AnnotationRevision = "cat-api.dev/revision"

	// AnnotationTTLAfterSuccess tells the lifecycle scheduler how long a
	// succeeded migration task may linger before cleanup. Failed tasks
	// are always retained for inspection.
	AnnotationTTLAfterSuccess = "cat-api.dev/ttl-after-success"
)

// configChecksum hashes the given settings subtrees canonically: JSON
// marshaling sorts mapping keys, so byte-identical input settings always
// produce byte-identical checksums.
func configChecksum(parts map[string]any) string {
	raw, err := json.Marshal(parts)
	if err != nil {
		// Settings trees hold only YAML scalar/map/sequence values, which
		// always marshal.
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// applicationChecksum covers everything the application pod reads at
// runtime: its own scope, the cache reference, and the database
// connection inputs.
func applicationChecksum(t settings.Tree) string {
	return configChecksum(map[string]any{
		"application": map[string]any(t.Sub("application")),
		"cache":       map[string]any(t.Sub("cache")),
		"database": map[string]any{
			"mode":     t.StringOr("database.mode", ""),
			"name":     t.StringOr("database.name", ""),
			"port":     t.IntOr("database.port", 0),
			"external": map[string]any(t.Sub("database.external")),
			"auth":     map[string]any(t.Sub("database.auth")),
		},
	})
}

// databaseChecksum covers the bundled database scope.
func databaseChecksum(t settings.Tree) string {
	return configChecksum(map[string]any{
		"database": map[string]any(t.Sub("database")),
	})
}

// MigrationChecksum covers the inputs of the schema migration task. The
// scheduler compares it against the last recorded success to decide
// whether migration can be skipped entirely.
func MigrationChecksum(t settings.Tree) string {
	return configChecksum(map[string]any{
		"database":  map[string]any(t.Sub("database")),
		"migration": map[string]any(t.Sub("migration")),
		"image":     map[string]any(t.Sub("application.image")),
	})
}
