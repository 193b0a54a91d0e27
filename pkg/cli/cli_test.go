package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	return NewApp().Run(context.Background(), append([]string{"catdeploy"}, args...))
}

func TestDryRunWritesManifests(t *testing.T) {
	out := filepath.Join(t.TempDir(), "manifests.yaml")

	err := run(t,
		"--set", "database.auth.password=hunter2",
		"dry-run", "-o", out,
	)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "kind: Deployment")
	assert.Contains(t, content, "kind: StatefulSet")
	assert.Contains(t, content, "kind: Job")
	assert.Contains(t, content, "apiVersion: apps/v1")
}

func TestDryRunRejectsUnknownFormat(t *testing.T) {
	err := run(t,
		"--format", "table",
		"--set", "database.auth.password=hunter2",
		"dry-run",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestDryRunMissingPassword(t *testing.T) {
	err := run(t, "dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.auth.password")
}

func TestLint(t *testing.T) {
	t.Run("clean settings pass", func(t *testing.T) {
		err := run(t,
			"--set", "database.auth.password=hunter2",
			"lint",
		)
		assert.NoError(t, err)
	})

	t.Run("missing password fails", func(t *testing.T) {
		err := run(t, "lint")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "problem")
	})

	t.Run("invalid image reference fails", func(t *testing.T) {
		err := run(t,
			"--set", "database.auth.password=hunter2",
			"--set", "application.image.repository=GHCR.IO/Invalid Repo",
			"lint",
		)
		require.Error(t, err)
	})

	t.Run("unknown set path is only a warning", func(t *testing.T) {
		err := run(t,
			"--set", "database.auth.password=hunter2",
			"--set", "application.env.EXTRA_FLAG=1",
			"lint",
		)
		assert.NoError(t, err)
	})

	t.Run("warnings do not inflate the problem count", func(t *testing.T) {
		// One error (missing password) plus one warning (unknown path):
		// the reported count covers errors only.
		err := run(t,
			"--set", "aplication.replicas=3",
			"lint",
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 problem")
	})
}

func TestClosestPath(t *testing.T) {
	known := []string{"application.replicas", "application.port", "database.mode"}

	assert.Equal(t, "application.replicas", closestPath(known, "aplication.replicas"))
	assert.Equal(t, "database.mode", closestPath(known, "database.mod"))

	// Nothing plausibly close: no suggestion.
	assert.Equal(t, "", closestPath(known, "zzz"))
}

func TestShowValues(t *testing.T) {
	err := run(t,
		"--set", "database.auth.password=hunter2",
		"show-values",
	)
	assert.NoError(t, err)
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("CATDEPLOY_NAMESPACE", "other-ns")
	t.Setenv("CATDEPLOY_RELEASE", "")

	defaults := loadEnvDefaults()
	assert.Equal(t, "other-ns", defaults.Namespace)
	assert.Equal(t, defaultRelease, defaults.Release)
}
