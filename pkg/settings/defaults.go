package settings

import (
	_ "embed"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Kushon/cat-api-deploy/pkg/errors"
)

var (
	//go:embed defaults/cat-api.yaml
	chartDefaults []byte

	//go:embed defaults/postgresql.yaml
	subchartDefaults []byte

	defaultsOnce   sync.Once
	cachedDefaults []Tree
	cachedPaths    []string
	defaultsErr    error
)

// DefaultScopes returns the ordered built-in default scopes: chart
// defaults first, then subchart defaults. The data is embedded at build
// time, so it is parsed once and reused for the lifetime of the process.
func DefaultScopes() ([]Tree, error) {
	defaultsOnce.Do(func() {
		for _, raw := range [][]byte{chartDefaults, subchartDefaults} {
			var t Tree
			if err := yaml.Unmarshal(raw, &t); err != nil {
				defaultsErr = errors.Wrap(errors.ErrCodeInternal,
					"parse embedded defaults", err)
				return
			}
			cachedDefaults = append(cachedDefaults, t)
		}

		merged, err := Resolve(cachedDefaults, nil)
		if err != nil {
			defaultsErr = err
			return
		}
		cachedPaths = merged.Leaves()
	})

	if defaultsErr != nil {
		return nil, defaultsErr
	}
	// Copies, so callers can layer on top without corrupting the cache.
	out := make([]Tree, len(cachedDefaults))
	for i, t := range cachedDefaults {
		out[i] = t.DeepCopy()
	}
	return out, nil
}

// KnownPaths returns every leaf path defined by the built-in defaults,
// sorted. Used to suggest corrections for mistyped override paths.
func KnownPaths() []string {
	if _, err := DefaultScopes(); err != nil {
		return nil
	}
	return cachedPaths
}
