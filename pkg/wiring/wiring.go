// Package wiring resolves cross-component references from naming
// conventions and settings alone, without runtime discovery.
//
// It is the single source of truth for the database address consumed by
// the rendered application configuration. Nothing else in the engine may
// derive that address, so a change to the naming scheme cannot drift out
// of sync with the injected configuration.
package wiring

import (
	"github.com/Kushon/cat-api-deploy/pkg/errors"
	"github.com/Kushon/cat-api-deploy/pkg/naming"
	"github.com/Kushon/cat-api-deploy/pkg/release"
	"github.com/Kushon/cat-api-deploy/pkg/settings"
)

// Mode is the database deployment mode.
type Mode string

const (
	// ModeBundled deploys an owned database instance with the release.
	ModeBundled Mode = "bundled"

	// ModeExternal references an existing server; no database resources
	// are rendered.
	ModeExternal Mode = "external"
)

// Endpoint is a resolved network address.
type Endpoint struct {
	Host string
	Port int
}

// DatabaseMode reads and validates the database mode from settings.
func DatabaseMode(t settings.Tree) (Mode, error) {
	raw := t.StringOr("database.mode", string(ModeBundled))
	switch Mode(raw) {
	case ModeBundled, ModeExternal:
		return Mode(raw), nil
	}
	return "", errors.Newf(errors.ErrCodeConfiguration,
		"unknown database mode %q, expected bundled or external", raw).
		WithPhase("render").WithPath("database.mode")
}

// DatabaseAddress resolves the address the application (and the migration
// task) connect to.
//
// In bundled mode this is the stable headless-service name produced by
// the naming service, never the stateful workload's own name: the network
// identity must resolve independent of which backing instance is
// currently scheduled. In external mode it is the literal host and port
// from settings; a missing host is a configuration error reported before
// any manifest is rendered.
func DatabaseAddress(t settings.Tree, id release.Identity) (Endpoint, error) {
	mode, err := DatabaseMode(t)
	if err != nil {
		return Endpoint{}, err
	}

	switch mode {
	case ModeExternal:
		host := t.StringOr("database.external.host", "")
		if host == "" {
			return Endpoint{}, errors.New(errors.ErrCodeConfiguration,
				"external database mode requires a host").
				WithPhase("render").WithPath("database.external.host")
		}
		return Endpoint{
			Host: host,
			Port: t.IntOr("database.external.port", 5432),
		}, nil

	default: // ModeBundled
		if !t.BoolOr("database.enabled", true) {
			return Endpoint{}, errors.New(errors.ErrCodeConfiguration,
				"bundled database mode requires database.enabled=true").
				WithPhase("render").WithPath("database.enabled")
		}
		return Endpoint{
			Host: naming.DatabaseServiceName(id.Name),
			Port: t.IntOr("database.port", 5432),
		}, nil
	}
}

// CacheAddress resolves the optional external cache reference injected
// into the application. The cache is reference-only: no cache resources
// are ever rendered. Returns ok=false when the cache is disabled.
func CacheAddress(t settings.Tree) (Endpoint, bool) {
	if !t.BoolOr("cache.enabled", false) {
		return Endpoint{}, false
	}
	return Endpoint{
		Host: t.StringOr("cache.host", ""),
		Port: t.IntOr("cache.port", 6379),
	}, true
}
