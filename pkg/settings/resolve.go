package settings

import (
	"fmt"

	"github.com/Kushon/cat-api-deploy/pkg/errors"
)

// Resolve merges ordered default and override scopes into a single tree.
//
// The merge is a left-to-right fold: for each path the last-seen defined
// value wins. Mapping-valued paths merge recursively key by key, never
// wholesale. Sequence-valued paths are replaced wholesale, never
// concatenated, so an override that supplies its own list (ingress hosts,
// migration command) does not silently duplicate entries.
//
// Default scopes merge leniently. An override scope that redefines a path
// with a different kind than the accumulated value (scalar over mapping,
// mapping over scalar) is a CONFLICT error, reported rather than coerced.
//
// Resolve is pure: input trees are never mutated.
func Resolve(defaults []Tree, overrides []Tree) (Tree, error) {
	out := Tree{}
	for _, d := range defaults {
		if err := merge(out, d, "", false); err != nil {
			return nil, err
		}
	}
	for _, o := range overrides {
		if err := merge(out, o, "", true); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func merge(dst Tree, src Tree, prefix string, strict bool) error {
	for k, sv := range src {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}

		dv, exists := dst[k]
		if !exists || dv == nil {
			dst[k] = copyValue(sv)
			continue
		}

		dm, dstIsMap := dv.(map[string]any)
		sm, srcIsMap := sv.(map[string]any)

		switch {
		case dstIsMap && srcIsMap:
			if err := merge(dm, sm, path, strict); err != nil {
				return err
			}
		case dstIsMap != srcIsMap:
			if strict {
				return errors.Newf(errors.ErrCodeConflict,
					"override replaces %s with %s", kindOf(dv), kindOf(sv)).
					WithPhase("resolve").WithPath(path)
			}
			dst[k] = copyValue(sv)
		default:
			// Scalar or sequence over scalar or sequence: last wins.
			dst[k] = copyValue(sv)
		}
	}
	return nil
}

func kindOf(v any) string {
	switch v.(type) {
	case map[string]any:
		return "mapping"
	case []any:
		return "sequence"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
