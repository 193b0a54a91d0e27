package settings

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Kushon/cat-api-deploy/pkg/errors"
)

// Load reads one values-override file into a tree.
func Load(path string) (Tree, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration,
			"read values file", err).WithPhase("resolve")
	}
	var t Tree
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration,
			"parse values file "+path, err).WithPhase("resolve")
	}
	if t == nil {
		t = Tree{}
	}
	return t, nil
}

// ParseSet builds an override tree from command-line "path=value" pairs.
// Values are coerced the way YAML scalars would be: true/false to bool,
// integers to int, everything else stays a string.
func ParseSet(pairs []string) (Tree, error) {
	t := Tree{}
	for _, pair := range pairs {
		path, raw, ok := strings.Cut(pair, "=")
		if !ok || path == "" {
			return nil, errors.Newf(errors.ErrCodeConfiguration,
				"invalid --set %q, expected path=value", pair).WithPhase("resolve")
		}
		if err := t.Set(path, coerceScalar(raw)); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfiguration,
				"invalid --set path", err).WithPhase("resolve").WithPath(path)
		}
	}
	return t, nil
}

func coerceScalar(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return raw
}
