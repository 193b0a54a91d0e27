package settings

// Paths whose values are sensitive. Sensitivity is fixed here, at
// definition time, and never downgraded while values flow through the
// resolver: resolved trees keep the raw values, and every surface that
// prints a tree must go through Redact.
var secretPaths = map[string]struct{}{
	"database.auth.username": {},
	"database.auth.password": {},
	"cache.password":         {},
}

// RedactedValue replaces secret values in redacted output.
const RedactedValue = "[redacted]"

// IsSecret reports whether the value at path is sensitive.
func IsSecret(path string) bool {
	_, ok := secretPaths[path]
	return ok
}

// Redact returns a copy of the tree with all secret values masked.
func Redact(t Tree) Tree {
	out := t.DeepCopy()
	for path := range secretPaths {
		if _, ok := out.Lookup(path); ok {
			// Set cannot fail here: the path exists.
			_ = out.Set(path, RedactedValue)
		}
	}
	return out
}
