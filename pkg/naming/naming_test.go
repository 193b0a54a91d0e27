package naming

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/Kushon/cat-api-deploy/pkg/release"
)

func TestFullName_Short(t *testing.T) {
	got := FullName("cat-api-release", release.ComponentApplication)
	if got != "cat-api-release-cat-api" {
		t.Errorf("FullName() = %q", got)
	}
}

func TestFullName_Deterministic(t *testing.T) {
	for _, c := range release.Components() {
		a := FullName("cat-api-release", c)
		b := FullName("cat-api-release", c)
		if a != b {
			t.Errorf("FullName(%s) not deterministic: %q != %q", c, a, b)
		}
	}
}

func TestFullName_LengthAndCharset(t *testing.T) {
	releases := []string{
		"a",
		"cat-api-release",
		strings.Repeat("verylongrelease-", 8),
		strings.Repeat("x", 63),
		"ends-with-dash-after-cut" + strings.Repeat("-", 40) + "tail",
	}
	for _, r := range releases {
		for _, c := range release.Components() {
			name := FullName(r, c)
			if len(name) > MaxNameLength {
				t.Errorf("FullName(%q, %s) = %q, length %d > %d", r, c, name, len(name), MaxNameLength)
			}
			if !ValidName(name) {
				t.Errorf("FullName(%q, %s) = %q, not a valid DNS label", r, c, name)
			}
		}
	}
}

func TestFullName_SuffixPreservedUnderTruncation(t *testing.T) {
	long := strings.Repeat("release", 12) // well past the limit
	for _, c := range release.Components() {
		name := FullName(long, c)
		if !strings.HasSuffix(name, "-"+string(c)) {
			t.Errorf("FullName(long, %s) = %q, component suffix lost", c, name)
		}
	}
}

// Random component-name pairs near the truncation boundary must never
// collide after truncation.
func TestFullName_NoCollisionsNearBoundary(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := "abcdefghijklmnopqrstuvwxyz0123456789"

	randLabel := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return string(b)
	}

	for i := 0; i < 50; i++ {
		// Release length chosen so release+component straddles the limit.
		relLen := 50 + rng.Intn(20)
		rel := randLabel(relLen)

		compLen := 5 + rng.Intn(10)
		c1 := release.Component(randLabel(compLen))
		c2 := release.Component(randLabel(compLen))
		for c2 == c1 {
			c2 = release.Component(randLabel(compLen))
		}

		n1 := FullName(rel, c1)
		n2 := FullName(rel, c2)
		if n1 == n2 {
			t.Fatalf("pair %d: components %q and %q collide on %q (release %q)", i, c1, c2, n1, rel)
		}
		if err := CheckCollisions(rel, []release.Component{c1, c2}); err != nil {
			t.Fatalf("pair %d: CheckCollisions() = %v", i, err)
		}
	}
}

func TestCheckCollisions_Triggers(t *testing.T) {
	// Force a collision with identical components under different labels
	// is impossible; duplicate entries are the only way.
	err := CheckCollisions("rel", []release.Component{"api", "api"})
	if err == nil {
		t.Fatal("CheckCollisions() = nil, want collision error")
	}
}

func TestDatabaseServiceName(t *testing.T) {
	got := DatabaseServiceName("cat-api-release")
	if got != "cat-api-release-postgresql-hl" {
		t.Errorf("DatabaseServiceName() = %q", got)
	}

	long := DatabaseServiceName(strings.Repeat("r", 80))
	if len(long) > MaxNameLength {
		t.Errorf("DatabaseServiceName(long) length %d > %d", len(long), MaxNameLength)
	}
	if !strings.HasSuffix(long, "-hl") {
		t.Errorf("DatabaseServiceName(long) = %q, headless suffix lost", long)
	}
	if !ValidName(long) {
		t.Errorf("DatabaseServiceName(long) = %q, not a valid DNS label", long)
	}
}

func TestSelectorLabels_MinimalAndStable(t *testing.T) {
	l := SelectorLabels("cat-api-release", release.ComponentApplication)

	want := map[string]string{
		LabelName:     "cat-api",
		LabelInstance: "cat-api-release",
	}
	if len(l) != len(want) {
		t.Fatalf("selector labels = %v, want exactly %v", l, want)
	}
	for k, v := range want {
		if l[k] != v {
			t.Errorf("label %s = %q, want %q", k, l[k], v)
		}
	}
}

func TestLabels_SupersetOfSelector(t *testing.T) {
	full := Labels("rel", release.ComponentDatabase)
	sel := SelectorLabels("rel", release.ComponentDatabase)

	for k, v := range sel {
		if full[k] != v {
			t.Errorf("stamping labels missing selector pair %s=%s", k, v)
		}
	}
	if full[LabelManagedBy] != ManagedBy {
		t.Errorf("managed-by = %q, want %q", full[LabelManagedBy], ManagedBy)
	}
}

func TestValidName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"cat-api", true},
		{"a", true},
		{"-leading", false},
		{"trailing-", false},
		{"UPPER", false},
		{"has_underscore", false},
		{strings.Repeat("a", 64), false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			if got := ValidName(tt.in); got != tt.want {
				t.Errorf("ValidName(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
