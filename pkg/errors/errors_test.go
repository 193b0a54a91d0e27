package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "message only",
			err:  New(ErrCodeConfiguration, "missing host"),
			want: "missing host",
		},
		{
			name: "with path",
			err:  New(ErrCodeConfiguration, "missing host").WithPath("database.external.host"),
			want: "missing host (at database.external.host)",
		},
		{
			name: "with phase and path",
			err:  New(ErrCodeConflict, "type mismatch").WithPhase("resolve").WithPath("application.image"),
			want: "resolve: type mismatch (at application.image)",
		},
		{
			name: "wrapped",
			err:  Wrap(ErrCodeDriver, "apply failed", fmt.Errorf("forbidden")).WithPhase("apply"),
			want: "apply: apply failed: forbidden",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(ErrCodeDriver, "apply failed", nil); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestCodeOf(t *testing.T) {
	err := New(ErrCodeMigrationFailed, "job failed").WithPhase("schedule")
	wrapped := fmt.Errorf("deploy: %w", err)

	if got := CodeOf(wrapped); got != ErrCodeMigrationFailed {
		t.Errorf("CodeOf() = %s, want %s", got, ErrCodeMigrationFailed)
	}
	if got := PhaseOf(wrapped); got != "schedule" {
		t.Errorf("PhaseOf() = %s, want schedule", got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != ErrCodeInternal {
		t.Errorf("CodeOf(plain) = %s, want %s", got, ErrCodeInternal)
	}
}

func TestIsCode(t *testing.T) {
	err := Wrap(ErrCodeTimeout, "wait expired", errors.New("context deadline exceeded"))
	wrapped := fmt.Errorf("upgrade: %w", err)

	if !IsCode(wrapped, ErrCodeTimeout) {
		t.Error("IsCode() = false, want true")
	}
	if IsCode(wrapped, ErrCodeConflict) {
		t.Error("IsCode() matched wrong code")
	}
}

func TestUnwrapChain(t *testing.T) {
	inner := errors.New("connection refused")
	err := Wrap(ErrCodeDriver, "apply Service", inner)

	if !errors.Is(err, inner) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() = %q, should contain cause", err.Error())
	}
}
