package scheduler

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/api/meta"

	"github.com/Kushon/cat-api-deploy/pkg/release"
)

// Phase is a step of the deploy state machine. Phases only advance;
// MigrationFailed and Complete are terminal.
type Phase string

const (
	PhaseRendering          Phase = "Rendering"
	PhaseMigrationPending   Phase = "MigrationPending"
	PhaseMigrationRunning   Phase = "MigrationRunning"
	PhaseMigrationSucceeded Phase = "MigrationSucceeded"
	PhaseMigrationFailed    Phase = "MigrationFailed"
	PhaseWorkloadRollout    Phase = "WorkloadRollout"
	PhaseComplete           Phase = "Complete"
)

// TaskState is the observed state of a migration task in the cluster.
type TaskState string

const (
	TaskNotFound  TaskState = "NotFound"
	TaskRunning   TaskState = "Running"
	TaskSucceeded TaskState = "Succeeded"
	TaskFailed    TaskState = "Failed"
)

// Record is the durable note of the last successful migration for a
// release. The checksum is compared against the next render to decide
// whether the migration can be skipped entirely.
type Record struct {
	Revision    int       `json:"revision"`
	Checksum    string    `json:"checksum"`
	CompletedAt time.Time `json:"completedAt"`
}

// Driver is the cluster backend the scheduler drives. Apply and Delete
// must be idempotent: applying an existing resource updates it, deleting
// an absent one is not an error.
type Driver interface {
	// Apply creates or updates one manifest in the cluster.
	Apply(ctx context.Context, m release.Manifest) error

	// Delete removes one manifest from the cluster.
	Delete(ctx context.Context, m release.Manifest) error

	// TaskState reports the state of a migration task by name.
	TaskState(ctx context.Context, namespace, name string) (TaskState, error)

	// MigrationRecord loads the stored migration record for a release.
	// The second return is false when no record exists yet.
	MigrationRecord(ctx context.Context, id release.Identity) (Record, bool, error)

	// SaveMigrationRecord stores the migration record for a release,
	// replacing any previous one.
	SaveMigrationRecord(ctx context.Context, id release.Identity, rec Record) error

	// DeleteMigrationRecord removes the stored record, if any.
	DeleteMigrationRecord(ctx context.Context, id release.Identity) error

	// CleanupTask removes a finished task after ttlSeconds, or
	// immediately when ttlSeconds is zero.
	CleanupTask(ctx context.Context, namespace, name string, ttlSeconds int) error
}

// Event is one entry of a deploy operation's timeline.
type Event struct {
	Time     time.Time `json:"time"`
	Phase    Phase     `json:"phase"`
	Resource string    `json:"resource,omitempty"`
	Message  string    `json:"message"`
}

// Result is the outcome of one deploy operation.
type Result struct {
	// Operation uniquely identifies this deploy attempt in logs and
	// events.
	Operation string `json:"operation"`

	// Phase is the phase the operation finished in.
	Phase Phase `json:"phase"`

	// MigrationSkipped is true when the stored record matched the
	// rendered migration checksum.
	MigrationSkipped bool `json:"migrationSkipped"`

	// Applied lists the resources applied by this operation, in order.
	Applied []string `json:"applied"`

	// Events is the operation timeline.
	Events []Event `json:"events"`

	// mu guards Applied during the concurrent apply batch.
	mu sync.Mutex
}

func (r *Result) transition(phase Phase, resource, message string) {
	r.Phase = phase
	r.Events = append(r.Events, Event{
		Time:     time.Now().UTC(),
		Phase:    phase,
		Resource: resource,
		Message:  message,
	})
}

func (r *Result) markApplied(m release.Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Applied = append(r.Applied, m.String())
}

func annotationOf(m release.Manifest, key string) string {
	obj, err := meta.Accessor(m.Object)
	if err != nil {
		return ""
	}
	return obj.GetAnnotations()[key]
}
