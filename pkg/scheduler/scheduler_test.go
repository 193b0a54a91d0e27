package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	cerrors "github.com/Kushon/cat-api-deploy/pkg/errors"
	"github.com/Kushon/cat-api-deploy/pkg/release"
	"github.com/Kushon/cat-api-deploy/pkg/render"
)

// fakeDriver records applies in order and scripts migration task states.
type fakeDriver struct {
	mu      sync.Mutex
	applied []string
	deleted []string

	// states is consumed one entry per TaskState call; the last entry
	// repeats once exhausted.
	states     []TaskState
	stateCalls int

	// stateErr, when set, is returned by TaskState starting at call
	// number stateErrAfter (zero-based).
	stateErr      error
	stateErrAfter int

	record    *Record
	saved     *Record
	cleanedUp []string

	applyErr error
}

func (f *fakeDriver) Apply(_ context.Context, m release.Manifest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, m.String())
	return nil
}

func (f *fakeDriver) Delete(_ context.Context, m release.Manifest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, m.String())
	return nil
}

func (f *fakeDriver) TaskState(_ context.Context, _, _ string) (TaskState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil && f.stateCalls >= f.stateErrAfter {
		return TaskNotFound, f.stateErr
	}
	if len(f.states) == 0 {
		return TaskNotFound, nil
	}
	i := f.stateCalls
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	f.stateCalls++
	return f.states[i], nil
}

func (f *fakeDriver) MigrationRecord(_ context.Context, _ release.Identity) (Record, bool, error) {
	if f.record == nil {
		return Record{}, false, nil
	}
	return *f.record, true, nil
}

func (f *fakeDriver) SaveMigrationRecord(_ context.Context, _ release.Identity, rec Record) error {
	f.saved = &rec
	return nil
}

func (f *fakeDriver) DeleteMigrationRecord(_ context.Context, _ release.Identity) error {
	f.deleted = append(f.deleted, "migration-record")
	return nil
}

func (f *fakeDriver) CleanupTask(_ context.Context, _, name string, ttlSeconds int) error {
	f.cleanedUp = append(f.cleanedUp, fmt.Sprintf("%s:%d", name, ttlSeconds))
	return nil
}

func (f *fakeDriver) appliedList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

func testManifests() []release.Manifest {
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "cat-api-release-db-migrate-r2",
			Namespace: "cat-api-ns",
			Annotations: map[string]string{
				render.AnnotationConfigChecksum:  "abc123",
				render.AnnotationTTLAfterSuccess: "300",
			},
		},
	}
	return []release.Manifest{
		{Kind: "ConfigMap", Name: "cat-api-release-cat-api", Namespace: "cat-api-ns",
			Owner: release.ComponentApplication, Object: &corev1.ConfigMap{}},
		{Kind: "Secret", Name: "cat-api-release-cat-api", Namespace: "cat-api-ns",
			Owner: release.ComponentApplication, Object: &corev1.Secret{}},
		{Kind: "Deployment", Name: "cat-api-release-cat-api", Namespace: "cat-api-ns",
			Owner: release.ComponentApplication, Object: &appsv1.Deployment{}},
		{Kind: "StatefulSet", Name: "cat-api-release-postgresql", Namespace: "cat-api-ns",
			Owner: release.ComponentDatabase, Object: &appsv1.StatefulSet{}},
		{Kind: "Job", Name: job.Name, Namespace: "cat-api-ns",
			Owner: release.ComponentMigration, Hook: release.HookPreUpgrade, Object: job},
	}
}

func quietScheduler(d Driver, opts ...Option) *Scheduler {
	opts = append([]Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithPollInterval(time.Millisecond),
		WithTimeout(time.Second),
	}, opts...)
	return New(d, opts...)
}

func testID() release.Identity {
	return release.Identity{Name: "cat-api-release", Namespace: "cat-api-ns", Revision: 2}
}

func indexOf(list []string, want string) int {
	for i, s := range list {
		if s == want {
			return i
		}
	}
	return -1
}

func TestDeployOrdering(t *testing.T) {
	d := &fakeDriver{states: []TaskState{TaskNotFound, TaskRunning, TaskSucceeded}}
	s := quietScheduler(d)

	res, err := s.Deploy(context.Background(), testID(), testManifests())
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if res.Phase != PhaseComplete {
		t.Errorf("final phase = %q, want %q", res.Phase, PhaseComplete)
	}

	applied := d.appliedList()
	job := indexOf(applied, "Job/cat-api-release-db-migrate-r2")
	deploy := indexOf(applied, "Deployment/cat-api-release-cat-api")
	if job < 0 || deploy < 0 {
		t.Fatalf("missing applies, got %v", applied)
	}
	if deploy < job {
		t.Errorf("workload applied before migration task: %v", applied)
	}

	// The workload must only appear after the succeeded event.
	succeededAt := -1
	for i, ev := range res.Events {
		if ev.Phase == PhaseMigrationSucceeded {
			succeededAt = i
		}
		if ev.Phase == PhaseWorkloadRollout && succeededAt < 0 {
			t.Errorf("workload rollout before migration success in events: %+v", res.Events)
		}
	}
	if succeededAt < 0 {
		t.Errorf("no MigrationSucceeded event: %+v", res.Events)
	}

	if d.saved == nil {
		t.Fatal("migration record not saved")
	}
	if d.saved.Revision != 2 || d.saved.Checksum != "abc123" {
		t.Errorf("saved record = %+v", d.saved)
	}
	if len(d.cleanedUp) != 1 || d.cleanedUp[0] != "cat-api-release-db-migrate-r2:300" {
		t.Errorf("cleanup calls = %v", d.cleanedUp)
	}
}

func TestDeployMigrationFailure(t *testing.T) {
	d := &fakeDriver{states: []TaskState{TaskNotFound, TaskRunning, TaskFailed}}
	s := quietScheduler(d)

	res, err := s.Deploy(context.Background(), testID(), testManifests())
	if err == nil {
		t.Fatal("Deploy() succeeded, want migration failure")
	}
	if code := cerrors.CodeOf(err); code != cerrors.ErrCodeMigrationFailed {
		t.Errorf("error code = %q, want %q", code, cerrors.ErrCodeMigrationFailed)
	}
	if res.Phase != PhaseMigrationFailed {
		t.Errorf("final phase = %q, want %q", res.Phase, PhaseMigrationFailed)
	}

	applied := d.appliedList()
	if indexOf(applied, "Deployment/cat-api-release-cat-api") >= 0 {
		t.Errorf("workload applied despite migration failure: %v", applied)
	}
	// Database and configuration were applied alongside the migration.
	if indexOf(applied, "StatefulSet/cat-api-release-postgresql") < 0 {
		t.Errorf("database not applied: %v", applied)
	}
	// Failed tasks are retained, never cleaned up.
	if len(d.cleanedUp) != 0 {
		t.Errorf("failed task cleaned up: %v", d.cleanedUp)
	}
	if d.saved != nil {
		t.Errorf("record saved for failed migration: %+v", d.saved)
	}
}

func TestDeploySkipsMigrationOnMatchingRecord(t *testing.T) {
	d := &fakeDriver{
		record: &Record{Revision: 1, Checksum: "abc123", CompletedAt: time.Now()},
	}
	s := quietScheduler(d)

	res, err := s.Deploy(context.Background(), testID(), testManifests())
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if !res.MigrationSkipped {
		t.Error("MigrationSkipped = false, want true")
	}
	if got := indexOf(d.appliedList(), "Job/cat-api-release-db-migrate-r2"); got >= 0 {
		t.Errorf("migration task applied despite matching record: %v", d.applied)
	}
	if res.Phase != PhaseComplete {
		t.Errorf("final phase = %q, want %q", res.Phase, PhaseComplete)
	}
	// A changed checksum must not skip.
	d2 := &fakeDriver{
		record: &Record{Revision: 1, Checksum: "different"},
		states: []TaskState{TaskNotFound, TaskSucceeded},
	}
	res2, err := quietScheduler(d2).Deploy(context.Background(), testID(), testManifests())
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if res2.MigrationSkipped {
		t.Error("migration skipped despite checksum change")
	}
}

func TestDeployAdoptsRunningTask(t *testing.T) {
	d := &fakeDriver{states: []TaskState{TaskRunning, TaskRunning, TaskSucceeded}}
	s := quietScheduler(d)

	_, err := s.Deploy(context.Background(), testID(), testManifests())
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if got := indexOf(d.appliedList(), "Job/cat-api-release-db-migrate-r2"); got >= 0 {
		t.Errorf("running task re-created: %v", d.applied)
	}
}

func TestDeployRetriesFailedTask(t *testing.T) {
	d := &fakeDriver{states: []TaskState{TaskFailed, TaskRunning, TaskSucceeded}}
	s := quietScheduler(d)

	_, err := s.Deploy(context.Background(), testID(), testManifests())
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if indexOf(d.deleted, "Job/cat-api-release-db-migrate-r2") < 0 {
		t.Errorf("stale failed task not removed before retry: %v", d.deleted)
	}
	if indexOf(d.appliedList(), "Job/cat-api-release-db-migrate-r2") < 0 {
		t.Errorf("migration task not re-created: %v", d.applied)
	}
}

func TestDeployRerunsSucceededTaskOnChecksumChange(t *testing.T) {
	// A leftover succeeded task whose recorded checksum no longer matches
	// proves nothing about the current configuration: the task must be
	// removed and re-run, and the new checksum recorded only after the
	// re-run completes.
	d := &fakeDriver{
		record: &Record{Revision: 1, Checksum: "old-checksum"},
		states: []TaskState{TaskSucceeded, TaskRunning, TaskSucceeded},
	}
	s := quietScheduler(d)

	res, err := s.Deploy(context.Background(), testID(), testManifests())
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if res.MigrationSkipped {
		t.Error("migration skipped despite checksum change")
	}
	if indexOf(d.deleted, "Job/cat-api-release-db-migrate-r2") < 0 {
		t.Errorf("stale succeeded task not removed: %v", d.deleted)
	}
	if indexOf(d.appliedList(), "Job/cat-api-release-db-migrate-r2") < 0 {
		t.Errorf("migration task not re-created: %v", d.applied)
	}
	if d.saved == nil || d.saved.Checksum != "abc123" {
		t.Errorf("saved record = %+v, want checksum abc123", d.saved)
	}
}

func TestDeployRerunsSucceededTaskWithoutRecord(t *testing.T) {
	// Succeeded task but no record at all: same treatment.
	d := &fakeDriver{states: []TaskState{TaskSucceeded, TaskSucceeded}}
	s := quietScheduler(d)

	_, err := s.Deploy(context.Background(), testID(), testManifests())
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if indexOf(d.deleted, "Job/cat-api-release-db-migrate-r2") < 0 {
		t.Errorf("unrecorded succeeded task not removed: %v", d.deleted)
	}
	if indexOf(d.appliedList(), "Job/cat-api-release-db-migrate-r2") < 0 {
		t.Errorf("migration task not re-created: %v", d.applied)
	}
}

func TestDeployMigrationTimeout(t *testing.T) {
	d := &fakeDriver{states: []TaskState{TaskNotFound, TaskRunning}}
	s := quietScheduler(d, WithTimeout(20*time.Millisecond))

	res, err := s.Deploy(context.Background(), testID(), testManifests())
	if err == nil {
		t.Fatal("Deploy() succeeded, want timeout failure")
	}
	if code := cerrors.CodeOf(err); code != cerrors.ErrCodeMigrationFailed {
		t.Errorf("error code = %q, want %q", code, cerrors.ErrCodeMigrationFailed)
	}
	if res.Phase != PhaseMigrationFailed {
		t.Errorf("final phase = %q, want %q", res.Phase, PhaseMigrationFailed)
	}
	if indexOf(d.appliedList(), "Deployment/cat-api-release-cat-api") >= 0 {
		t.Error("workload applied after timeout")
	}
}

func TestDeployPollErrorSurfacesDriverCode(t *testing.T) {
	// A cluster error while polling is not a migration outcome: it keeps
	// its driver code, the phase never reaches failed, and the workload
	// stays unsubmitted so a re-run can re-adopt the task.
	d := &fakeDriver{
		states:        []TaskState{TaskNotFound, TaskRunning},
		stateErr:      errors.New("watch closed"),
		stateErrAfter: 2,
	}
	s := quietScheduler(d)

	res, err := s.Deploy(context.Background(), testID(), testManifests())
	if err == nil {
		t.Fatal("Deploy() succeeded, want poll error")
	}
	if code := cerrors.CodeOf(err); code != cerrors.ErrCodeDriver {
		t.Errorf("error code = %q, want %q", code, cerrors.ErrCodeDriver)
	}
	if res.Phase == PhaseMigrationFailed {
		t.Errorf("final phase = %q, poll error is not a migration failure", res.Phase)
	}
	if indexOf(d.appliedList(), "Deployment/cat-api-release-cat-api") >= 0 {
		t.Error("workload applied after poll error")
	}
}

func TestDeployApplyErrorSurfacesDriverCode(t *testing.T) {
	d := &fakeDriver{applyErr: errors.New("connection refused")}
	s := quietScheduler(d)

	_, err := s.Deploy(context.Background(), testID(), testManifests())
	if err == nil {
		t.Fatal("Deploy() succeeded, want driver error")
	}
	if code := cerrors.CodeOf(err); code != cerrors.ErrCodeDriver {
		t.Errorf("error code = %q, want %q", code, cerrors.ErrCodeDriver)
	}
}

func TestDeployWithoutMigration(t *testing.T) {
	manifests := testManifests()[:4] // drop the hook
	d := &fakeDriver{}
	s := quietScheduler(d)

	res, err := s.Deploy(context.Background(), testID(), manifests)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if res.Phase != PhaseComplete {
		t.Errorf("final phase = %q, want %q", res.Phase, PhaseComplete)
	}
	if len(d.appliedList()) != 4 {
		t.Errorf("applied %d manifests, want 4: %v", len(d.applied), d.applied)
	}
}

func TestUninstallReverseOrder(t *testing.T) {
	d := &fakeDriver{}
	s := quietScheduler(d)

	if err := s.Uninstall(context.Background(), testID(), testManifests()); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	want := []string{
		"Job/cat-api-release-db-migrate-r2",
		"StatefulSet/cat-api-release-postgresql",
		"Deployment/cat-api-release-cat-api",
		"Secret/cat-api-release-cat-api",
		"ConfigMap/cat-api-release-cat-api",
		"migration-record",
	}
	if len(d.deleted) != len(want) {
		t.Fatalf("deleted = %v, want %v", d.deleted, want)
	}
	for i := range want {
		if d.deleted[i] != want[i] {
			t.Errorf("deleted[%d] = %q, want %q", i, d.deleted[i], want[i])
		}
	}
}
