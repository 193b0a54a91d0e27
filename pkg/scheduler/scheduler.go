// Package scheduler orders manifest application into phases and enforces
// completion-before-proceed semantics for the schema migration task.
//
// The scheduler is single-threaded per deploy operation; its only
// blocking point is the bounded wait for the migration task to finish.
// Concurrent deploys against the same release are not supported and must
// be serialized by the caller.
package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/Kushon/cat-api-deploy/pkg/errors"
	"github.com/Kushon/cat-api-deploy/pkg/release"
	"github.com/Kushon/cat-api-deploy/pkg/render"
)

const (
	// DefaultMigrationTimeout bounds the wait for the migration task.
	// Expiry is treated as failure: rolling the application out against
	// an unmigrated schema is strictly worse than stopping.
	DefaultMigrationTimeout = 10 * time.Minute

	// DefaultPollInterval is the migration status poll cadence.
	DefaultPollInterval = 2 * time.Second
)

// Scheduler drives one deploy operation through its phases.
type Scheduler struct {
	driver       Driver
	log          *slog.Logger
	timeout      time.Duration
	pollInterval time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeout bounds the migration wait.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithPollInterval sets the migration status poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New creates a Scheduler backed by the given release driver.
func New(driver Driver, opts ...Option) *Scheduler {
	s := &Scheduler{
		driver:       driver,
		log:          slog.Default(),
		timeout:      DefaultMigrationTimeout,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deploy applies the rendered manifest set for one install/upgrade
// operation. Resources without a hook phase are applied concurrently
// with the migration task; workload resources are withheld until the
// migration has succeeded for this revision. On migration failure the
// operation stops: already-applied non-hook resources are safe to exist
// without the workload, the workload itself is never submitted, and the
// failed task is retained for inspection.
func (s *Scheduler) Deploy(ctx context.Context, id release.Identity, manifests []release.Manifest) (*Result, error) {
	start := time.Now()
	res := &Result{Operation: uuid.NewString()}
	log := s.log.With("operation", res.Operation, "release", id.String())

	res.transition(PhaseRendering, "", "manifest set rendered")

	hooks, workloads, concurrent := partition(manifests)

	var outcome string
	defer func() {
		deployDuration.Observe(time.Since(start).Seconds())
		if outcome != "" {
			migrationOutcomeTotal.WithLabelValues(outcome).Inc()
		}
	}()

	migration, hasMigration := pickMigration(hooks)
	skip := false
	if hasMigration {
		checksum := migrationChecksumOf(migration)
		rec, found, err := s.driver.MigrationRecord(ctx, id)
		if err != nil {
			return res, errors.Wrap(errors.ErrCodeDriver,
				"read migration record", err).WithPhase("schedule")
		}
		if found && rec.Checksum == checksum {
			// No-op fast path: this exact configuration already migrated.
			skip = true
			res.MigrationSkipped = true
			res.transition(PhaseMigrationSucceeded, migration.String(),
				"migration skipped, configuration already applied at revision "+strconv.Itoa(rec.Revision))
			log.Info("migration skipped", "checksum", checksum, "recorded_revision", rec.Revision)
			outcome = "skipped"
		}
	}

	if hasMigration && !skip {
		state, err := s.driver.TaskState(ctx, migration.Namespace, migration.Name)
		if err != nil {
			return res, errors.Wrap(errors.ErrCodeDriver,
				"inspect migration task", err).WithPhase("schedule")
		}

		createTask := false
		switch state {
		case TaskRunning:
			// A task for this exact revision is still running: adopt it,
			// never create a duplicate.
			res.transition(PhaseMigrationRunning, migration.String(), "adopted running migration task")
		case TaskFailed, TaskSucceeded:
			// A finished task from an earlier attempt. A trusted success
			// takes the record fast path above; reaching here means the
			// record is absent or the configuration changed since that
			// task ran, so its outcome proves nothing about the current
			// configuration. Remove it and re-run.
			if err := s.driver.Delete(ctx, migration); err != nil {
				return res, errors.Wrap(errors.ErrCodeDriver,
					"remove stale migration task", err).WithPhase("schedule")
			}
			fallthrough
		case TaskNotFound:
			createTask = true
			res.transition(PhaseMigrationPending, migration.String(), "migration task created")
		}

		// Non-hook resources have no ordering dependency on the
		// migration, so they apply alongside it. The bundled database is
		// in this batch: the migration needs it.
		g, gctx := errgroup.WithContext(ctx)
		for _, m := range concurrent {
			g.Go(func() error { return s.apply(gctx, res, log, m) })
		}
		if createTask {
			g.Go(func() error { return s.apply(gctx, res, log, migration) })
		}
		if err := g.Wait(); err != nil {
			return res, err
		}

		if err := s.awaitMigration(ctx, id, res, log, migration); err != nil {
			outcome = "failed"
			return res, err
		}
		outcome = "succeeded"
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for _, m := range concurrent {
			g.Go(func() error { return s.apply(gctx, res, log, m) })
		}
		if err := g.Wait(); err != nil {
			return res, err
		}
	}

	res.transition(PhaseWorkloadRollout, "", "submitting workload resources")
	for _, m := range workloads {
		if err := s.apply(ctx, res, log, m); err != nil {
			return res, err
		}
	}

	res.transition(PhaseComplete, "", "deploy complete")
	log.Info("deploy complete",
		"applied", len(res.Applied),
		"migration_skipped", res.MigrationSkipped,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

// awaitMigration blocks until the migration task reaches a terminal
// state or the bounded timeout expires.
func (s *Scheduler) awaitMigration(ctx context.Context, id release.Identity, res *Result, log *slog.Logger, migration release.Manifest) error {
	res.transition(PhaseMigrationRunning, migration.String(), "waiting for migration task")

	var final TaskState
	var pollErr error
	err := wait.PollUntilContextTimeout(ctx, s.pollInterval, s.timeout, true,
		func(ctx context.Context) (bool, error) {
			state, stateErr := s.driver.TaskState(ctx, migration.Namespace, migration.Name)
			if stateErr != nil {
				pollErr = errors.Wrap(errors.ErrCodeDriver,
					"poll migration task", stateErr).WithPhase("schedule")
				return false, pollErr
			}
			switch state {
			case TaskSucceeded, TaskFailed:
				final = state
				return true, nil
			}
			return false, nil
		})

	switch {
	case pollErr != nil:
		// A cluster error, not a migration outcome. Surfaced with its
		// own code; the task keeps running and a re-run re-adopts it.
		return pollErr

	case err != nil && final == "":
		// Timeout or cancellation. The task is retained for inspection.
		res.transition(PhaseMigrationFailed, migration.String(), "migration wait expired")
		return errors.Wrap(errors.ErrCodeMigrationFailed,
			"migration task did not complete within "+s.timeout.String(), err).
			WithPhase("schedule")

	case final == TaskFailed:
		// Terminal for the operation: no rollback of applied resources,
		// no workload submission, task retained.
		res.transition(PhaseMigrationFailed, migration.String(), "migration task failed")
		return errors.New(errors.ErrCodeMigrationFailed,
			"migration task "+migration.Name+" failed; task retained for inspection").
			WithPhase("schedule")
	}

	res.transition(PhaseMigrationSucceeded, migration.String(), "migration task succeeded")
	log.Info("migration succeeded", "task", migration.Name)

	rec := Record{
		Revision:    id.Revision,
		Checksum:    migrationChecksumOf(migration),
		CompletedAt: time.Now().UTC(),
	}
	if err := s.driver.SaveMigrationRecord(ctx, id, rec); err != nil {
		return errors.Wrap(errors.ErrCodeDriver,
			"record migration success", err).WithPhase("schedule")
	}

	// Succeeded tasks are cleaned up after a grace window; failures are
	// never cleaned up automatically.
	ttl := ttlAfterSuccessOf(migration)
	if err := s.driver.CleanupTask(ctx, migration.Namespace, migration.Name, ttl); err != nil {
		log.Warn("migration task cleanup failed", "task", migration.Name, "error", err)
	}
	return nil
}

// Uninstall removes every manifest of the release, in reverse render
// order, plus the stored migration record.
func (s *Scheduler) Uninstall(ctx context.Context, id release.Identity, manifests []release.Manifest) error {
	log := s.log.With("release", id.String())
	for i := len(manifests) - 1; i >= 0; i-- {
		m := manifests[i]
		if err := s.driver.Delete(ctx, m); err != nil {
			return errors.Wrap(errors.ErrCodeDriver,
				"delete "+m.String(), err).WithPhase("apply")
		}
		log.Debug("deleted", "resource", m.String())
	}
	if err := s.driver.DeleteMigrationRecord(ctx, id); err != nil {
		return errors.Wrap(errors.ErrCodeDriver,
			"delete migration record", err).WithPhase("apply")
	}
	log.Info("release uninstalled", "resources", len(manifests))
	return nil
}

func (s *Scheduler) apply(ctx context.Context, res *Result, log *slog.Logger, m release.Manifest) error {
	if err := s.driver.Apply(ctx, m); err != nil {
		return errors.Wrap(errors.ErrCodeDriver,
			"apply "+m.String(), err).WithPhase("apply")
	}
	res.markApplied(m)
	manifestsAppliedTotal.WithLabelValues(m.Kind).Inc()
	log.Debug("applied", "resource", m.String(), "owner", string(m.Owner))
	return nil
}

// partition splits the manifest set into hook tasks, migration-gated
// workloads, and everything safe to apply concurrently with the
// migration.
func partition(manifests []release.Manifest) (hooks, workloads, concurrent []release.Manifest) {
	for _, m := range manifests {
		switch {
		case m.IsHook():
			hooks = append(hooks, m)
		case gated(m):
			workloads = append(workloads, m)
		default:
			concurrent = append(concurrent, m)
		}
	}
	return hooks, workloads, concurrent
}

// gated reports whether a manifest must wait for migration success. The
// application workload and its autoscaler are gated; the bundled
// database is not, since the migration itself depends on it.
func gated(m release.Manifest) bool {
	if m.Owner == release.ComponentDatabase {
		return false
	}
	return m.Kind == "Deployment" || m.Kind == "HorizontalPodAutoscaler"
}

func pickMigration(hooks []release.Manifest) (release.Manifest, bool) {
	for _, m := range hooks {
		if m.Owner == release.ComponentMigration {
			return m, true
		}
	}
	return release.Manifest{}, false
}

func migrationChecksumOf(m release.Manifest) string {
	return annotationOf(m, render.AnnotationConfigChecksum)
}

func ttlAfterSuccessOf(m release.Manifest) int {
	raw := annotationOf(m, render.AnnotationTTLAfterSuccess)
	if raw == "" {
		return 0
	}
	ttl, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return ttl
}
