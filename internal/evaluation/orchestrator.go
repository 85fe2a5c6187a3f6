package evaluation

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"

	"github.com/2beens/liftlog/internal/exercises"
	"github.com/2beens/liftlog/internal/records"
	"github.com/2beens/liftlog/internal/sessions"
	"github.com/2beens/liftlog/internal/telemetry/metrics"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
)

type sessionsRepo interface {
	ListCompletedAsc(ctx context.Context, completedFrom *time.Time) ([]sessions.Session, error)
}

type exercisesCatalog interface {
	Get(ctx context.Context, id int) (*exercises.Exercise, error)
}

type podiumCache interface {
	Invalidate(ctx context.Context, exerciseIDs ...int) error
	InvalidateAll(ctx context.Context) error
}

type exerciseRecordsLister interface {
	ListForExercise(ctx context.Context, exerciseID int) ([]records.Record, error)
}

// Orchestrator runs the post-workout evaluation pipeline: ranking first, so
// the status computation can see whether the session produced a record,
// then status, then one commit covering both.
type Orchestrator struct {
	store    *Store
	sessions sessionsRepo
	catalog  exercisesCatalog
	podiums  podiumCache
	metrics  *metrics.Manager
}

func NewOrchestrator(
	store *Store,
	sessionsRepo sessionsRepo,
	catalog exercisesCatalog,
	podiums podiumCache,
	metrics *metrics.Manager,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		sessions: sessionsRepo,
		catalog:  catalog,
		podiums:  podiums,
		metrics:  metrics,
	}
}

// EvaluateSession ranks and classifies a just completed session. It never
// returns an error: the session save already happened, a failed evaluation
// is logged and counted, and the next rebuild repairs the state.
func (o *Orchestrator) EvaluateSession(ctx context.Context, session *sessions.Session) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "evaluation.session")
	defer span.End()
	span.SetAttributes(attribute.Int("session.id", session.ID))

	if !session.Completed() {
		log.Errorf("evaluate session %d: not completed", session.ID)
		o.metrics.CounterEvaluationFailures.Inc()
		return
	}

	evalTx, err := o.store.Begin(ctx)
	if err != nil {
		log.Errorf("evaluate session %d: %s", session.ID, err)
		o.metrics.CounterEvaluationFailures.Inc()
		return
	}

	status, hasRecords, err := o.evaluateInTx(ctx, evalTx, session)
	if err != nil {
		if rollbackErr := evalTx.Rollback(ctx); rollbackErr != nil {
			log.Errorf("evaluate session %d, rollback: %s", session.ID, rollbackErr)
		}
		log.Errorf("evaluate session %d: %s", session.ID, err)
		o.metrics.CounterEvaluationFailures.Inc()
		return
	}

	// the computed classification stays on the session object even when the
	// commit below fails
	session.Status = status
	session.HasRecords = hasRecords

	if err := evalTx.Commit(ctx); err != nil {
		log.Errorf("evaluate session %d, commit: %s", session.ID, err)
		o.metrics.CounterEvaluationFailures.Inc()
		return
	}

	o.metrics.CounterSessionsEvaluated.Inc()

	if exerciseIDs := session.LinkedExerciseIDs(); len(exerciseIDs) > 0 {
		if err := o.podiums.Invalidate(ctx, exerciseIDs...); err != nil {
			log.Errorf("evaluate session %d, invalidate podiums: %s", session.ID, err)
		}
	}
}

func (o *Orchestrator) evaluateInTx(
	ctx context.Context,
	evalTx *EvalTx,
	session *sessions.Session,
) (sessions.Status, bool, error) {
	engine := records.NewEngine(evalTx.Records, o.catalog, o.metrics)
	if _, err := engine.Evaluate(ctx, session); err != nil {
		return "", false, fmt.Errorf("rank: %w", err)
	}

	hasRecords, err := sessionHasRecords(ctx, evalTx.Records, session)
	if err != nil {
		return "", false, fmt.Errorf("check records: %w", err)
	}

	status := ComputeStatus(session.DurationMinutes(), session.TargetMinutes)
	if err := evalTx.UpdateSessionStatus(ctx, session.ID, status, hasRecords); err != nil {
		return "", false, fmt.Errorf("update status: %w", err)
	}

	return status, hasRecords, nil
}

// sessionHasRecords walks the records of the session's linked exercises and
// reports whether any surviving one came from this session. Deliberately
// not a global scan, the single session path only needs its own buckets.
func sessionHasRecords(
	ctx context.Context,
	lister exerciseRecordsLister,
	session *sessions.Session,
) (bool, error) {
	for _, exerciseID := range session.LinkedExerciseIDs() {
		found, err := lister.ListForExercise(ctx, exerciseID)
		if err != nil {
			return false, err
		}
		for _, rec := range found {
			if rec.SessionID == session.ID {
				return true, nil
			}
		}
	}
	return false, nil
}

// RebuildAll wipes all records and replays every completed session oldest to
// newest through the same per-session path, then recomputes every status in
// one pass. The wipe commits before the replay starts, so the per-bucket
// duplicate checks cannot see stale rows. Meant to run offline, it assumes
// no sessions get completed while it runs.
func (o *Orchestrator) RebuildAll(ctx context.Context) (replayed int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "evaluation.rebuild")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	startedAt := time.Now()
	defer func() {
		o.metrics.CounterRebuilds.Inc()
		o.metrics.HistRebuildDuration.Observe(time.Since(startedAt).Seconds())
	}()

	deleted, err := o.store.DeleteAllRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	log.Debugf("rebuild: %d records deleted", deleted)

	completedSessions, err := o.sessions.ListCompletedAsc(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("list completed sessions: %w", err)
	}

	var errs error
	for i := range completedSessions {
		session := &completedSessions[i]
		if replayErr := o.replaySession(ctx, session); replayErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("replay session %d: %w", session.ID, replayErr))
			continue
		}
		replayed++
	}

	if statusErr := o.recomputeStatuses(ctx, completedSessions); statusErr != nil {
		errs = multierr.Append(errs, statusErr)
	}

	if invalidateErr := o.podiums.InvalidateAll(ctx); invalidateErr != nil {
		errs = multierr.Append(errs, fmt.Errorf("invalidate podiums: %w", invalidateErr))
	}

	log.Infof(
		"rebuild: %d/%d sessions replayed in %s",
		replayed, len(completedSessions), time.Since(startedAt),
	)
	return replayed, errs
}

func (o *Orchestrator) replaySession(ctx context.Context, session *sessions.Session) error {
	evalTx, err := o.store.Begin(ctx)
	if err != nil {
		return err
	}

	engine := records.NewEngine(evalTx.Records, o.catalog, o.metrics)
	if _, err := engine.Evaluate(ctx, session); err != nil {
		if rollbackErr := evalTx.Rollback(ctx); rollbackErr != nil {
			log.Errorf("replay session %d, rollback: %s", session.ID, rollbackErr)
		}
		return err
	}

	return evalTx.Commit(ctx)
}

// recomputeStatuses reclassifies every completed session after a replay.
// Session-has-records comes from one global record list instead of the
// per-session bucket walk, which would be quadratic over history.
func (o *Orchestrator) recomputeStatuses(ctx context.Context, completedSessions []sessions.Session) error {
	allRecords, err := o.store.AllRecords(ctx)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	withRecords := sessionIDsWithRecords(allRecords)

	evalTx, err := o.store.Begin(ctx)
	if err != nil {
		return err
	}

	for i := range completedSessions {
		session := &completedSessions[i]
		status := ComputeStatus(session.DurationMinutes(), session.TargetMinutes)
		hasRecords := withRecords[session.ID]
		if err := evalTx.UpdateSessionStatus(ctx, session.ID, status, hasRecords); err != nil {
			if rollbackErr := evalTx.Rollback(ctx); rollbackErr != nil {
				log.Errorf("recompute statuses, rollback: %s", rollbackErr)
			}
			return fmt.Errorf("update status of session %d: %w", session.ID, err)
		}
		session.Status = status
		session.HasRecords = hasRecords
	}

	return evalTx.Commit(ctx)
}

func sessionIDsWithRecords(allRecords []records.Record) map[int]bool {
	withRecords := make(map[int]bool, len(allRecords))
	for _, rec := range allRecords {
		withRecords[rec.SessionID] = true
	}
	return withRecords
}
