package evaluation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/liftlog/internal/records"
	"github.com/2beens/liftlog/internal/sessions"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
)

// Store is the persistence side of the evaluation pipeline. A single session
// evaluation runs in its own transaction so record churn and the session
// status land together; the bulk rebuild helpers run directly on the pool.
type Store struct {
	db          *pgxpool.Pool
	recordsRepo *records.Repo
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		db:          db,
		recordsRepo: records.NewRepo(db),
	}
}

// Begin opens the transaction one evaluation runs in.
func (s *Store) Begin(ctx context.Context) (*EvalTx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &EvalTx{
		tx:      tx,
		Records: records.NewRepo(tx),
	}, nil
}

// AllRecords returns every stored record, for the rebuild status pre-pass.
func (s *Store) AllRecords(ctx context.Context) ([]records.Record, error) {
	return s.recordsRepo.ListAll(ctx)
}

// DeleteAllRecords wipes the record table outside any surrounding
// transaction: the wipe must be durable before a rebuild starts replaying.
func (s *Store) DeleteAllRecords(ctx context.Context) (int, error) {
	return s.recordsRepo.DeleteAll(ctx)
}

// EvalTx is the unit of work of one session evaluation. Records is bound to
// the transaction, nothing is visible to others before Commit.
type EvalTx struct {
	tx      pgx.Tx
	Records *records.Repo
}

func (t *EvalTx) UpdateSessionStatus(
	ctx context.Context,
	sessionID int,
	status sessions.Status,
	hasRecords bool,
) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "evaluation.store.sessionstatus")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("session.id", sessionID))

	tag, err := t.tx.Exec(
		ctx,
		`UPDATE session SET status = $1, has_records = $2 WHERE id = $3;`,
		status, hasRecords, sessionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return sessions.ErrSessionNotFound
	}
	return nil
}

func (t *EvalTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *EvalTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
