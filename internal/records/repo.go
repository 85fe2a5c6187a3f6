package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateRecord surfaces the unique index on
	// (exercise_id, metric, distance_m, session_id): a session holds at
	// most one record per bucket
	ErrDuplicateRecord = errors.New("record for this session and bucket already exists")
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx both. The evaluation
// pipeline runs the repo against its own transaction, the HTTP read side
// against the pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repo struct {
	db Querier
}

func NewRepo(db Querier) *Repo {
	return &Repo{
		db: db,
	}
}

// ListBucket returns the current podium members of the bucket, best first.
func (r *Repo) ListBucket(ctx context.Context, bucket Bucket) (_ []Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.records.listbucket")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("bucket", bucket.String()))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, exercise_id, metric, distance_m, value_kg, reps, duration_s, medal, session_id, achieved_at
			FROM record
			WHERE exercise_id = $1 AND metric = $2 AND distance_m = $3
		ORDER BY medal ASC;`,
		bucket.ExerciseID, bucket.Metric, bucket.DistanceM,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return rows2records(rows)
}

// ListForExercise returns all records of one exercise across all its
// buckets, podium order within each bucket.
func (r *Repo) ListForExercise(ctx context.Context, exerciseID int) (_ []Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.records.listforexercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("exercise.id", exerciseID))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, exercise_id, metric, distance_m, value_kg, reps, duration_s, medal, session_id, achieved_at
			FROM record
			WHERE exercise_id = $1
		ORDER BY metric ASC, distance_m ASC, medal ASC;`,
		exerciseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return rows2records(rows)
}

func (r *Repo) ListAll(ctx context.Context) (_ []Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.records.listall")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT id, exercise_id, metric, distance_m, value_kg, reps, duration_s, medal, session_id, achieved_at
			FROM record
		ORDER BY exercise_id ASC, metric ASC, distance_m ASC, medal ASC;`,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return rows2records(rows)
}

func (r *Repo) Insert(ctx context.Context, rec Record) (_ *Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.records.insert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO record
			(exercise_id, metric, distance_m, value_kg, reps, duration_s, medal, session_id, achieved_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id;`,
		rec.ExerciseID, rec.Metric, rec.DistanceM,
		rec.ValueKg, rec.Reps, rec.DurationS,
		rec.Medal, rec.SessionID, rec.AchievedAt,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrDuplicateRecord
		}
		return nil, err
	}
	defer rows.Close()

	var id int
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		// pgx reports constraint violations here, not on Query itself
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrDuplicateRecord
		}
		return nil, fmt.Errorf("rows: %w", err)
	}
	if id == 0 {
		return nil, errors.New("unexpected error, failed to insert record")
	}

	span.SetAttributes(attribute.Int("record.id", id))

	rec.ID = id
	return &rec, nil
}

func (r *Repo) UpdateMedal(ctx context.Context, id int, medal Medal) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.records.updatemedal")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("record.id", id))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE record SET medal = $1 WHERE id = $2;`,
		medal, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.records.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("record.id", id))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM record WHERE id = $1;`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// DeleteAll wipes every record, returning the number of deleted rows.
// Only the rebuild uses it.
func (r *Repo) DeleteAll(ctx context.Context) (deleted int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.records.deleteall")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tag, err := r.db.Exec(ctx, `DELETE FROM record;`)
	if err != nil {
		return 0, err
	}

	deleted = int(tag.RowsAffected())
	span.SetAttributes(attribute.Int("records.deleted", deleted))
	return deleted, nil
}

func rows2records(rows pgx.Rows) ([]Record, error) {
	var found []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.ExerciseID, &rec.Metric, &rec.DistanceM,
			&rec.ValueKg, &rec.Reps, &rec.DurationS,
			&rec.Medal, &rec.SessionID, &rec.AchievedAt,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return found, nil
}
