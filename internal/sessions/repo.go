package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionAlreadyCompleted = errors.New("session already completed")
	ErrExerciseNotFound        = errors.New("exercise not found")
)

type ListParams struct {
	Page int
	Size int
}

type CompleteParams struct {
	SessionID     int
	CompletedAt   time.Time
	TargetMinutes *int
	Exercises     []PerformedExercise
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// Add stores a freshly started session. The performed exercises come in
// later, with Complete.
func (r *Repo) Add(ctx context.Context, session Session) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var id int
	err = r.db.QueryRow(
		ctx,
		`INSERT INTO session (started_at, target_minutes)
			VALUES ($1, $2)
		RETURNING id;`,
		session.StartedAt, session.TargetMinutes,
	).Scan(&id)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("session.id", id))

	session.ID = id
	return &session, nil
}

// Complete stores the performed exercises and sets of the session and marks
// it completed, all in one transaction. A session can be completed only once.
func (r *Repo) Complete(ctx context.Context, params CompleteParams) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.complete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("session.id", params.SessionID))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				log.Errorf("complete session %d, rollback: %s", params.SessionID, rollbackErr)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	tag, err := tx.Exec(
		ctx,
		`UPDATE session SET completed_at = $1, target_minutes = $2
			WHERE id = $3 AND completed_at IS NULL;`,
		params.CompletedAt, params.TargetMinutes, params.SessionID,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		var completedAt *time.Time
		checkErr := tx.QueryRow(
			ctx,
			`SELECT completed_at FROM session WHERE id = $1;`,
			params.SessionID,
		).Scan(&completedAt)
		if errors.Is(checkErr, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		if checkErr != nil {
			return nil, checkErr
		}
		return nil, ErrSessionAlreadyCompleted
	}

	for _, pe := range params.Exercises {
		var peID int
		err = tx.QueryRow(
			ctx,
			`INSERT INTO session_exercise (session_id, exercise_id, position)
				VALUES ($1, $2, $3)
			RETURNING id;`,
			params.SessionID, pe.ExerciseID, pe.Position,
		).Scan(&peID)
		if err != nil {
			if pkg.IsForeignKeyViolationError(err) {
				return nil, ErrExerciseNotFound
			}
			return nil, fmt.Errorf("insert session exercise: %w", err)
		}

		for _, set := range pe.Sets {
			_, err = tx.Exec(
				ctx,
				`INSERT INTO session_set
					(session_exercise_id, set_index, completed, reps, weight_kg, distance_m, duration_s)
					VALUES ($1, $2, $3, $4, $5, $6, $7);`,
				peID, set.SetIndex, set.Completed, set.Reps, set.WeightKg, set.DistanceM, set.DurationS,
			)
			if err != nil {
				return nil, fmt.Errorf("insert session set: %w", err)
			}
		}
	}

	return r.getWithQuerier(ctx, tx, params.SessionID)
}

func (r *Repo) Get(ctx context.Context, id int) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	return r.getWithQuerier(ctx, r.db, id)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repo) getWithQuerier(ctx context.Context, q querier, id int) (*Session, error) {
	var (
		session   Session
		statusStr *string
	)
	err := q.QueryRow(
		ctx,
		`SELECT id, started_at, completed_at, target_minutes, status, has_records
			FROM session WHERE id = $1;`,
		id,
	).Scan(
		&session.ID, &session.StartedAt, &session.CompletedAt,
		&session.TargetMinutes, &statusStr, &session.HasRecords,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if statusStr != nil {
		session.Status = Status(*statusStr)
	}

	exercisesBySession, err := loadPerformedExercises(ctx, q, `se.session_id = $1`, id)
	if err != nil {
		return nil, err
	}
	session.Exercises = exercisesBySession[id]

	return &session, nil
}

// ListCompletedAsc returns completed sessions with their full exercise and
// set data, ordered by completion time, oldest first. The records rebuild
// replays them in that order. A non-nil completedFrom limits the result to
// sessions completed after it (used by the incremental drive backup).
func (r *Repo) ListCompletedAsc(ctx context.Context, completedFrom *time.Time) (_ []Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.listcompleted")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	query := `SELECT id, started_at, completed_at, target_minutes, status, has_records
			FROM session
			WHERE completed_at IS NOT NULL`
	childFilter := `se.session_id IN (SELECT id FROM session WHERE completed_at IS NOT NULL`
	var args []any
	if completedFrom != nil {
		query += ` AND completed_at > $1`
		childFilter += ` AND completed_at > $1`
		args = append(args, *completedFrom)
	}
	query += ` ORDER BY completed_at ASC;`
	childFilter += `)`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	found, err := rows2sessions(rows)
	if err != nil {
		return nil, err
	}

	exercisesBySession, err := loadPerformedExercises(ctx, r.db, childFilter, args...)
	if err != nil {
		return nil, err
	}
	for i := range found {
		found[i].Exercises = exercisesBySession[found[i].ID]
	}

	span.SetAttributes(attribute.Int("sessions.count", len(found)))
	return found, nil
}

// List returns a page of sessions, newest first, without the exercise data.
func (r *Repo) List(ctx context.Context, params ListParams) (_ []Session, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", params.Page))
	span.SetAttributes(attribute.Int("size", params.Size))

	if params.Page < 1 {
		return nil, -1, errors.New("page must be greater than 0")
	}
	if params.Size < 1 {
		return nil, -1, errors.New("size must be greater than 0")
	}

	countAll, err := r.Count(ctx)
	if err != nil {
		return nil, -1, err
	}

	limit := params.Size
	offset := (params.Page - 1) * params.Size
	if countAll <= limit {
		limit = countAll
		offset = 0
	} else if countAll-offset < limit {
		offset = countAll - limit
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, started_at, completed_at, target_minutes, status, has_records
			FROM session
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2;`,
		limit, offset,
	)
	if err != nil {
		return nil, -1, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, -1, err
	}

	found, err := rows2sessions(rows)
	if err != nil {
		return nil, -1, err
	}
	return found, countAll, nil
}

func (r *Repo) Count(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM session;`).Scan(&count); err != nil {
		return -1, err
	}
	return count, nil
}

// Delete removes the session with its exercises, sets and records
// (fk cascade). Podiums referencing other sessions are left untouched,
// a rebuild brings them back in sync.
func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM session WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func rows2sessions(rows pgx.Rows) ([]Session, error) {
	var found []Session
	for rows.Next() {
		var (
			s         Session
			statusStr *string
		)
		if err := rows.Scan(
			&s.ID, &s.StartedAt, &s.CompletedAt,
			&s.TargetMinutes, &statusStr, &s.HasRecords,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		if statusStr != nil {
			s.Status = Status(*statusStr)
		}
		found = append(found, s)
	}
	return found, nil
}

func loadPerformedExercises(
	ctx context.Context,
	q querier,
	sessionFilter string,
	args ...any,
) (map[int][]PerformedExercise, error) {
	rows, err := q.Query(
		ctx,
		`SELECT se.id, se.session_id, se.exercise_id, se.position
			FROM session_exercise se
			WHERE `+sessionFilter+`
		ORDER BY se.position ASC;`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query session exercises: %w", err)
	}

	bySession := make(map[int][]PerformedExercise)
	for rows.Next() {
		var (
			pe        PerformedExercise
			sessionID int
		)
		if err := rows.Scan(&pe.ID, &sessionID, &pe.ExerciseID, &pe.Position); err != nil {
			rows.Close()
			return nil, fmt.Errorf("session exercise scan: %w", err)
		}
		bySession[sessionID] = append(bySession[sessionID], pe)
	}
	// close before the next query, q can be a tx on a single connection
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session exercises rows: %w", err)
	}

	exerciseIndex := make(map[int]*PerformedExercise)
	for sessionID := range bySession {
		for i := range bySession[sessionID] {
			pe := &bySession[sessionID][i]
			exerciseIndex[pe.ID] = pe
		}
	}

	setRows, err := q.Query(
		ctx,
		`SELECT ss.id, ss.session_exercise_id, ss.set_index, ss.completed,
				ss.reps, ss.weight_kg, ss.distance_m, ss.duration_s
			FROM session_set ss
			JOIN session_exercise se ON ss.session_exercise_id = se.id
			WHERE `+sessionFilter+`
		ORDER BY ss.set_index ASC;`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query session sets: %w", err)
	}
	defer setRows.Close()

	for setRows.Next() {
		var (
			set  PerformedSet
			peID int
		)
		if err := setRows.Scan(
			&set.ID, &peID, &set.SetIndex, &set.Completed,
			&set.Reps, &set.WeightKg, &set.DistanceM, &set.DurationS,
		); err != nil {
			return nil, fmt.Errorf("session set scan: %w", err)
		}
		if pe, ok := exerciseIndex[peID]; ok {
			pe.Sets = append(pe.Sets, set)
		}
	}
	if err := setRows.Err(); err != nil {
		return nil, fmt.Errorf("session sets rows: %w", err)
	}

	return bySession, nil
}
