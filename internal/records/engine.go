package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/2beens/liftlog/internal/exercises"
	"github.com/2beens/liftlog/internal/sessions"
	"github.com/2beens/liftlog/internal/telemetry/metrics"
	"github.com/2beens/liftlog/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// podiumSize bounds every bucket to a gold, silver and bronze entry.
const podiumSize = 3

var ErrSessionNotCompleted = errors.New("session not completed")

type recordsStore interface {
	ListBucket(ctx context.Context, bucket Bucket) ([]Record, error)
	Insert(ctx context.Context, rec Record) (*Record, error)
	UpdateMedal(ctx context.Context, id int, medal Medal) error
	Delete(ctx context.Context, id int) error
}

type exercisesRepo interface {
	Get(ctx context.Context, id int) (*exercises.Exercise, error)
}

// Engine maintains the personal record podiums. One Evaluate call per
// completed session derives candidate values from the performed sets and
// submits each to its bucket podium.
type Engine struct {
	store     recordsStore
	exercises exercisesRepo
	metrics   *metrics.Manager
}

func NewEngine(store recordsStore, exercises exercisesRepo, metrics *metrics.Manager) *Engine {
	return &Engine{
		store:     store,
		exercises: exercises,
		metrics:   metrics,
	}
}

// Evaluate derives the record candidates of one completed session and
// reranks their bucket podiums, returning the newly created records.
// Performed exercises without a linked identity are skipped, as are
// exercises deleted since the session was logged.
func (e *Engine) Evaluate(ctx context.Context, session *sessions.Session) (created []Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "records.engine.evaluate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("session.id", session.ID))

	if !session.Completed() {
		return nil, ErrSessionNotCompleted
	}

	for _, pe := range session.Exercises {
		if pe.ExerciseID == nil {
			continue
		}

		ex, err := e.exercises.Get(ctx, *pe.ExerciseID)
		if errors.Is(err, exercises.ErrExerciseNotFound) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("get exercise %d: %w", *pe.ExerciseID, err)
		}

		for _, candidate := range deriveCandidates(ex, pe, session) {
			inserted, err := e.rerank(ctx, candidate)
			if err != nil {
				return created, fmt.Errorf("rerank bucket %s: %w", candidate.Bucket(), err)
			}
			if inserted != nil {
				created = append(created, *inserted)
			}
		}
	}

	span.SetAttributes(attribute.Int("records.created", len(created)))
	return created, nil
}

// rerank submits one candidate to its bucket podium: the combined set of
// current members plus the candidate is sorted, cut at the podium size,
// pushed-off members get deleted and medals get reassigned by position.
// Returns the stored record when the candidate made the podium, nil when
// it was discarded or the session already holds a record in this bucket.
func (e *Engine) rerank(ctx context.Context, candidate Record) (_ *Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "records.engine.rerank")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("bucket", candidate.Bucket().String()))

	existing, err := e.store.ListBucket(ctx, candidate.Bucket())
	if err != nil {
		return nil, fmt.Errorf("list bucket: %w", err)
	}

	// one record per session and bucket, a rerun of the same session
	// must change nothing
	for _, rec := range existing {
		if rec.SessionID == candidate.SessionID {
			return nil, nil
		}
	}

	combined := make([]Record, 0, len(existing)+1)
	combined = append(combined, existing...)
	combined = append(combined, candidate)
	sort.SliceStable(combined, func(i, j int) bool {
		return ranksBefore(combined[i], combined[j])
	})

	podium := combined
	if len(combined) > podiumSize {
		podium = combined[:podiumSize]
		for _, evicted := range combined[podiumSize:] {
			if evicted.ID == 0 {
				// the candidate did not make the podium, it is never stored
				continue
			}
			if err := e.store.Delete(ctx, evicted.ID); err != nil {
				return nil, fmt.Errorf("delete evicted record %d: %w", evicted.ID, err)
			}
			e.metrics.CounterRecordsEvicted.Inc()
		}
	}

	var inserted *Record
	for i := range podium {
		medal := Medal(i + 1)
		if podium[i].ID == 0 {
			podium[i].Medal = medal
			insertedRec, err := e.store.Insert(ctx, podium[i])
			if err != nil {
				return nil, fmt.Errorf("insert record: %w", err)
			}
			inserted = insertedRec
			e.metrics.CounterRecordsCreated.Inc()
			continue
		}
		if podium[i].Medal == medal {
			continue
		}
		if err := e.store.UpdateMedal(ctx, podium[i].ID, medal); err != nil {
			return nil, fmt.Errorf("update medal for record %d: %w", podium[i].ID, err)
		}
		podium[i].Medal = medal
	}

	return inserted, nil
}

// ranksBefore orders two records of the same bucket, better first. Strength
// metrics rank by value descending, cardio time by duration ascending. On
// equal values the earlier achievement ranks first, then the lower id, with
// an unsaved candidate (no id yet) after every stored record.
func ranksBefore(a, b Record) bool {
	if a.Metric == MetricCardioTime {
		if *a.DurationS != *b.DurationS {
			return *a.DurationS < *b.DurationS
		}
	} else {
		if *a.ValueKg != *b.ValueKg {
			return *a.ValueKg > *b.ValueKg
		}
	}
	if !a.AchievedAt.Equal(b.AchievedAt) {
		return a.AchievedAt.Before(b.AchievedAt)
	}
	if a.ID == 0 {
		return false
	}
	if b.ID == 0 {
		return true
	}
	return a.ID < b.ID
}

func deriveCandidates(ex *exercises.Exercise, pe sessions.PerformedExercise, session *sessions.Session) []Record {
	achievedAt := *session.CompletedAt
	switch ex.Kind {
	case exercises.KindStrength:
		var candidates []Record
		if c := maxWeightCandidate(ex.ID, pe.Sets, session.ID, achievedAt); c != nil {
			candidates = append(candidates, *c)
		}
		if c := bestVolumeCandidate(ex.ID, pe.Sets, session.ID, achievedAt); c != nil {
			candidates = append(candidates, *c)
		}
		return candidates
	case exercises.KindCardio:
		return cardioTimeCandidates(ex.ID, pe.Sets, session.ID, achievedAt)
	default:
		return nil
	}
}

// maxWeightCandidate picks the heaviest completed set, its reps carried as
// the secondary value. Bodyweight sets (no weight) produce no candidate.
func maxWeightCandidate(exerciseID int, sets []sessions.PerformedSet, sessionID int, achievedAt time.Time) *Record {
	var (
		bestWeight float64
		bestReps   int
		found      bool
	)
	for _, set := range sets {
		if !set.Completed || set.WeightKg == nil || *set.WeightKg <= 0 {
			continue
		}
		if !found || *set.WeightKg > bestWeight {
			bestWeight = *set.WeightKg
			bestReps = set.Reps
			found = true
		}
	}
	if !found {
		return nil
	}
	return &Record{
		ExerciseID: exerciseID,
		Metric:     MetricMaxWeight,
		ValueKg:    &bestWeight,
		Reps:       &bestReps,
		SessionID:  sessionID,
		AchievedAt: achievedAt,
	}
}

// bestVolumeCandidate sums reps x weight over the completed weighted sets.
func bestVolumeCandidate(exerciseID int, sets []sessions.PerformedSet, sessionID int, achievedAt time.Time) *Record {
	var volume float64
	for _, set := range sets {
		if !set.Completed || set.WeightKg == nil {
			continue
		}
		volume += float64(set.Reps) * *set.WeightKg
	}
	if volume <= 0 {
		return nil
	}
	return &Record{
		ExerciseID: exerciseID,
		Metric:     MetricBestVolume,
		ValueKg:    &volume,
		SessionID:  sessionID,
		AchievedAt: achievedAt,
	}
}

// cardioTimeCandidates produces one candidate per distance present in the
// session: the fastest completed set over that distance.
func cardioTimeCandidates(exerciseID int, sets []sessions.PerformedSet, sessionID int, achievedAt time.Time) []Record {
	bestByDistance := make(map[int]int)
	for _, set := range sets {
		if !set.Completed || set.DistanceM <= 0 || set.DurationS == nil || *set.DurationS <= 0 {
			continue
		}
		if best, ok := bestByDistance[set.DistanceM]; !ok || *set.DurationS < best {
			bestByDistance[set.DistanceM] = *set.DurationS
		}
	}
	if len(bestByDistance) == 0 {
		return nil
	}

	distances := make([]int, 0, len(bestByDistance))
	for d := range bestByDistance {
		distances = append(distances, d)
	}
	sort.Ints(distances)

	candidates := make([]Record, 0, len(distances))
	for _, d := range distances {
		duration := bestByDistance[d]
		candidates = append(candidates, Record{
			ExerciseID: exerciseID,
			Metric:     MetricCardioTime,
			DistanceM:  d,
			DurationS:  &duration,
			SessionID:  sessionID,
			AchievedAt: achievedAt,
		})
	}
	return candidates
}
