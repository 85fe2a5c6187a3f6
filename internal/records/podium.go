package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	podiumKeyPrefix   = "podium::"
	podiumCacheExpire = 12 * time.Hour
)

// Podium is the read model the app renders: one bucket with its medal
// ordered records.
type Podium struct {
	Bucket  Bucket   `json:"bucket"`
	Records []Record `json:"records"`
}

type podiumRepo interface {
	ListForExercise(ctx context.Context, exerciseID int) ([]Record, error)
	ListAll(ctx context.Context) ([]Record, error)
}

// PodiumService serves podiums with a redis cache in front of the repo.
// The evaluation invalidates affected exercises after each commit, the
// expiry only covers invalidation slipping through.
type PodiumService struct {
	repo        podiumRepo
	redisClient *redis.Client
}

func NewPodiumService(repo podiumRepo, redisClient *redis.Client) *PodiumService {
	return &PodiumService{
		repo:        repo,
		redisClient: redisClient,
	}
}

func (ps *PodiumService) ExercisePodiums(ctx context.Context, exerciseID int) (_ []Podium, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "records.podiums.exercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("exercise.id", exerciseID))

	key := podiumKey(exerciseID)
	cmd := ps.redisClient.Get(ctx, key)
	if err := cmd.Err(); err != nil && !errors.Is(err, redis.Nil) {
		log.Errorf("podiums for exercise %d, redis get: %s", exerciseID, err)
	}

	if cached := cmd.Val(); cached != "" {
		var podiums []Podium
		if err := json.Unmarshal([]byte(cached), &podiums); err != nil {
			log.Errorf("podiums for exercise %d, unmarshal cached: %s", exerciseID, err)
			// broken cache entry, fall through to the repo
		} else {
			span.SetAttributes(attribute.Bool("podiums.from-cache", true))
			return podiums, nil
		}
	}
	span.SetAttributes(attribute.Bool("podiums.from-cache", false))

	found, err := ps.repo.ListForExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	podiums := groupPodiums(found)

	podiumsJson, err := json.Marshal(podiums)
	if err != nil {
		return nil, fmt.Errorf("marshal podiums: %w", err)
	}
	if err := ps.redisClient.Set(ctx, key, podiumsJson, podiumCacheExpire).Err(); err != nil {
		log.Errorf("podiums for exercise %d, redis set: %s", exerciseID, err)
	}

	return podiums, nil
}

func (ps *PodiumService) AllPodiums(ctx context.Context) (_ []Podium, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "records.podiums.all")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	found, err := ps.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return groupPodiums(found), nil
}

// Invalidate drops the cached podiums of the given exercises.
func (ps *PodiumService) Invalidate(ctx context.Context, exerciseIDs ...int) error {
	if len(exerciseIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(exerciseIDs))
	for _, id := range exerciseIDs {
		keys = append(keys, podiumKey(id))
	}
	return ps.redisClient.Del(ctx, keys...).Err()
}

// InvalidateAll drops every cached podium. The rebuild calls it, a full
// replay can touch any bucket.
func (ps *PodiumService) InvalidateAll(ctx context.Context) error {
	var keys []string
	iter := ps.redisClient.Scan(ctx, 0, podiumKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan podium keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return ps.redisClient.Del(ctx, keys...).Err()
}

func podiumKey(exerciseID int) string {
	return fmt.Sprintf("%s%d", podiumKeyPrefix, exerciseID)
}

// groupPodiums splits a repo-ordered record list into podiums, relying on
// bucket members arriving consecutively.
func groupPodiums(found []Record) []Podium {
	var podiums []Podium
	for _, rec := range found {
		b := rec.Bucket()
		if len(podiums) == 0 || podiums[len(podiums)-1].Bucket != b {
			podiums = append(podiums, Podium{Bucket: b})
		}
		podiums[len(podiums)-1].Records = append(podiums[len(podiums)-1].Records, rec)
	}
	return podiums
}
