package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/2beens/liftlog/internal/exercises"
	"github.com/2beens/liftlog/internal/sessions"

	"github.com/brianvoe/gofakeit/v6"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// dev seeding tool: talks to a running liftlog backend over HTTP and fills
// it with an exercise catalog and plausible completed sessions, so podiums
// and statuses have something to show

type seeder struct {
	baseURL      string
	iosAppSecret string
	httpClient   *http.Client
}

type catalogEntry struct {
	name string
	kind exercises.Kind
	id   int
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "base url of a running liftlog backend")
	sessionsCount := flag.Int("sessions", 30, "number of completed sessions to create")
	flag.Parse()

	iosAppSecret := os.Getenv("LIFTLOG_IOS_APP_SECRET")
	if iosAppSecret == "" {
		log.Fatalf("ios app secret not set. use LIFTLOG_IOS_APP_SECRET")
	}

	s := &seeder{
		baseURL:      *serverURL,
		iosAppSecret: iosAppSecret,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}

	ctx := context.Background()

	catalog := []*catalogEntry{
		{name: "Bench Press", kind: exercises.KindStrength},
		{name: "Back Squat", kind: exercises.KindStrength},
		{name: "Deadlift", kind: exercises.KindStrength},
		{name: "Overhead Press", kind: exercises.KindStrength},
		{name: "Barbell Row", kind: exercises.KindStrength},
		{name: "Rowing Machine", kind: exercises.KindCardio},
		{name: "Treadmill Run", kind: exercises.KindCardio},
	}
	for _, entry := range catalog {
		if err := s.seedExercise(ctx, entry); err != nil {
			log.Fatalf("seed exercise [%s]: %s", entry.name, err)
		}
		log.Debugf("exercise [%s] seeded: %d", entry.name, entry.id)
	}
	log.Infof("seeded %d exercises", len(catalog))

	for i := 0; i < *sessionsCount; i++ {
		// one session per day, oldest first, so records improve over time
		startedAt := time.Now().AddDate(0, 0, -(*sessionsCount - i)).Truncate(time.Hour)
		if err := s.seedCompletedSession(ctx, catalog, startedAt); err != nil {
			log.Fatalf("seed session %d: %s", i, err)
		}
	}
	log.Infof("seeded %d completed sessions", *sessionsCount)
}

func (s *seeder) seedExercise(ctx context.Context, entry *catalogEntry) error {
	added := exercises.Exercise{}
	err := s.post(ctx, "/exercises", exercises.Exercise{
		Name: entry.name,
		Kind: entry.kind,
	}, &added)
	if err != nil {
		return err
	}
	entry.id = added.ID
	return nil
}

func (s *seeder) seedCompletedSession(
	ctx context.Context,
	catalog []*catalogEntry,
	startedAt time.Time,
) error {
	started := sessions.Session{}
	if err := s.post(ctx, "/sessions", sessions.StartSessionRequest{
		StartedAt: startedAt,
	}, &started); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	var targetMinutes *int
	if gofakeit.Bool() {
		target := gofakeit.Number(45, 90)
		targetMinutes = &target
	}

	durationMinutes := gofakeit.Number(40, 110)
	completeReq := sessions.CompleteSessionRequest{
		CompletedAt:   startedAt.Add(time.Duration(durationMinutes) * time.Minute),
		TargetMinutes: targetMinutes,
		Exercises:     performedExercises(catalog),
	}

	completed := sessions.Session{}
	if err := s.post(
		ctx,
		fmt.Sprintf("/sessions/%d/complete", started.ID),
		completeReq,
		&completed,
	); err != nil {
		return fmt.Errorf("complete %d: %w", started.ID, err)
	}

	log.Debugf("session %d completed: %s", completed.ID, completed.Status)
	return nil
}

func performedExercises(catalog []*catalogEntry) []sessions.PerformedExercise {
	count := gofakeit.Number(2, 4)
	var performed []sessions.PerformedExercise
	for position := 0; position < count; position++ {
		entry := catalog[gofakeit.Number(0, len(catalog)-1)]
		exerciseID := entry.id
		pe := sessions.PerformedExercise{
			ExerciseID: &exerciseID,
			Position:   position,
		}

		setsCount := gofakeit.Number(3, 5)
		for setIndex := 0; setIndex < setsCount; setIndex++ {
			if entry.kind == exercises.KindStrength {
				weight := gofakeit.Float64Range(40, 140)
				pe.Sets = append(pe.Sets, sessions.PerformedSet{
					SetIndex:  setIndex,
					Completed: gofakeit.Number(0, 9) > 0, // the occasional failed set
					Reps:      gofakeit.Number(3, 12),
					WeightKg:  &weight,
				})
				continue
			}

			distances := []int{1000, 2000, 5000}
			distanceM := distances[gofakeit.Number(0, len(distances)-1)]
			// very roughly 2:05/500m pace, give or take
			durationS := distanceM/2 + gofakeit.Number(-60, 180)
			pe.Sets = append(pe.Sets, sessions.PerformedSet{
				SetIndex:  setIndex,
				Completed: true,
				DistanceM: distanceM,
				DurationS: &durationS,
			})
		}

		performed = append(performed, pe)
	}
	return performed
}

func (s *seeder) post(ctx context.Context, path string, body any, response any) error {
	reqJson, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(reqJson))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "LiftLog/1.0 (seed)")
	req.Header.Set("Authorization", s.iosAppSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnf("close response body: %s", err)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
