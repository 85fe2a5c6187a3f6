package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/2beens/liftlog/internal/exercises"
	"github.com/2beens/liftlog/internal/records"
	"github.com/2beens/liftlog/internal/sessions"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// podium reads are public: no app secret, no login token
func (s *IntegrationTestSuite) exercisePodiumsRequest(ctx context.Context, exerciseID int) records.PodiumsResponse {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/records/exercise/%d", serverEndpoint, exerciseID),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var podiumsResp records.PodiumsResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &podiumsResp))
	return podiumsResp
}

func (s *IntegrationTestSuite) allPodiumsRequest(ctx context.Context) records.PodiumsResponse {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/records", serverEndpoint),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var podiumsResp records.PodiumsResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &podiumsResp))
	return podiumsResp
}

func (s *IntegrationTestSuite) TestRecords() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.resetWorkoutData(ctx)

	bench := s.newExerciseRequest(ctx, exerciseFixture("Bench Press", exercises.KindStrength))
	rowing := s.newExerciseRequest(ctx, exerciseFixture("Rowing Machine", exercises.KindCardio))

	strengthSet := func(idx, reps int, weightKg float64, completed bool) sessions.PerformedSet {
		return sessions.PerformedSet{
			SetIndex:  idx,
			Completed: completed,
			Reps:      reps,
			WeightKg:  &weightKg,
		}
	}
	cardioSet := func(idx, distanceM, durationS int) sessions.PerformedSet {
		return sessions.PerformedSet{
			SetIndex:  idx,
			Completed: true,
			DistanceM: distanceM,
			DurationS: &durationS,
		}
	}

	base := time.Now().AddDate(0, 0, -10).Truncate(time.Second)
	completeDay := func(day int, performed []sessions.PerformedExercise) sessions.Session {
		startedAt := base.AddDate(0, 0, day)
		started := s.startSessionRequest(ctx, sessions.StartSessionRequest{StartedAt: startedAt})
		return s.completeSessionRequest(ctx, started.ID, sessions.CompleteSessionRequest{
			CompletedAt: startedAt.Add(time.Hour),
			Exercises:   performed,
		})
	}

	assertStrengthPodium := func(
		t *testing.T,
		podium records.Podium,
		metric records.Metric,
		wantValues []float64,
		wantSessions []int,
	) {
		t.Helper()
		assert.Equal(t, records.Bucket{ExerciseID: bench.ID, Metric: metric}, podium.Bucket)
		require.Len(t, podium.Records, len(wantValues))
		for i, rec := range podium.Records {
			assert.Equal(t, records.Medal(i+1), rec.Medal, "position %d", i)
			require.NotNil(t, rec.ValueKg, "position %d", i)
			assert.Equal(t, wantValues[i], *rec.ValueKg, "position %d", i)
			assert.Equal(t, wantSessions[i], rec.SessionID, "position %d", i)
			assert.Nil(t, rec.DurationS, "position %d", i)
		}
	}
	assertCardioPodium := func(
		t *testing.T,
		podium records.Podium,
		distanceM int,
		wantDurations []int,
		wantSessions []int,
	) {
		t.Helper()
		assert.Equal(t, records.Bucket{
			ExerciseID: rowing.ID,
			Metric:     records.MetricCardioTime,
			DistanceM:  distanceM,
		}, podium.Bucket)
		require.Len(t, podium.Records, len(wantDurations))
		for i, rec := range podium.Records {
			assert.Equal(t, records.Medal(i+1), rec.Medal, "position %d", i)
			require.NotNil(t, rec.DurationS, "position %d", i)
			assert.Equal(t, wantDurations[i], *rec.DurationS, "position %d", i)
			assert.Equal(t, wantSessions[i], rec.SessionID, "position %d", i)
			assert.Nil(t, rec.ValueKg, "position %d", i)
		}
	}

	// day 1: bench 100x5, rowing 500m in 110s
	s1 := completeDay(1, []sessions.PerformedExercise{
		{ExerciseID: &bench.ID, Position: 0, Sets: []sessions.PerformedSet{
			strengthSet(0, 5, 100, true),
		}},
		{ExerciseID: &rowing.ID, Position: 1, Sets: []sessions.PerformedSet{
			cardioSet(0, 500, 110),
		}},
	})
	assert.True(t, s1.HasRecords)

	t.Run("first session opens every podium", func(t *testing.T) {
		benchPodiums := s.exercisePodiumsRequest(ctx, bench.ID)
		require.Len(t, benchPodiums.Podiums, 2)
		assert.Equal(t, 2, benchPodiums.Total)
		// podiums ordered by metric, best_volume before max_weight
		assertStrengthPodium(t, benchPodiums.Podiums[0], records.MetricBestVolume, []float64{500}, []int{s1.ID})
		assertStrengthPodium(t, benchPodiums.Podiums[1], records.MetricMaxWeight, []float64{100}, []int{s1.ID})

		rowingPodiums := s.exercisePodiumsRequest(ctx, rowing.ID)
		require.Len(t, rowingPodiums.Podiums, 1)
		assertCardioPodium(t, rowingPodiums.Podiums[0], 500, []int{110}, []int{s1.ID})
	})

	// day 2: heavier bench but lower volume, faster 500m, first 2000m;
	// the failed 200kg set must not count
	s2 := completeDay(2, []sessions.PerformedExercise{
		{ExerciseID: &bench.ID, Position: 0, Sets: []sessions.PerformedSet{
			strengthSet(0, 3, 120, true),
			strengthSet(1, 1, 200, false),
		}},
		{ExerciseID: &rowing.ID, Position: 1, Sets: []sessions.PerformedSet{
			cardioSet(0, 500, 105),
			cardioSet(1, 2000, 480),
		}},
	})

	t.Run("better results take gold, failed sets ignored", func(t *testing.T) {
		benchPodiums := s.exercisePodiumsRequest(ctx, bench.ID)
		require.Len(t, benchPodiums.Podiums, 2)
		assertStrengthPodium(t, benchPodiums.Podiums[0], records.MetricBestVolume, []float64{500, 360}, []int{s1.ID, s2.ID})
		assertStrengthPodium(t, benchPodiums.Podiums[1], records.MetricMaxWeight, []float64{120, 100}, []int{s2.ID, s1.ID})

		rowingPodiums := s.exercisePodiumsRequest(ctx, rowing.ID)
		require.Len(t, rowingPodiums.Podiums, 2)
		// distance buckets compete separately, ordered by distance
		assertCardioPodium(t, rowingPodiums.Podiums[0], 500, []int{105, 110}, []int{s2.ID, s1.ID})
		assertCardioPodium(t, rowingPodiums.Podiums[1], 2000, []int{480}, []int{s2.ID})
	})

	// day 3: light bench with lots of reps, slow 500m
	s3 := completeDay(3, []sessions.PerformedExercise{
		{ExerciseID: &bench.ID, Position: 0, Sets: []sessions.PerformedSet{
			strengthSet(0, 10, 90, true),
		}},
		{ExerciseID: &rowing.ID, Position: 1, Sets: []sessions.PerformedSet{
			cardioSet(0, 500, 112),
		}},
	})

	t.Run("podiums fill to three", func(t *testing.T) {
		benchPodiums := s.exercisePodiumsRequest(ctx, bench.ID)
		require.Len(t, benchPodiums.Podiums, 2)
		assertStrengthPodium(t, benchPodiums.Podiums[0], records.MetricBestVolume, []float64{900, 500, 360}, []int{s3.ID, s1.ID, s2.ID})
		assertStrengthPodium(t, benchPodiums.Podiums[1], records.MetricMaxWeight, []float64{120, 100, 90}, []int{s2.ID, s1.ID, s3.ID})

		rowingPodiums := s.exercisePodiumsRequest(ctx, rowing.ID)
		require.Len(t, rowingPodiums.Podiums, 2)
		assertCardioPodium(t, rowingPodiums.Podiums[0], 500, []int{105, 110, 112}, []int{s2.ID, s1.ID, s3.ID})
	})

	// day 4: pushes the weakest member off every full podium
	s4 := completeDay(4, []sessions.PerformedExercise{
		{ExerciseID: &bench.ID, Position: 0, Sets: []sessions.PerformedSet{
			strengthSet(0, 4, 110, true),
		}},
		{ExerciseID: &rowing.ID, Position: 1, Sets: []sessions.PerformedSet{
			cardioSet(0, 500, 103),
		}},
	})

	t.Run("eviction and medal reassignment", func(t *testing.T) {
		benchPodiums := s.exercisePodiumsRequest(ctx, bench.ID)
		require.Len(t, benchPodiums.Podiums, 2)
		assertStrengthPodium(t, benchPodiums.Podiums[0], records.MetricBestVolume, []float64{900, 500, 440}, []int{s3.ID, s1.ID, s4.ID})
		assertStrengthPodium(t, benchPodiums.Podiums[1], records.MetricMaxWeight, []float64{120, 110, 100}, []int{s2.ID, s4.ID, s1.ID})

		// the gold max weight carries its reps
		goldMaxWeight := benchPodiums.Podiums[1].Records[0]
		require.NotNil(t, goldMaxWeight.Reps)
		assert.Equal(t, 3, *goldMaxWeight.Reps)

		rowingPodiums := s.exercisePodiumsRequest(ctx, rowing.ID)
		require.Len(t, rowingPodiums.Podiums, 2)
		assertCardioPodium(t, rowingPodiums.Podiums[0], 500, []int{103, 105, 110}, []int{s4.ID, s2.ID, s1.ID})
		assertCardioPodium(t, rowingPodiums.Podiums[1], 2000, []int{480}, []int{s2.ID})
	})

	t.Run("all podiums across exercises", func(t *testing.T) {
		allPodiums := s.allPodiumsRequest(ctx)
		require.Len(t, allPodiums.Podiums, 4)
		assert.Equal(t, 4, allPodiums.Total)

		var recordsTotal int
		for _, podium := range allPodiums.Podiums {
			assert.True(t, len(podium.Records) <= 3)
			recordsTotal += len(podium.Records)
		}
		assert.Equal(t, 10, recordsTotal)
	})

	t.Run("record holders keep the flag", func(t *testing.T) {
		// s3 lost its 500m bronze to s4 but still holds the volume gold
		for _, sessionID := range []int{s1.ID, s2.ID, s3.ID, s4.ID} {
			fetched := s.getSessionRequest(ctx, sessionID)
			assert.True(t, fetched.HasRecords, "session %d", sessionID)
		}
	})
}
