package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/2beens/liftlog/internal/evaluation"
	"github.com/2beens/liftlog/internal/exercises"
	"github.com/2beens/liftlog/internal/records"
	"github.com/2beens/liftlog/internal/sessions"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) rebuildRequest(ctx context.Context, token string) evaluation.RebuildResponse {
	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/evaluation/rebuild", serverEndpoint),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-LIFTLOG-TOKEN", token)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var rebuildResp evaluation.RebuildResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &rebuildResp))
	return rebuildResp
}

// stripRecordIDs zeroes the record ids so snapshots taken before and
// after a rebuild can be compared, a replay reinserts every row
func stripRecordIDs(resp records.PodiumsResponse) records.PodiumsResponse {
	for i := range resp.Podiums {
		for j := range resp.Podiums[i].Records {
			resp.Podiums[i].Records[j].ID = 0
		}
	}
	return resp
}

func (s *IntegrationTestSuite) TestRebuild() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.resetWorkoutData(ctx)

	bike := s.newExerciseRequest(ctx, exerciseFixture("Assault Bike", exercises.KindCardio))
	deadlift := s.newExerciseRequest(ctx, exerciseFixture("Deadlift", exercises.KindStrength))

	cardioSet := func(distanceM, durationS int) sessions.PerformedSet {
		return sessions.PerformedSet{
			SetIndex:  0,
			Completed: true,
			DistanceM: distanceM,
			DurationS: &durationS,
		}
	}

	base := time.Now().AddDate(0, 0, -20).Truncate(time.Second)
	completeDay := func(day int, performed []sessions.PerformedExercise) sessions.Session {
		startedAt := base.AddDate(0, 0, day)
		started := s.startSessionRequest(ctx, sessions.StartSessionRequest{StartedAt: startedAt})
		return s.completeSessionRequest(ctx, started.ID, sessions.CompleteSessionRequest{
			CompletedAt: startedAt.Add(time.Hour),
			Exercises:   performed,
		})
	}

	// r1 rides only, so once its time gets pushed off the podium the
	// session holds no records at all
	r1 := completeDay(1, []sessions.PerformedExercise{
		{ExerciseID: &bike.ID, Position: 0, Sets: []sessions.PerformedSet{cardioSet(1000, 150)}},
	})
	deadliftWeight := 140.0
	r2 := completeDay(2, []sessions.PerformedExercise{
		{ExerciseID: &bike.ID, Position: 0, Sets: []sessions.PerformedSet{cardioSet(1000, 145)}},
		{ExerciseID: &deadlift.ID, Position: 1, Sets: []sessions.PerformedSet{
			{SetIndex: 0, Completed: true, Reps: 5, WeightKg: &deadliftWeight},
		}},
	})
	r3 := completeDay(3, []sessions.PerformedExercise{
		{ExerciseID: &bike.ID, Position: 0, Sets: []sessions.PerformedSet{cardioSet(1000, 148)}},
	})
	r4 := completeDay(4, []sessions.PerformedExercise{
		{ExerciseID: &bike.ID, Position: 0, Sets: []sessions.PerformedSet{cardioSet(1000, 147)}},
	})

	t.Run("eviction leaves the flag stale", func(t *testing.T) {
		// r4 pushed r1's 150s off the podium, but a single session
		// evaluation never touches other sessions
		assert.Equal(t, 0, s.recordsCountForSession(ctx, r1.ID))
		assert.True(t, s.getSessionRequest(ctx, r1.ID).HasRecords)
	})

	snapshot := stripRecordIDs(s.allPodiumsRequest(ctx))
	require.Len(t, snapshot.Podiums, 3)

	t.Run("rebuild repairs tampered data", func(t *testing.T) {
		// corrupt the store underneath the server: an extra podium row
		// and a wrongly cleared flag
		_, err := s.dbPool.Exec(ctx, `
			INSERT INTO record (exercise_id, metric, distance_m, duration_s, medal, session_id, achieved_at)
			VALUES ($1, 'cardio_time', 1000, 1, 1, $2, NOW())`,
			bike.ID, r1.ID,
		)
		require.NoError(t, err)
		_, err = s.dbPool.Exec(ctx, `UPDATE session SET has_records = FALSE WHERE id = $1`, r2.ID)
		require.NoError(t, err)

		tampered := s.allPodiumsRequest(ctx)
		require.Len(t, tampered.Podiums, 3)
		assert.Len(t, tampered.Podiums[0].Records, 4)
		assert.False(t, s.getSessionRequest(ctx, r2.ID).HasRecords)

		token := s.doLogin(ctx)
		rebuildResp := s.rebuildRequest(ctx, token)
		assert.Equal(t, 4, rebuildResp.ReplayedSessions)

		assert.Equal(t, snapshot, stripRecordIDs(s.allPodiumsRequest(ctx)))
		assert.True(t, s.getSessionRequest(ctx, r2.ID).HasRecords)
		assert.False(t, s.getSessionRequest(ctx, r1.ID).HasRecords)

		// replaying the same history again changes nothing
		rebuildResp = s.rebuildRequest(ctx, token)
		assert.Equal(t, 4, rebuildResp.ReplayedSessions)
		assert.Equal(t, snapshot, stripRecordIDs(s.allPodiumsRequest(ctx)))
	})

	t.Run("rebuild promotes after a session delete", func(t *testing.T) {
		// warm the cache, then delete the gold holder
		bikePodiums := s.exercisePodiumsRequest(ctx, bike.ID)
		require.Len(t, bikePodiums.Podiums, 1)
		require.Len(t, bikePodiums.Podiums[0].Records, 3)
		require.Equal(t, r2.ID, bikePodiums.Podiums[0].Records[0].SessionID)

		deleteResp := s.deleteSessionRequest(ctx, r2.ID)
		assert.Equal(t, r2.ID, deleteResp.DeletedID)

		// the cached podium still shows the deleted session
		cached := s.exercisePodiumsRequest(ctx, bike.ID)
		require.Len(t, cached.Podiums, 1)
		assert.Equal(t, bikePodiums.Podiums[0].Records, cached.Podiums[0].Records)

		// the uncached view has the gap already: silver and bronze
		// keep their medals until the next rebuild
		allPodiums := s.allPodiumsRequest(ctx)
		require.Len(t, allPodiums.Podiums, 1)
		require.Len(t, allPodiums.Podiums[0].Records, 2)
		assert.Equal(t, records.MedalSilver, allPodiums.Podiums[0].Records[0].Medal)
		assert.Equal(t, records.MedalBronze, allPodiums.Podiums[0].Records[1].Medal)

		token := s.doLogin(ctx)
		rebuildResp := s.rebuildRequest(ctx, token)
		assert.Equal(t, 3, rebuildResp.ReplayedSessions)

		// r1's 150s is back on the podium, medals are contiguous again
		rebuilt := s.exercisePodiumsRequest(ctx, bike.ID)
		require.Len(t, rebuilt.Podiums, 1)
		require.Len(t, rebuilt.Podiums[0].Records, 3)
		for i, rec := range rebuilt.Podiums[0].Records {
			assert.Equal(t, records.Medal(i+1), rec.Medal, "position %d", i)
		}
		assert.Equal(t, r4.ID, rebuilt.Podiums[0].Records[0].SessionID)
		require.NotNil(t, rebuilt.Podiums[0].Records[0].DurationS)
		assert.Equal(t, 147, *rebuilt.Podiums[0].Records[0].DurationS)
		assert.Equal(t, r3.ID, rebuilt.Podiums[0].Records[1].SessionID)
		assert.Equal(t, r1.ID, rebuilt.Podiums[0].Records[2].SessionID)
		assert.True(t, s.getSessionRequest(ctx, r1.ID).HasRecords)
	})
}
