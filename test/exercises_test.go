package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/2beens/liftlog/internal/exercises"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseFixture(name string, kind exercises.Kind) exercises.Exercise {
	return exercises.Exercise{
		Name:      name,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
}

func (s *IntegrationTestSuite) newExerciseRequest(
	ctx context.Context,
	exercise exercises.Exercise,
) exercises.Exercise {
	exerciseJson, err := json.Marshal(exercise)
	require.NoError(s.T(), err)

	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/exercises", serverEndpoint),
		bytes.NewReader(exerciseJson),
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "LiftLog/1.0")
	req.Header.Set("Authorization", testIOSAppSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var addedExercise exercises.Exercise
	require.NoError(s.T(), json.Unmarshal(respBytes, &addedExercise))

	return addedExercise
}

func (s *IntegrationTestSuite) getExerciseRequest(ctx context.Context, id int) exercises.Exercise {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/exercises/%d", serverEndpoint, id),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "LiftLog/1.0")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var exercise exercises.Exercise
	require.NoError(s.T(), json.Unmarshal(respBytes, &exercise))
	return exercise
}

func (s *IntegrationTestSuite) listExercisesRequest(ctx context.Context) exercises.ExercisesListResponse {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/exercises", serverEndpoint),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "LiftLog/1.0")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var listResp exercises.ExercisesListResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &listResp))
	return listResp
}

func (s *IntegrationTestSuite) updateExerciseRequest(
	ctx context.Context,
	exercise exercises.Exercise,
) exercises.UpdateExerciseResponse {
	exerciseJson, err := json.Marshal(exercise)
	require.NoError(s.T(), err)

	req, err := http.NewRequestWithContext(
		ctx,
		"PUT", fmt.Sprintf("%s/exercises", serverEndpoint),
		bytes.NewReader(exerciseJson),
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "LiftLog/1.0")
	req.Header.Set("Authorization", testIOSAppSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var updateResp exercises.UpdateExerciseResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &updateResp))
	return updateResp
}

func (s *IntegrationTestSuite) deleteExerciseRequest(ctx context.Context, id int) exercises.DeleteExerciseResponse {
	req, err := http.NewRequestWithContext(
		ctx,
		"DELETE", fmt.Sprintf("%s/exercises/%d", serverEndpoint, id),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "LiftLog/1.0")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var deleteResp exercises.DeleteExerciseResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &deleteResp))
	return deleteResp
}

func (s *IntegrationTestSuite) TestExercises() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	benchPress := exercises.Exercise{
		Name:      "Bench Press",
		Kind:      exercises.KindStrength,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	treadmill := exercises.Exercise{
		Name:      "Treadmill Run",
		Kind:      exercises.KindCardio,
		CreatedAt: time.Now(),
	}

	s.T().Run("authorization missing", func(t *testing.T) {
		exerciseJson, err := json.Marshal(benchPress)
		require.NoError(t, err)
		req, err := http.NewRequestWithContext(
			ctx,
			"POST", fmt.Sprintf("%s/exercises", serverEndpoint),
			bytes.NewReader(exerciseJson),
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "LiftLog/1.0")
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()

		// no login token either
		req, err = http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/exercises", serverEndpoint), nil)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")

		resp, err = s.httpClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	s.T().Run("authorization present, but invalid", func(t *testing.T) {
		req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/exercises", serverEndpoint), nil)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "LiftLog/1.0")
		req.Header.Set("Authorization", "invalid-secret")

		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()

		req, err = http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/exercises", serverEndpoint), nil)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")
		req.Header.Set("X-LIFTLOG-TOKEN", "invalid-token")

		resp, err = s.httpClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	s.T().Run("invalid exercises rejected", func(t *testing.T) {
		for _, exercise := range []exercises.Exercise{
			{Name: "", Kind: exercises.KindStrength},
			{Name: "Mystery Machine", Kind: "yoga"},
		} {
			exerciseJson, err := json.Marshal(exercise)
			require.NoError(t, err)
			req, err := http.NewRequestWithContext(
				ctx,
				"POST", fmt.Sprintf("%s/exercises", serverEndpoint),
				bytes.NewReader(exerciseJson),
			)
			require.NoError(t, err)
			req.Header.Set("User-Agent", "LiftLog/1.0")
			req.Header.Set("Authorization", testIOSAppSecret)
			req.Header.Set("Content-Type", "application/json")

			resp, err := s.httpClient.Do(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			resp.Body.Close()
		}
	})

	s.T().Run("catalog crud", func(t *testing.T) {
		s.resetWorkoutData(ctx)
		require.Empty(t, s.listExercisesRequest(ctx).Exercises)

		addedBench := s.newExerciseRequest(ctx, benchPress)
		assert.True(t, addedBench.ID > 0)
		assert.Equal(t, benchPress.Name, addedBench.Name)
		assert.Equal(t, exercises.KindStrength, addedBench.Kind)

		addedTreadmill := s.newExerciseRequest(ctx, treadmill)
		assert.True(t, addedTreadmill.ID > addedBench.ID)

		listResp := s.listExercisesRequest(ctx)
		require.Len(t, listResp.Exercises, 2)
		assert.Equal(t, 2, listResp.Total)
		// ordered by name
		assert.Equal(t, "Bench Press", listResp.Exercises[0].Name)
		assert.Equal(t, "Treadmill Run", listResp.Exercises[1].Name)

		gotBench := s.getExerciseRequest(ctx, addedBench.ID)
		assert.Equal(t, addedBench.ID, gotBench.ID)
		assert.Equal(t, "Bench Press", gotBench.Name)

		gotBench.Name = "Incline Bench Press"
		updateResp := s.updateExerciseRequest(ctx, gotBench)
		assert.Equal(t, addedBench.ID, updateResp.UpdatedID)
		assert.Equal(t, "Incline Bench Press", s.getExerciseRequest(ctx, addedBench.ID).Name)

		deleteResp := s.deleteExerciseRequest(ctx, addedTreadmill.ID)
		assert.Equal(t, addedTreadmill.ID, deleteResp.DeletedID)

		listResp = s.listExercisesRequest(ctx)
		require.Len(t, listResp.Exercises, 1)
		assert.Equal(t, addedBench.ID, listResp.Exercises[0].ID)

		// the deleted one is gone
		req, err := http.NewRequestWithContext(
			ctx,
			"GET", fmt.Sprintf("%s/exercises/%d", serverEndpoint, addedTreadmill.ID),
			nil,
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "LiftLog/1.0")
		req.Header.Set("Authorization", testIOSAppSecret)

		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})
}
