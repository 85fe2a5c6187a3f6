package sessions

import "time"

// Status is the calendar classification of a completed session, derived
// from its duration and optional target. It is set by the evaluation
// pipeline, never by the client.
type Status string

const (
	StatusPartial   Status = "partial"
	StatusTargetMet Status = "target_met"
	StatusExceeded  Status = "exceeded"
)

func (s Status) Valid() bool {
	return s == StatusPartial || s == StatusTargetMet || s == StatusExceeded
}

func (s Status) String() string {
	return string(s)
}

// PerformedSet is a single set within a performed exercise. WeightKg nil
// means bodyweight. DurationS and DistanceM are used by cardio sets.
type PerformedSet struct {
	ID        int      `json:"id"`
	SetIndex  int      `json:"setIndex"`
	Completed bool     `json:"completed"`
	Reps      int      `json:"reps"`
	WeightKg  *float64 `json:"weightKg,omitempty"`
	DistanceM int      `json:"distanceM,omitempty"`
	DurationS *int     `json:"durationS,omitempty"`
}

// PerformedExercise is an exercise entry within a session. ExerciseID nil
// means the entry is not linked to the catalog and is skipped by ranking.
type PerformedExercise struct {
	ID         int            `json:"id"`
	ExerciseID *int           `json:"exerciseId,omitempty"`
	Position   int            `json:"position"`
	Sets       []PerformedSet `json:"sets"`
}

type Session struct {
	ID            int                 `json:"id"`
	StartedAt     time.Time           `json:"startedAt"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty"`
	TargetMinutes *int                `json:"targetMinutes,omitempty"`
	Status        Status              `json:"status,omitempty"`
	HasRecords    bool                `json:"hasRecords"`
	Exercises     []PerformedExercise `json:"exercises"`
}

func (s *Session) Completed() bool {
	return s.CompletedAt != nil
}

// DurationMinutes returns the session length in whole minutes, leftover
// seconds are dropped. Sessions still in progress (or with a completion
// before the start) count as zero.
func (s *Session) DurationMinutes() int {
	if s.CompletedAt == nil {
		return 0
	}
	d := s.CompletedAt.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d.Minutes())
}

// LinkedExerciseIDs returns the distinct catalog exercise ids of the
// session's performed exercises, unlinked entries skipped.
func (s *Session) LinkedExerciseIDs() []int {
	seen := make(map[int]bool)
	var ids []int
	for _, pe := range s.Exercises {
		if pe.ExerciseID == nil || seen[*pe.ExerciseID] {
			continue
		}
		seen[*pe.ExerciseID] = true
		ids = append(ids, *pe.ExerciseID)
	}
	return ids
}
