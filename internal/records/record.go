package records

import (
	"fmt"
	"time"
)

type Metric string

const (
	// MetricMaxWeight is the heaviest completed strength set.
	MetricMaxWeight Metric = "max_weight"
	// MetricBestVolume is the highest total reps x weight of one session.
	MetricBestVolume Metric = "best_volume"
	// MetricCardioTime is the fastest time over a given distance.
	MetricCardioTime Metric = "cardio_time"
)

func (m Metric) Valid() bool {
	return m == MetricMaxWeight || m == MetricBestVolume || m == MetricCardioTime
}

func (m Metric) String() string {
	return string(m)
}

type Medal int

const (
	MedalGold   Medal = 1
	MedalSilver Medal = 2
	MedalBronze Medal = 3
)

func (m Medal) String() string {
	switch m {
	case MedalGold:
		return "gold"
	case MedalSilver:
		return "silver"
	case MedalBronze:
		return "bronze"
	default:
		return fmt.Sprintf("medal(%d)", int(m))
	}
}

// Bucket is the unit of competition: one podium of up to three records
// exists per bucket. DistanceM is set for cardio only, strength buckets
// have it at zero.
type Bucket struct {
	ExerciseID int    `json:"exerciseId"`
	Metric     Metric `json:"metric"`
	DistanceM  int    `json:"distanceM"`
}

func (b Bucket) String() string {
	return fmt.Sprintf("%d::%s::%d", b.ExerciseID, b.Metric, b.DistanceM)
}

// Record is one podium entry. Everything except the medal is immutable
// once stored, the medal gets reassigned whenever the bucket membership
// changes.
type Record struct {
	ID         int       `json:"id"`
	ExerciseID int       `json:"exerciseId"`
	Metric     Metric    `json:"metric"`
	DistanceM  int       `json:"distanceM,omitempty"`
	ValueKg    *float64  `json:"valueKg,omitempty"`
	Reps       *int      `json:"reps,omitempty"`
	DurationS  *int      `json:"durationS,omitempty"`
	Medal      Medal     `json:"medal"`
	SessionID  int       `json:"sessionId"`
	AchievedAt time.Time `json:"achievedAt"`
}

func (r Record) Bucket() Bucket {
	return Bucket{
		ExerciseID: r.ExerciseID,
		Metric:     r.Metric,
		DistanceM:  r.DistanceM,
	}
}
