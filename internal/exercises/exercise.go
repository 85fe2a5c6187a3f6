package exercises

import "time"

// Kind tells how an exercise is ranked: strength exercises by weight and
// volume, cardio exercises by time over a distance.
type Kind string

const (
	KindStrength Kind = "strength"
	KindCardio   Kind = "cardio"
)

func (k Kind) Valid() bool {
	return k == KindStrength || k == KindCardio
}

func (k Kind) String() string {
	return string(k)
}

type Exercise struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}
