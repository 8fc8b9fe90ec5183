package dice

import (
	"fmt"
	"math/rand/v2"
)

//go:generate mockgen -destination=mocks/mock_roller.go -package=mocks -source=roller.go

// Roller rolls pools of dice. Implementations are injected so tests can
// script outcomes.
type Roller interface {
	Roll(die Die, count int) (Roll, error)
}

// SeededRoller is a deterministic Roller. Its state can be saved and
// restored, so a game replays the same dice after a rollback or a restart.
type SeededRoller struct {
	src *rand.PCG
	rng *rand.Rand
}

// NewSeededRoller creates a roller from seed.
func NewSeededRoller(seed uint64) *SeededRoller {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &SeededRoller{src: src, rng: rand.New(src)}
}

// Roll implements Roller.
func (r *SeededRoller) Roll(die Die, count int) (Roll, error) {
	if count < 0 {
		return Roll{}, fmt.Errorf("cannot roll %d dice", count)
	}
	if len(die.Faces) == 0 {
		return Roll{}, fmt.Errorf("die %q has no faces", die.Kind)
	}
	roll := Roll{Kind: die.Kind, Faces: make([]Face, 0, count)}
	for i := 0; i < count; i++ {
		roll.Faces = append(roll.Faces, die.Faces[r.rng.IntN(len(die.Faces))])
	}
	return roll, nil
}

// Shuffle permutes n elements with swap, using the roller's stream.
func (r *SeededRoller) Shuffle(n int, swap func(i, j int)) {
	r.rng.Shuffle(n, swap)
}

// MarshalBinary captures the generator state.
func (r *SeededRoller) MarshalBinary() ([]byte, error) {
	return r.src.MarshalBinary()
}

// UnmarshalBinary restores state captured by MarshalBinary.
func (r *SeededRoller) UnmarshalBinary(data []byte) error {
	return r.src.UnmarshalBinary(data)
}
