package mockdice

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/thraizz/oath-server-go/internal/game/dice"
)

// ScriptedRoller implements dice.Roller with predetermined faces, queued
// separately for each kind of die.
type ScriptedRoller struct {
	mu     sync.Mutex
	queued map[dice.Kind][]dice.Face
	calls  []Call
}

// Call records one Roll request.
type Call struct {
	Kind  dice.Kind
	Count int
}

// NewScriptedRoller creates an empty scripted roller.
func NewScriptedRoller() *ScriptedRoller {
	return &ScriptedRoller{queued: make(map[dice.Kind][]dice.Face)}
}

// Queue appends faces to be returned for kind.
func (s *ScriptedRoller) Queue(kind dice.Kind, faces ...dice.Face) *ScriptedRoller {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[kind] = append(s.queued[kind], faces...)
	return s
}

// Calls returns the Roll requests seen so far.
func (s *ScriptedRoller) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Remaining returns how many faces are still queued for kind.
func (s *ScriptedRoller) Remaining(kind dice.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued[kind])
}

// Roll implements dice.Roller.
func (s *ScriptedRoller) Roll(die dice.Die, count int) (dice.Roll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Kind: die.Kind, Count: count})

	queue := s.queued[die.Kind]
	if count > len(queue) {
		return dice.Roll{}, fmt.Errorf("no more predetermined %s faces (want %d, have %d)", die.Kind, count, len(queue))
	}
	roll := dice.Roll{Kind: die.Kind, Faces: append([]dice.Face(nil), queue[:count]...)}
	s.queued[die.Kind] = queue[count:]
	return roll, nil
}

// MarshalBinary captures the queued faces so a rolled back request gets the
// same faces again.
func (s *ScriptedRoller) MarshalBinary() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(s.queued)
}

// UnmarshalBinary restores the queue captured by MarshalBinary.
func (s *ScriptedRoller) UnmarshalBinary(data []byte) error {
	queued := make(map[dice.Kind][]dice.Face)
	if err := json.Unmarshal(data, &queued); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = queued
	return nil
}
