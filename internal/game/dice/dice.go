// Package dice models the attack and defense dice used in campaigns.
package dice

import "fmt"

// Face is one side of a die. Attack faces count half swords; defense faces
// count shields, and a Double face doubles the shields of the whole roll.
type Face struct {
	Halves  int  `json:"halves,omitempty"`
	Skulls  int  `json:"skulls,omitempty"`
	Shields int  `json:"shields,omitempty"`
	Double  bool `json:"double,omitempty"`
}

var (
	HollowSword    = Face{Halves: 1}
	Sword          = Face{Halves: 2}
	TwoSwordsSkull = Face{Halves: 4, Skulls: 1}

	Blank         = Face{}
	Shield        = Face{Shields: 1}
	TwoShields    = Face{Shields: 2}
	DoubleShields = Face{Double: true}
)

// Kind names a die.
type Kind string

const (
	Attack  Kind = "attack"
	Defense Kind = "defense"
)

// Die is a named set of faces, each equally likely.
type Die struct {
	Kind  Kind
	Faces []Face
}

var (
	AttackDie  = Die{Kind: Attack, Faces: []Face{HollowSword, HollowSword, HollowSword, Sword, Sword, TwoSwordsSkull}}
	DefenseDie = Die{Kind: Defense, Faces: []Face{Blank, Blank, Shield, Shield, TwoShields, DoubleShields}}
)

// ForKind returns the die of the given kind.
func ForKind(kind Kind) (Die, error) {
	switch kind {
	case Attack:
		return AttackDie, nil
	case Defense:
		return DefenseDie, nil
	}
	return Die{}, fmt.Errorf("unknown die %q", kind)
}

// Roll is the outcome of rolling a pool of one kind of die.
type Roll struct {
	Kind  Kind   `json:"kind"`
	Faces []Face `json:"faces"`
}

// Value is the total the roll contributes. Attack rolls sum their swords
// and round down; defense rolls sum shields and double once per Double face.
func (r Roll) Value() int {
	switch r.Kind {
	case Attack:
		halves := 0
		for _, f := range r.Faces {
			halves += f.Halves
		}
		return halves / 2
	case Defense:
		shields, doubles := 0, 0
		for _, f := range r.Faces {
			shields += f.Shields
			if f.Double {
				doubles++
			}
		}
		return shields << doubles
	}
	return 0
}

// Skulls counts skull symbols rolled.
func (r Roll) Skulls() int {
	n := 0
	for _, f := range r.Faces {
		n += f.Skulls
	}
	return n
}

// Len is the number of dice rolled.
func (r Roll) Len() int {
	return len(r.Faces)
}

// Add appends more faces to the roll.
func (r *Roll) Add(faces ...Face) {
	r.Faces = append(r.Faces, faces...)
}

func (r Roll) String() string {
	return fmt.Sprintf("%s x%d = %d", r.Kind, len(r.Faces), r.Value())
}
