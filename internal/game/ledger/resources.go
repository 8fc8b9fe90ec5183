// Package ledger holds the numeric containers owned by game entities:
// favor and secrets, warbands by color, and the costs paid from them.
package ledger

import (
	"fmt"
	"strings"
)

// Resource identifies one kind of token.
type Resource string

const (
	Favor  Resource = "favor"
	Secret Resource = "secret"
)

// Resources is a bag of favor and secrets.
type Resources struct {
	Favor  int `json:"favor"`
	Secret int `json:"secret"`
}

// Of builds a bag holding n tokens of one kind.
func Of(kind Resource, n int) Resources {
	var r Resources
	r.Add(kind, n)
	return r
}

// Get returns the amount of kind held.
func (r Resources) Get(kind Resource) int {
	switch kind {
	case Favor:
		return r.Favor
	case Secret:
		return r.Secret
	}
	return 0
}

// Add puts amount tokens of kind into the bag. Non-positive amounts are ignored.
func (r *Resources) Add(kind Resource, amount int) {
	if amount <= 0 {
		return
	}
	switch kind {
	case Favor:
		r.Favor += amount
	case Secret:
		r.Secret += amount
	}
}

// Spend removes amount tokens of kind. It returns false and leaves the bag
// untouched when not enough are held.
func (r *Resources) Spend(kind Resource, amount int) bool {
	if amount <= 0 {
		return true
	}
	if r.Get(kind) < amount {
		return false
	}
	switch kind {
	case Favor:
		r.Favor -= amount
	case Secret:
		r.Secret -= amount
	}
	return true
}

// Take removes up to amount tokens of kind and returns how many were removed.
func (r *Resources) Take(kind Resource, amount int) int {
	if amount <= 0 {
		return 0
	}
	held := r.Get(kind)
	if amount > held {
		amount = held
	}
	r.Spend(kind, amount)
	return amount
}

// Plus returns the sum of both bags.
func (r Resources) Plus(other Resources) Resources {
	return Resources{Favor: r.Favor + other.Favor, Secret: r.Secret + other.Secret}
}

// Covers reports whether r holds at least other of every kind.
func (r Resources) Covers(other Resources) bool {
	return r.Favor >= other.Favor && r.Secret >= other.Secret
}

func (r Resources) IsZero() bool {
	return r.Favor == 0 && r.Secret == 0
}

func (r Resources) Total() int {
	return r.Favor + r.Secret
}

func (r Resources) String() string {
	if r.IsZero() {
		return "nothing"
	}
	parts := make([]string, 0, 2)
	if r.Favor > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", r.Favor, Favor))
	}
	if r.Secret > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", r.Secret, Secret))
	}
	return strings.Join(parts, ", ")
}

// Kinds lists every resource kind in display order.
func Kinds() []Resource {
	return []Resource{Favor, Secret}
}
