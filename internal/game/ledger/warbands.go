package ledger

import "sort"

// Warbands counts warbands on one entity by color. A color is the key of
// the player (or bandit faction) owning the pieces.
type Warbands map[string]int

// Get returns the number of warbands of color.
func (w Warbands) Get(color string) int {
	if w == nil {
		return 0
	}
	return w[color]
}

// Add places amount warbands of color. Non-positive amounts are ignored.
func (w Warbands) Add(color string, amount int) {
	if amount <= 0 {
		return
	}
	w[color] += amount
}

// Remove takes up to amount warbands of color and returns how many were
// actually removed. The count never drops below zero.
func (w Warbands) Remove(color string, amount int) int {
	if amount <= 0 || w == nil {
		return 0
	}
	held := w[color]
	if amount > held {
		amount = held
	}
	if held-amount == 0 {
		delete(w, color)
	} else {
		w[color] = held - amount
	}
	return amount
}

// Total returns the number of warbands of every color.
func (w Warbands) Total() int {
	total := 0
	for _, n := range w {
		total += n
	}
	return total
}

// Colors returns the colors present, sorted.
func (w Warbands) Colors() []string {
	colors := make([]string, 0, len(w))
	for color, n := range w {
		if n > 0 {
			colors = append(colors, color)
		}
	}
	sort.Strings(colors)
	return colors
}

// Clone returns an independent copy.
func (w Warbands) Clone() Warbands {
	cpy := make(Warbands, len(w))
	for color, n := range w {
		cpy[color] = n
	}
	return cpy
}
