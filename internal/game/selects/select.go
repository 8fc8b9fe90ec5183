// Package selects implements the parameter slots of an action: a named set
// of labelled candidates and how many of them must be chosen.
package selects

import (
	"fmt"
	"strconv"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
)

// Option is one candidate of a select.
type Option struct {
	Label string
	Value any
}

// Select is an immutable slot: ordered, uniquely labelled candidates and an
// inclusive arity [Min, Max].
type Select struct {
	Name  string
	Label string
	Min   int
	Max   int

	options []Option
	index   map[string]int
}

// New builds a select. Options sharing a label collapse into one, keeping
// the position of the first and the value of the last. Max is clamped to
// the number of candidates; a Min that cannot be met is a resolution error.
func New(name, label string, options []Option, min, max int) (*Select, error) {
	if min < 0 || max < 0 {
		return nil, oatherr.Internalf("select %s: negative arity [%d, %d]", name, min, max)
	}
	s := &Select{Name: name, Label: label, index: make(map[string]int, len(options))}
	for _, opt := range options {
		if idx, ok := s.index[opt.Label]; ok {
			s.options[idx].Value = opt.Value
			continue
		}
		s.index[opt.Label] = len(s.options)
		s.options = append(s.options, opt)
	}
	if max > len(s.options) {
		max = len(s.options)
	}
	if min > len(s.options) {
		return nil, oatherr.InvalidResolutionf("%s: need at least %d choices, only %d available", label, min, len(s.options))
	}
	if min > max {
		return nil, oatherr.Internalf("select %s: min %d above max %d", name, min, max)
	}
	s.Min, s.Max = min, max
	return s, nil
}

// Must is New for selects whose arity is known to fit.
func Must(s *Select, err error) *Select {
	if err != nil {
		panic(err)
	}
	return s
}

// Bool builds a yes/no select with exactly one answer.
func Bool(name, label string) *Select {
	return Must(New(name, label, []Option{{Label: "Yes", Value: true}, {Label: "No", Value: false}}, 1, 1))
}

// Range builds a select over the integers from..to, choosing exactly one.
func Range(name, label string, from, to int) (*Select, error) {
	var opts []Option
	for n := from; n <= to; n++ {
		opts = append(opts, Option{Label: strconv.Itoa(n), Value: n})
	}
	return New(name, label, opts, 1, 1)
}

// Options returns the candidates in order.
func (s *Select) Options() []Option {
	out := make([]Option, len(s.options))
	copy(out, s.options)
	return out
}

// Labels returns the candidate labels in order.
func (s *Select) Labels() []string {
	out := make([]string, len(s.options))
	for i, opt := range s.options {
		out[i] = opt.Label
	}
	return out
}

// Len returns the number of candidates.
func (s *Select) Len() int {
	return len(s.options)
}

// Autocomplete returns the values chosen without asking anyone, and whether
// the slot resolves on its own.
func (s *Select) Autocomplete() ([]any, bool) {
	switch {
	case s.Max == 0, len(s.options) == 0 && s.Min == 0:
		return []any{}, true
	case s.Min == s.Max && s.Max == len(s.options):
		out := make([]any, len(s.options))
		for i, opt := range s.options {
			out[i] = opt.Value
		}
		return out, true
	}
	return nil, false
}

// Validate checks a submission against the slot and returns the chosen
// values in submission order.
func (s *Select) Validate(labels []string) ([]any, error) {
	if len(labels) < s.Min || len(labels) > s.Max {
		if s.Min == s.Max {
			return nil, oatherr.Validationf("%s: choose exactly %d, got %d", s.Label, s.Min, len(labels)).WithMeta("select", s.Name)
		}
		return nil, oatherr.Validationf("%s: choose between %d and %d, got %d", s.Label, s.Min, s.Max, len(labels)).WithMeta("select", s.Name)
	}
	seen := make(map[string]bool, len(labels))
	out := make([]any, 0, len(labels))
	for _, label := range labels {
		idx, ok := s.index[label]
		if !ok {
			return nil, oatherr.Validationf("%s: %q is not a choice", s.Label, label).WithMeta("select", s.Name)
		}
		if seen[label] {
			return nil, oatherr.Validationf("%s: %q chosen twice", s.Label, label).WithMeta("select", s.Name)
		}
		seen[label] = true
		out = append(out, s.options[idx].Value)
	}
	return out, nil
}

func (s *Select) String() string {
	return fmt.Sprintf("%s [%d, %d] of %d", s.Name, s.Min, s.Max, len(s.options))
}
