package ledger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Cost is what a power or action takes from its activator. Placed tokens
// go onto the source card; burnt tokens go back to the bank.
type Cost struct {
	Placed Resources `json:"placed"`
	Burnt  Resources `json:"burnt"`
}

var costSymbol = regexp.MustCompile(`\{([^}]+)\}`)

// ParseCost parses a cost written with token symbols:
//
//	{F}   one favor placed on the source
//	{S}   one secret placed on the source
//	{BF}  one favor burnt
//	{BS}  one secret burnt
//
// A count may prefix the letter, so "{2F}{BS}" is two favor placed and one
// secret burnt.
func ParseCost(costStr string) (Cost, error) {
	var cost Cost
	if strings.TrimSpace(costStr) == "" {
		return cost, nil
	}

	matches := costSymbol.FindAllStringSubmatch(costStr, -1)
	if len(matches) == 0 {
		return cost, fmt.Errorf("no cost symbols in %q", costStr)
	}
	for _, match := range matches {
		symbol := strings.ToUpper(strings.TrimSpace(match[1]))
		burnt := false
		if strings.HasPrefix(symbol, "B") && len(symbol) > 1 {
			burnt = true
			symbol = symbol[1:]
		}

		count := 1
		digits := strings.TrimRight(symbol, "FS")
		if digits != "" {
			n, err := strconv.Atoi(digits)
			if err != nil || n <= 0 {
				return Cost{}, fmt.Errorf("invalid cost symbol: {%s}", match[1])
			}
			count = n
			symbol = symbol[len(digits):]
		}

		var kind Resource
		switch symbol {
		case "F":
			kind = Favor
		case "S":
			kind = Secret
		default:
			return Cost{}, fmt.Errorf("unknown cost symbol: {%s}", match[1])
		}

		if burnt {
			cost.Burnt.Add(kind, count)
		} else {
			cost.Placed.Add(kind, count)
		}
	}
	return cost, nil
}

// MustParseCost is ParseCost for static power tables.
func MustParseCost(costStr string) Cost {
	cost, err := ParseCost(costStr)
	if err != nil {
		panic(err)
	}
	return cost
}

// Total is everything the activator must hold to pay.
func (c Cost) Total() Resources {
	return c.Placed.Plus(c.Burnt)
}

// Add returns the combined cost.
func (c Cost) Add(other Cost) Cost {
	return Cost{Placed: c.Placed.Plus(other.Placed), Burnt: c.Burnt.Plus(other.Burnt)}
}

func (c Cost) IsFree() bool {
	return c.Placed.IsZero() && c.Burnt.IsZero()
}

// String renders the cost back into symbol form.
func (c Cost) String() string {
	if c.IsFree() {
		return ""
	}
	var b strings.Builder
	write := func(prefix string, r Resources) {
		if r.Favor > 0 {
			fmt.Fprintf(&b, "{%s%s}", prefix, countPrefix(r.Favor, "F"))
		}
		if r.Secret > 0 {
			fmt.Fprintf(&b, "{%s%s}", prefix, countPrefix(r.Secret, "S"))
		}
	}
	write("", c.Placed)
	write("B", c.Burnt)
	return b.String()
}

func countPrefix(n int, letter string) string {
	if n == 1 {
		return letter
	}
	return strconv.Itoa(n) + letter
}

// CanPay reports whether available covers the whole cost.
func (c Cost) CanPay(available Resources) bool {
	return available.Covers(c.Total())
}
