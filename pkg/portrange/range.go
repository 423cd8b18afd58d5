// pkg/portrange/range.go
// Inclusive TCP port ranges and a lazy iterator over them

package portrange

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	MinPort = 1
	MaxPort = 65535
)

// Range is an inclusive [First, Last] span of TCP ports
type Range struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// Default is the range scanned when nothing else is configured
var Default = Range{First: 1, Last: 9999}

// New builds a validated range
func New(first, last int) (Range, error) {
	r := Range{First: first, Last: last}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Parse accepts "N" or "N-M"
func Parse(spec string) (Range, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Range{}, fmt.Errorf("empty port range")
	}

	lo, hi, isRange := strings.Cut(spec, "-")
	first, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return Range{}, fmt.Errorf("invalid port range %q: %w", spec, err)
	}
	last := first
	if isRange {
		last, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return Range{}, fmt.Errorf("invalid port range %q: %w", spec, err)
		}
	}

	return New(first, last)
}

// Validate enforces 1 <= First <= Last <= 65535
func (r Range) Validate() error {
	if r.First < MinPort || r.First > MaxPort {
		return fmt.Errorf("invalid port %d: must be between %d and %d", r.First, MinPort, MaxPort)
	}
	if r.Last < MinPort || r.Last > MaxPort {
		return fmt.Errorf("invalid port %d: must be between %d and %d", r.Last, MinPort, MaxPort)
	}
	if r.First > r.Last {
		return fmt.Errorf("invalid port range %d-%d: lower bound exceeds upper bound", r.First, r.Last)
	}
	return nil
}

// Count returns the number of ports in the range
func (r Range) Count() int {
	if r.Last < r.First {
		return 0
	}
	return r.Last - r.First + 1
}

// Contains reports whether port lies inside the range
func (r Range) Contains(port int) bool {
	return port >= r.First && port <= r.Last
}

func (r Range) String() string {
	if r.First == r.Last {
		return strconv.Itoa(r.First)
	}
	return fmt.Sprintf("%d-%d", r.First, r.Last)
}

// Iterator walks a range in ascending order without materializing it
type Iterator struct {
	r       Range
	current int
	started bool
}

// Iter returns a fresh iterator positioned before First
func (r Range) Iter() *Iterator {
	return &Iterator{r: r}
}

// Next returns the next port and true, or 0 and false once the range is exhausted
func (it *Iterator) Next() (int, bool) {
	if !it.started {
		if it.r.Count() == 0 {
			return 0, false
		}
		it.started = true
		it.current = it.r.First
		return it.current, true
	}

	if it.current >= it.r.Last {
		return 0, false
	}
	it.current++
	return it.current, true
}
