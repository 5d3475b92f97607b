package planner

import "fmt"

// budget caps the tool invocations of a single run. A zero limit allows
// unlimited calls.
type budget struct {
	max   int
	count int
}

// take consumes one unit and returns an error once the limit is exhausted.
// A refused take does not count.
func (b *budget) take() error {
	if b.max > 0 && b.count >= b.max {
		return fmt.Errorf("exceeded max tool invocations: %d", b.max)
	}

	b.count++

	return nil
}
