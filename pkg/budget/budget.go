// Package budget tracks the finite unit budget of a reasoning run: permitted
// generation calls or exploration steps. Depth levels compete for the
// non-reserved pool; a priority reserve is held back for late, high-value
// work. All mutation is mutex-protected so concurrent exploration branches
// can share one budget.
package budget

import (
	"sync"

	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
)

const (
	// DefaultPriorityReserveFraction is held back for priority allocations.
	DefaultPriorityReserveFraction = 0.2

	// DefaultLevelFraction of the remaining pool is granted per depth level.
	DefaultLevelFraction = 0.4
)

// Budget tracks a finite unit budget with a priority reserve and per-level
// allocations. Invariant: remaining + used + reserved + outstanding level
// allocations never exceeds total.
type Budget struct {
	mu               sync.Mutex
	total            int
	remaining        int
	reservedPriority int
	used             int
	levelAllocations map[int]int // outstanding allocation per depth level
}

// Snapshot is a point-in-time view of the budget counters.
type Snapshot struct {
	Total            int
	Remaining        int
	ReservedPriority int
	Used             int
	Allocated        int
}

// New creates a budget of total units. priorityReserveFraction of the total
// is set aside for priority allocations; values outside (0, 1) fall back to
// the default 20%.
func New(total int, priorityReserveFraction float64) *Budget {
	if total < 0 {
		total = 0
	}
	if priorityReserveFraction <= 0 || priorityReserveFraction >= 1 {
		priorityReserveFraction = DefaultPriorityReserveFraction
	}

	reserved := int(float64(total) * priorityReserveFraction)
	return &Budget{
		total:            total,
		remaining:        total - reserved,
		reservedPriority: reserved,
		levelAllocations: make(map[int]int),
	}
}

// HasBudget reports whether any non-reserved units remain.
func (b *Budget) HasBudget() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining > 0
}

// Exhausted reports whether both the pool and the priority reserve are empty.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining <= 0 && b.reservedPriority <= 0
}

// Consume draws amount units from the remaining pool.
func (b *Budget) Consume(amount int) error {
	if amount < 0 {
		return errors.New(errors.InvalidInput, "consume amount must be non-negative")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if amount > b.remaining {
		return errors.WithFields(
			errors.New(errors.InsufficientBudget, "insufficient budget"),
			errors.Fields{"requested": amount, "remaining": b.remaining},
		)
	}
	b.remaining -= amount
	b.used += amount
	return nil
}

// AllocateForLevel grants a fraction of the remaining pool to a depth level.
// Fractions outside (0, 1] fall back to the default 0.4. The granted units
// leave the shared pool until consumed or reclaimed via ReallocateUnused.
func (b *Budget) AllocateForLevel(level int, fraction float64) int {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultLevelFraction
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	alloc := int(float64(b.remaining) * fraction)
	b.remaining -= alloc
	b.levelAllocations[level] += alloc
	return alloc
}

// ConsumeFromLevel draws amount units from a level's outstanding allocation.
func (b *Budget) ConsumeFromLevel(level, amount int) error {
	if amount < 0 {
		return errors.New(errors.InvalidInput, "consume amount must be non-negative")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if amount > b.levelAllocations[level] {
		return errors.WithFields(
			errors.New(errors.InsufficientBudget, "insufficient level allocation"),
			errors.Fields{"level": level, "requested": amount, "allocated": b.levelAllocations[level]},
		)
	}
	b.levelAllocations[level] -= amount
	b.used += amount
	return nil
}

// AllocatePriority draws amount units from the priority reserve only.
func (b *Budget) AllocatePriority(amount int) error {
	if amount < 0 {
		return errors.New(errors.InvalidInput, "allocation amount must be non-negative")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if amount > b.reservedPriority {
		return errors.WithFields(
			errors.New(errors.InsufficientPriorityBudget, "insufficient priority budget"),
			errors.Fields{"requested": amount, "reserved": b.reservedPriority},
		)
	}
	b.reservedPriority -= amount
	b.used += amount
	return nil
}

// ReallocateUnused reclaims the outstanding allocation of completed levels
// back into the shared pool.
func (b *Budget) ReallocateUnused(completedLevels []int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, level := range completedLevels {
		b.remaining += b.levelAllocations[level]
		delete(b.levelAllocations, level)
	}
}

// AdjustBySuccessRate widens the remaining pool proportionally when the
// success rate is high and narrows it when low. The pool never exceeds what
// the total can still cover.
func (b *Budget) AdjustBySuccessRate(successRate float64) {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// rate 0.5 leaves the pool unchanged; 1.0 widens by 20%, 0.0 narrows by 20%
	factor := 0.8 + 0.4*successRate
	adjusted := int(float64(b.remaining) * factor)

	ceiling := b.total - b.used - b.reservedPriority - b.outstandingLocked()
	if adjusted > ceiling {
		adjusted = ceiling
	}
	if adjusted < 0 {
		adjusted = 0
	}
	b.remaining = adjusted
}

// HandleExhaustion resolves a run whose budget ran out. If any candidate was
// produced it is surfaced as a partial result; only a run that could afford
// zero attempts is an error.
func (b *Budget) HandleExhaustion(best interface{}) (ExhaustionResult, error) {
	if best == nil {
		return ExhaustionResult{}, errors.New(errors.InsufficientBudget,
			"budget exhausted before any candidate was produced")
	}
	return ExhaustionResult{Best: best, Partial: true}, nil
}

// ExhaustionResult carries the best candidate seen when a budget runs out.
type ExhaustionResult struct {
	Best    interface{}
	Partial bool
}

// Snapshot returns the current counters.
func (b *Budget) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Total:            b.total,
		Remaining:        b.remaining,
		ReservedPriority: b.reservedPriority,
		Used:             b.used,
		Allocated:        b.outstandingLocked(),
	}
}

// outstandingLocked sums live level allocations. Caller must hold the mutex.
func (b *Budget) outstandingLocked() int {
	var sum int
	for _, alloc := range b.levelAllocations {
		sum += alloc
	}
	return sum
}
