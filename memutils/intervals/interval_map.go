package intervals

import (
	"github.com/google/btree"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

const breakpointDegree = 16

// Interval is a half-open range [Lo, Hi) of keys that all map to Value
type Interval[K constraints.Ordered, V comparable] struct {
	Lo    K
	Hi    K
	Value V
}

// Contains returns true if key falls within [Lo, Hi)
func (i Interval[K, V]) Contains(key K) bool {
	return key >= i.Lo && key < i.Hi
}

// breakpoint marks the start of an interval. The interval extends to the next breakpoint in
// key order. A breakpoint without a value starts a gap; the final breakpoint in the map is
// always a gap, closing the last interval.
type breakpoint[K constraints.Ordered, V comparable] struct {
	key      K
	value    V
	hasValue bool
}

// Map is a set of disjoint half-open intervals, each mapping a range of keys to a value.
// Assigning over a range overwrites and splits whatever was there, and adjacent intervals
// holding equal values are always merged into one.
//
// The map is stored as an ordered tree of breakpoints, so every mutation costs O(log n) and
// enumerating k intervals costs O(k).
type Map[K constraints.Ordered, V comparable] struct {
	breakpoints *btree.BTreeG[breakpoint[K, V]]

	// scratch is reused while collecting breakpoints to remove
	scratch []K
}

// NewMap creates an empty Map
func NewMap[K constraints.Ordered, V comparable]() *Map[K, V] {
	m := &Map[K, V]{}
	m.init()
	return m
}

func (m *Map[K, V]) init() {
	if m.breakpoints == nil {
		m.breakpoints = btree.NewG[breakpoint[K, V]](breakpointDegree, func(a, b breakpoint[K, V]) bool {
			return a.key < b.key
		})
	}
}

// Len returns the number of intervals holding a value
func (m *Map[K, V]) Len() int {
	m.init()

	count := 0
	m.breakpoints.Ascend(func(bp breakpoint[K, V]) bool {
		if bp.hasValue {
			count++
		}
		return true
	})

	return count
}

// IsEmpty returns true if no key is assigned a value
func (m *Map[K, V]) IsEmpty() bool {
	m.init()
	return m.breakpoints.Len() == 0
}

// Clear removes every interval
func (m *Map[K, V]) Clear() {
	m.init()
	m.breakpoints.Clear(true)
}

func (m *Map[K, V]) floor(key K) (breakpoint[K, V], bool) {
	var result breakpoint[K, V]
	var found bool
	m.breakpoints.DescendLessOrEqual(breakpoint[K, V]{key: key}, func(bp breakpoint[K, V]) bool {
		result = bp
		found = true
		return false
	})

	return result, found
}

func (m *Map[K, V]) lower(key K) (breakpoint[K, V], bool) {
	var result breakpoint[K, V]
	var found bool
	m.breakpoints.DescendLessOrEqual(breakpoint[K, V]{key: key}, func(bp breakpoint[K, V]) bool {
		if bp.key == key {
			return true
		}
		result = bp
		found = true
		return false
	})

	return result, found
}

func (m *Map[K, V]) higher(key K) (breakpoint[K, V], bool) {
	var result breakpoint[K, V]
	var found bool
	m.breakpoints.AscendGreaterOrEqual(breakpoint[K, V]{key: key}, func(bp breakpoint[K, V]) bool {
		if bp.key == key {
			return true
		}
		result = bp
		found = true
		return false
	})

	return result, found
}

func (m *Map[K, V]) get(key K) (breakpoint[K, V], bool) {
	return m.breakpoints.Get(breakpoint[K, V]{key: key})
}

func (m *Map[K, V]) put(key K, value V, hasValue bool) {
	m.breakpoints.ReplaceOrInsert(breakpoint[K, V]{key: key, value: value, hasValue: hasValue})
}

func (m *Map[K, V]) remove(key K) {
	m.breakpoints.Delete(breakpoint[K, V]{key: key})
}

// intervalAt builds the interval that starts at bp, which must hold a value
func (m *Map[K, V]) intervalAt(bp breakpoint[K, V]) Interval[K, V] {
	next, ok := m.higher(bp.key)
	if !ok {
		panic("interval map has a valued breakpoint with no closing breakpoint")
	}

	return Interval[K, V]{Lo: bp.key, Hi: next.key, Value: bp.value}
}

// Assign maps every key in [lo, hi) to value, overwriting and splitting any intervals that
// overlap the range. The result is merged with the intervals immediately before and after it
// if they hold an equal value. The (possibly merged) interval containing lo is returned.
//
// If lo >= hi nothing is assigned and false is returned.
func (m *Map[K, V]) Assign(lo, hi K, value V) (Interval[K, V], bool) {
	m.init()

	if lo >= hi {
		return Interval[K, V]{}, false
	}

	// Whatever was in effect at hi must continue to be in effect after the range
	var tail breakpoint[K, V]
	tailBreakpoint, hasTail := m.floor(hi)
	if hasTail {
		tail = tailBreakpoint
	}

	// Drop every breakpoint inside [lo, hi]
	remove := m.scratch[:0]
	m.breakpoints.AscendGreaterOrEqual(breakpoint[K, V]{key: lo}, func(bp breakpoint[K, V]) bool {
		if bp.key > hi {
			return false
		}
		remove = append(remove, bp.key)
		return true
	})
	for _, key := range remove {
		m.remove(key)
	}
	m.scratch = remove[:0]

	start := lo
	prev, hasPrev := m.lower(lo)
	if hasPrev && prev.hasValue && prev.value == value {
		start = prev.key
	} else {
		m.put(lo, value, true)
	}

	if !tail.hasValue || tail.value != value {
		m.put(hi, tail.value, tail.hasValue)
	}

	merged, _ := m.get(start)
	return m.intervalAt(merged), true
}

// At returns the interval containing key. If key falls in a gap, false is returned.
func (m *Map[K, V]) At(key K) (Interval[K, V], bool) {
	m.init()

	bp, ok := m.floor(key)
	if !ok || !bp.hasValue {
		return Interval[K, V]{}, false
	}

	return m.intervalAt(bp), true
}

// Erase removes the value of the interval starting at interval.Lo, leaving its keys unassigned.
// The resulting gap merges with any gaps next to it. False is returned if no interval starts at
// interval.Lo.
func (m *Map[K, V]) Erase(interval Interval[K, V]) bool {
	m.init()

	bp, ok := m.get(interval.Lo)
	if !ok || !bp.hasValue {
		return false
	}

	next, hasNext := m.higher(bp.key)
	prev, hasPrev := m.lower(bp.key)

	if !hasPrev || !prev.hasValue {
		// The gap before this interval (or the start of the map) now extends over it
		m.remove(bp.key)
	} else {
		m.put(bp.key, bp.value, false)
	}

	if hasNext && !next.hasValue {
		// The gap after this interval joins the one we just made
		m.remove(next.key)
	}

	return true
}

// VisitOverlap calls visit for every interval intersecting [lo, hi), in key order, until
// visit returns false. Nothing is visited if lo >= hi.
func (m *Map[K, V]) VisitOverlap(lo, hi K, visit func(interval Interval[K, V]) bool) {
	m.init()

	if lo >= hi {
		return
	}

	pivot := lo
	if start, ok := m.floor(lo); ok {
		pivot = start.key
	}

	var pending breakpoint[K, V]
	hasPending := false
	m.breakpoints.AscendGreaterOrEqual(breakpoint[K, V]{key: pivot}, func(bp breakpoint[K, V]) bool {
		if hasPending && pending.hasValue && bp.key > lo {
			if !visit(Interval[K, V]{Lo: pending.key, Hi: bp.key, Value: pending.value}) {
				return false
			}
		}

		if bp.key >= hi {
			return false
		}

		pending = bp
		hasPending = true
		return true
	})
}

// Overlap returns the minimal contiguous run of intervals intersecting [lo, hi). The slice
// is empty if lo >= hi or nothing intersects.
func (m *Map[K, V]) Overlap(lo, hi K) []Interval[K, V] {
	var result []Interval[K, V]
	m.VisitOverlap(lo, hi, func(interval Interval[K, V]) bool {
		result = append(result, interval)
		return true
	})

	return result
}

// Intervals returns every interval in key order
func (m *Map[K, V]) Intervals() []Interval[K, V] {
	m.init()

	var result []Interval[K, V]
	var pending breakpoint[K, V]
	hasPending := false
	m.breakpoints.Ascend(func(bp breakpoint[K, V]) bool {
		if hasPending && pending.hasValue {
			result = append(result, Interval[K, V]{Lo: pending.key, Hi: bp.key, Value: pending.value})
		}
		pending = bp
		hasPending = true
		return true
	})

	return result
}

// Validate verifies the structural invariants of the map: the first breakpoint starts an
// interval, the last one closes it, no two consecutive breakpoints are both gaps, and no two
// adjacent intervals hold equal values.
func (m *Map[K, V]) Validate() error {
	m.init()

	if m.breakpoints.Len() == 0 {
		return nil
	}

	first, _ := m.breakpoints.Min()
	if !first.hasValue {
		return errors.Errorf("the first breakpoint in the map (%v) does not hold a value", first.key)
	}

	last, _ := m.breakpoints.Max()
	if last.hasValue {
		return errors.Errorf("the last breakpoint in the map (%v) holds a value but has no end", last.key)
	}

	var err error
	var prev breakpoint[K, V]
	hasPrev := false
	m.breakpoints.Ascend(func(bp breakpoint[K, V]) bool {
		if hasPrev {
			if !prev.hasValue && !bp.hasValue {
				err = errors.Errorf("breakpoints at %v and %v are both gaps", prev.key, bp.key)
				return false
			}
			if prev.hasValue && bp.hasValue && prev.value == bp.value {
				err = errors.Errorf("intervals starting at %v and %v hold equal values and were not merged", prev.key, bp.key)
				return false
			}
		}

		prev = bp
		hasPrev = true
		return true
	})

	return err
}
