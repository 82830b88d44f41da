package transient

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/framegraph/memutils/intervals"
	"golang.org/x/exp/slices"
)

// AliasingBarrier records that To begins using heap bytes that From used earlier in the frame.
// The platform must make From's writes to those bytes unobservable before To's first use, which
// is typically done with an aliasing barrier or an equivalent memory dependency.
type AliasingBarrier struct {
	From     Resource
	FromType AttachmentType
	To       Resource
	ToType   AttachmentType

	// HeapOffsetMin and HeapOffsetMax bound the bytes shared by both resources
	HeapOffsetMin uint64
	HeapOffsetMax uint64

	// FromScope is the last scope From was used in
	FromScope ScopeIndex
	// ToScope is the first scope To is used in
	ToScope ScopeIndex
}

type aliasingOccupant struct {
	resource       Resource
	attachmentType AttachmentType
	beginScope     ScopeIndex
	endScope       ScopeIndex
}

// AliasingTracker tracks which resource last occupied each byte of a heap during a frame and
// produces an AliasingBarrier each time a resource reuses bytes from a different one.
//
// Resources must be added in the order their lifetimes complete, which is the order the heap
// deactivates them.
type AliasingTracker struct {
	occupants intervals.Map[uint64, aliasingOccupant]
	barriers  []AliasingBarrier
	onBarrier func(barrier AliasingBarrier)
	finished  bool

	pending []AliasingBarrier
}

// Init prepares the tracker. onBarrier is optional: if it is provided, it is called with every
// barrier at the moment the barrier is recorded.
func (t *AliasingTracker) Init(onBarrier func(barrier AliasingBarrier)) {
	t.onBarrier = onBarrier
	t.Reset()
}

// Reset forgets every occupant and barrier, preparing the tracker for a new frame
func (t *AliasingTracker) Reset() {
	t.occupants.Clear()
	t.barriers = nil
	t.finished = false
}

// AddResource records that resource occupied [byteMin, byteMax) of the heap from beginScope to
// endScope. A barrier is recorded for every different resource that previously occupied any of
// those bytes, covering the bounds of the bytes the two share.
//
// A previous occupant that was still alive at beginScope means two live resources were placed in
// the same bytes. That is reported as an ErrProtocolViolation and nothing is recorded.
func (t *AliasingTracker) AddResource(resource Resource, attachmentType AttachmentType, byteMin, byteMax uint64, beginScope, endScope ScopeIndex) error {
	if t.finished {
		return protocolViolationf("AliasingTracker::AddResource called after End")
	}
	if byteMin >= byteMax {
		return protocolViolationf("resource byte range [%d, %d) is empty", byteMin, byteMax)
	}
	if endScope < beginScope {
		return protocolViolationf("resource lifetime ends in scope %d before it begins in scope %d", endScope, beginScope)
	}

	t.pending = t.pending[:0]
	var violation error
	t.occupants.VisitOverlap(byteMin, byteMax, func(interval intervals.Interval[uint64, aliasingOccupant]) bool {
		occupant := interval.Value
		if occupant.resource == resource {
			return true
		}

		if occupant.endScope >= beginScope {
			violation = protocolViolationf("bytes [%d, %d) are used by a %s alive through scope %d and by a %s beginning in scope %d",
				interval.Lo, interval.Hi, occupant.attachmentType, occupant.endScope, attachmentType, beginScope)
			return false
		}

		lo := interval.Lo
		if lo < byteMin {
			lo = byteMin
		}
		hi := interval.Hi
		if hi > byteMax {
			hi = byteMax
		}

		for i := range t.pending {
			barrier := &t.pending[i]
			if barrier.From != occupant.resource {
				continue
			}

			if lo < barrier.HeapOffsetMin {
				barrier.HeapOffsetMin = lo
			}
			if hi > barrier.HeapOffsetMax {
				barrier.HeapOffsetMax = hi
			}
			if occupant.endScope > barrier.FromScope {
				barrier.FromScope = occupant.endScope
			}
			return true
		}

		t.pending = append(t.pending, AliasingBarrier{
			From:          occupant.resource,
			FromType:      occupant.attachmentType,
			To:            resource,
			ToType:        attachmentType,
			HeapOffsetMin: lo,
			HeapOffsetMax: hi,
			FromScope:     occupant.endScope,
			ToScope:       beginScope,
		})
		return true
	})

	if violation != nil {
		return violation
	}

	for _, barrier := range t.pending {
		t.barriers = append(t.barriers, barrier)
		if t.onBarrier != nil {
			t.onBarrier(barrier)
		}
	}

	t.occupants.Assign(byteMin, byteMax, aliasingOccupant{
		resource:       resource,
		attachmentType: attachmentType,
		beginScope:     beginScope,
		endScope:       endScope,
	})

	return nil
}

// End completes the frame. Barriers are sorted by the scope they must be issued before, then by
// heap offset, and no more resources can be added until Reset.
func (t *AliasingTracker) End() error {
	if t.finished {
		return protocolViolationf("AliasingTracker::End called twice")
	}

	err := t.occupants.Validate()
	if err != nil {
		return errors.Wrap(err, "aliasing tracker occupancy is corrupt")
	}

	slices.SortFunc(t.barriers, func(a, b AliasingBarrier) bool {
		if a.ToScope != b.ToScope {
			return a.ToScope < b.ToScope
		}
		return a.HeapOffsetMin < b.HeapOffsetMin
	})
	t.finished = true

	return nil
}

// Barriers returns every barrier recorded this frame. After End they are sorted by ToScope and
// then HeapOffsetMin; before End they are in the order they were recorded.
func (t *AliasingTracker) Barriers() []AliasingBarrier {
	return t.barriers
}

// Occupants returns the number of distinct occupied byte ranges
func (t *AliasingTracker) Occupants() int {
	return t.occupants.Len()
}
