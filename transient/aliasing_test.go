package transient_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/framegraph/transient"
)

func TestAliasingTrackerNoOverlap(t *testing.T) {
	var tracker transient.AliasingTracker
	tracker.Init(nil)

	a := &fakeResource{id: "a"}
	b := &fakeResource{id: "b"}

	require.NoError(t, tracker.AddResource(a, transient.AttachmentTypeBuffer, 0, 256, 0, 1))
	require.NoError(t, tracker.AddResource(b, transient.AttachmentTypeBuffer, 256, 512, 0, 1))
	require.NoError(t, tracker.End())

	require.Empty(t, tracker.Barriers())
	require.Equal(t, 2, tracker.Occupants())
}

func TestAliasingTrackerReuseEmitsBarrier(t *testing.T) {
	var tracker transient.AliasingTracker
	tracker.Init(nil)

	r0 := &fakeResource{id: "r0"}
	r2 := &fakeResource{id: "r2"}

	require.NoError(t, tracker.AddResource(r0, transient.AttachmentTypeBuffer, 0, 256, 0, 2))
	require.NoError(t, tracker.AddResource(r2, transient.AttachmentTypeImage, 0, 128, 3, 3))
	require.NoError(t, tracker.End())

	require.Equal(t, []transient.AliasingBarrier{
		{
			From:          r0,
			FromType:      transient.AttachmentTypeBuffer,
			To:            r2,
			ToType:        transient.AttachmentTypeImage,
			HeapOffsetMin: 0,
			HeapOffsetMax: 128,
			FromScope:     2,
			ToScope:       3,
		},
	}, tracker.Barriers())
}

func TestAliasingTrackerOneBarrierPerPredecessor(t *testing.T) {
	var tracker transient.AliasingTracker
	tracker.Init(nil)

	a := &fakeResource{id: "a"}
	b := &fakeResource{id: "b"}
	c := &fakeResource{id: "c"}

	// a occupies [0, 100) and [200, 300) after b overwrites its middle
	require.NoError(t, tracker.AddResource(a, transient.AttachmentTypeBuffer, 0, 300, 0, 1))
	require.NoError(t, tracker.AddResource(b, transient.AttachmentTypeBuffer, 100, 200, 2, 3))
	require.NoError(t, tracker.AddResource(c, transient.AttachmentTypeBuffer, 50, 250, 4, 5))
	require.NoError(t, tracker.End())

	barriers := tracker.Barriers()
	require.Len(t, barriers, 3)

	// b over a, then c over a (one barrier covering both of a's pieces) and c over b
	require.Equal(t, transient.AliasingBarrier{
		From: a, To: b, HeapOffsetMin: 100, HeapOffsetMax: 200, FromScope: 1, ToScope: 2,
	}, barriers[0])
	require.Equal(t, transient.AliasingBarrier{
		From: a, To: c, HeapOffsetMin: 50, HeapOffsetMax: 250, FromScope: 1, ToScope: 4,
	}, barriers[1])
	require.Equal(t, transient.AliasingBarrier{
		From: b, To: c, HeapOffsetMin: 100, HeapOffsetMax: 200, FromScope: 3, ToScope: 4,
	}, barriers[2])
}

func TestAliasingTrackerSameResourceNoBarrier(t *testing.T) {
	var tracker transient.AliasingTracker
	tracker.Init(nil)

	a := &fakeResource{id: "a"}

	require.NoError(t, tracker.AddResource(a, transient.AttachmentTypeBuffer, 0, 256, 0, 1))
	require.NoError(t, tracker.AddResource(a, transient.AttachmentTypeBuffer, 0, 256, 2, 3))
	require.NoError(t, tracker.End())

	require.Empty(t, tracker.Barriers())
}

func TestAliasingTrackerLiveOverlapIsViolation(t *testing.T) {
	var tracker transient.AliasingTracker
	tracker.Init(nil)

	a := &fakeResource{id: "a"}
	b := &fakeResource{id: "b"}

	require.NoError(t, tracker.AddResource(a, transient.AttachmentTypeBuffer, 0, 256, 0, 4))
	err := tracker.AddResource(b, transient.AttachmentTypeBuffer, 128, 384, 4, 5)
	require.True(t, errors.Is(err, transient.ErrProtocolViolation))

	// The failed resource left no trace
	require.Equal(t, 1, tracker.Occupants())
	require.NoError(t, tracker.End())
	require.Empty(t, tracker.Barriers())
}

func TestAliasingTrackerInvalidInput(t *testing.T) {
	testCases := map[string]struct {
		byteMin, byteMax     uint64
		beginScope, endScope transient.ScopeIndex
	}{
		"EmptyRange":    {byteMin: 10, byteMax: 10, beginScope: 0, endScope: 0},
		"InvertedRange": {byteMin: 20, byteMax: 10, beginScope: 0, endScope: 0},
		"InvertedScope": {byteMin: 0, byteMax: 10, beginScope: 3, endScope: 2},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			var tracker transient.AliasingTracker
			tracker.Init(nil)

			err := tracker.AddResource(&fakeResource{}, transient.AttachmentTypeBuffer,
				testCase.byteMin, testCase.byteMax, testCase.beginScope, testCase.endScope)
			require.True(t, errors.Is(err, transient.ErrProtocolViolation))
			require.Equal(t, 0, tracker.Occupants())
		})
	}
}

func TestAliasingTrackerEndSortsBarriers(t *testing.T) {
	var tracker transient.AliasingTracker
	tracker.Init(nil)

	a := &fakeResource{id: "a"}
	b := &fakeResource{id: "b"}
	c := &fakeResource{id: "c"}
	d := &fakeResource{id: "d"}

	require.NoError(t, tracker.AddResource(a, transient.AttachmentTypeBuffer, 0, 100, 0, 1))
	require.NoError(t, tracker.AddResource(b, transient.AttachmentTypeBuffer, 100, 200, 0, 1))
	// d is deactivated before c but begins later
	require.NoError(t, tracker.AddResource(d, transient.AttachmentTypeBuffer, 100, 200, 6, 7))
	require.NoError(t, tracker.AddResource(c, transient.AttachmentTypeBuffer, 0, 100, 2, 8))

	recorded := tracker.Barriers()
	require.Equal(t, d, recorded[0].To)
	require.Equal(t, c, recorded[1].To)

	require.NoError(t, tracker.End())
	sorted := tracker.Barriers()
	require.Equal(t, c, sorted[0].To)
	require.Equal(t, d, sorted[1].To)
}

func TestAliasingTrackerCallbackAndReset(t *testing.T) {
	var delivered []transient.AliasingBarrier
	var tracker transient.AliasingTracker
	tracker.Init(func(barrier transient.AliasingBarrier) {
		delivered = append(delivered, barrier)
	})

	a := &fakeResource{id: "a"}
	b := &fakeResource{id: "b"}

	require.NoError(t, tracker.AddResource(a, transient.AttachmentTypeBuffer, 0, 64, 0, 0))
	require.NoError(t, tracker.AddResource(b, transient.AttachmentTypeBuffer, 0, 64, 1, 1))
	require.Len(t, delivered, 1)
	require.NoError(t, tracker.End())

	err := tracker.AddResource(a, transient.AttachmentTypeBuffer, 0, 64, 2, 2)
	require.True(t, errors.Is(err, transient.ErrProtocolViolation))
	require.True(t, errors.Is(tracker.End(), transient.ErrProtocolViolation))

	// A new frame starts with no history
	tracker.Reset()
	require.NoError(t, tracker.AddResource(b, transient.AttachmentTypeBuffer, 0, 64, 0, 0))
	require.Empty(t, tracker.Barriers())
	require.Len(t, delivered, 1)
}
