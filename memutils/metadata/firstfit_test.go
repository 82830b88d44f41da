package metadata_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/framegraph/memutils"
	"github.com/vkngwrapper/framegraph/memutils/metadata"
)

func TestFirstFitBasicAlloc(t *testing.T) {
	firstFit := metadata.NewFirstFitBlockMetadata(0)
	firstFit.Init(1000)

	var stats memutils.DetailedStatistics
	stats.Clear()
	firstFit.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount:      1,
			BlockBytes:      1000,
			AllocationCount: 0,
			AllocationBytes: 0,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  math.MaxUint64,
		AllocationSizeMax:  0,
		UnusedRangeSizeMin: 1000,
		UnusedRangeSizeMax: 1000,
	}, stats)

	alloc1, err := firstFit.Allocate(100, 1, "first")
	require.NoError(t, err)
	require.Equal(t, uint64(0), alloc1.Offset())

	stats.Clear()
	firstFit.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount:      1,
			BlockBytes:      1000,
			AllocationCount: 1,
			AllocationBytes: 100,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  100,
		AllocationSizeMax:  100,
		UnusedRangeSizeMin: 900,
		UnusedRangeSizeMax: 900,
	}, stats)

	userData, err := firstFit.AllocationUserData(alloc1)
	require.NoError(t, err)
	require.Equal(t, "first", userData)

	err = firstFit.Free(alloc1)
	require.NoError(t, err)
	require.NoError(t, firstFit.Validate())

	// The freed range is not merged back into the tail until garbage collection
	require.Equal(t, 2, firstFit.FreeRegionsCount())
	firstFit.GarbageCollect(true)
	require.Equal(t, 1, firstFit.FreeRegionsCount())

	stats.Clear()
	firstFit.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount:      1,
			BlockBytes:      1000,
			AllocationCount: 0,
			AllocationBytes: 0,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  math.MaxUint64,
		AllocationSizeMax:  0,
		UnusedRangeSizeMin: 1000,
		UnusedRangeSizeMax: 1000,
	}, stats)
}

func TestFirstFitInvalidRequests(t *testing.T) {
	firstFit := metadata.NewFirstFitBlockMetadata(0)
	firstFit.Init(1000)

	address, err := firstFit.Allocate(0, 1, nil)
	require.ErrorIs(t, err, memutils.ZeroSizeError)
	require.True(t, address.IsNull())

	address, err = firstFit.Allocate(10, 3, nil)
	require.ErrorIs(t, err, memutils.PowerOfTwoError)
	require.True(t, address.IsNull())

	err = firstFit.Free(metadata.VirtualAddress(10))
	require.Error(t, err)

	require.True(t, firstFit.IsEmpty())
	require.Equal(t, uint64(1000), firstFit.SumFreeSize())
}

func TestFirstFitOutOfSpace(t *testing.T) {
	firstFit := metadata.NewFirstFitBlockMetadata(0)
	firstFit.Init(1000)

	address, err := firstFit.Allocate(1001, 1, nil)
	require.NoError(t, err)
	require.Equal(t, metadata.NullAddress, address)

	_, err = firstFit.Allocate(600, 1, nil)
	require.NoError(t, err)

	// 400 bytes are free, but not 500
	address, err = firstFit.Allocate(500, 1, nil)
	require.NoError(t, err)
	require.True(t, address.IsNull())
	require.Equal(t, 1, firstFit.AllocationCount())
	require.NoError(t, firstFit.Validate())
}

func TestFirstFitAlignment(t *testing.T) {
	firstFit := metadata.NewFirstFitBlockMetadata(0)
	firstFit.Init(1024)

	alloc1, err := firstFit.Allocate(10, 1, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), alloc1.Offset())

	alloc2, err := firstFit.Allocate(100, 64, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(64), alloc2.Offset())

	// The alignment padding stays free and is used by a small enough request
	alloc3, err := firstFit.Allocate(54, 1, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(10), alloc3.Offset())

	alloc4, err := firstFit.Allocate(16, 16, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(176), alloc4.Offset())

	require.NoError(t, firstFit.Validate())

	size, err := firstFit.AllocationSize(alloc2)
	require.NoError(t, err)
	require.Equal(t, uint64(100), size)
}

func TestFirstFitPrefersLowestOffset(t *testing.T) {
	firstFit := metadata.NewFirstFitBlockMetadata(0)
	firstFit.Init(1000)

	small, err := firstFit.Allocate(100, 1, nil)
	require.NoError(t, err)
	_, err = firstFit.Allocate(100, 1, nil)
	require.NoError(t, err)
	large, err := firstFit.Allocate(300, 1, nil)
	require.NoError(t, err)
	_, err = firstFit.Allocate(100, 1, nil)
	require.NoError(t, err)

	require.NoError(t, firstFit.Free(small))
	require.NoError(t, firstFit.Free(large))
	firstFit.GarbageCollect(true)

	// Best fit would choose the 100 byte hole, first fit picks the lowest address that works
	alloc, err := firstFit.Allocate(50, 1, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), alloc.Offset())

	alloc, err = firstFit.Allocate(200, 1, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(200), alloc.Offset())
}

func TestFirstFitFreeDoesNotCoalesce(t *testing.T) {
	firstFit := metadata.NewFirstFitBlockMetadata(0)
	firstFit.Init(300)

	alloc1, err := firstFit.Allocate(100, 1, nil)
	require.NoError(t, err)
	alloc2, err := firstFit.Allocate(100, 1, nil)
	require.NoError(t, err)
	_, err = firstFit.Allocate(100, 1, nil)
	require.NoError(t, err)

	require.NoError(t, firstFit.Free(alloc1))
	require.NoError(t, firstFit.Free(alloc2))
	require.Equal(t, 2, firstFit.UncoalescedFrees())

	// 200 bytes are free, but as two separate ranges
	address, err := firstFit.Allocate(200, 1, nil)
	require.NoError(t, err)
	require.True(t, address.IsNull())

	firstFit.GarbageCollect(true)
	require.Equal(t, 0, firstFit.UncoalescedFrees())

	address, err = firstFit.Allocate(200, 1, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), address.Offset())
	require.NoError(t, firstFit.Validate())
}

func TestFirstFitUnforcedGarbageCollectThreshold(t *testing.T) {
	firstFit := metadata.NewFirstFitBlockMetadata(3)
	firstFit.Init(400)

	var addresses []metadata.VirtualAddress
	for i := 0; i < 4; i++ {
		address, err := firstFit.Allocate(100, 1, nil)
		require.NoError(t, err)
		addresses = append(addresses, address)
	}

	require.NoError(t, firstFit.Free(addresses[0]))
	require.NoError(t, firstFit.Free(addresses[1]))
	firstFit.GarbageCollect(false)
	require.Equal(t, 2, firstFit.FreeRegionsCount())

	require.NoError(t, firstFit.Free(addresses[2]))
	firstFit.GarbageCollect(false)
	require.Equal(t, 1, firstFit.FreeRegionsCount())
	require.Equal(t, uint64(300), firstFit.SumFreeSize())
}

func TestFirstFitGarbageCollectRoundTrip(t *testing.T) {
	firstFit := metadata.NewFirstFitBlockMetadata(0)
	firstFit.Init(4096)

	sizes := []uint64{256, 48, 512, 100, 32, 1000}
	addresses := make([]metadata.VirtualAddress, len(sizes))
	for i, size := range sizes {
		address, err := firstFit.Allocate(size, 16, nil)
		require.NoError(t, err)
		addresses[i] = address
	}

	for i, address := range addresses {
		require.NoError(t, firstFit.Free(address))
		firstFit.GarbageCollect(true)

		again, err := firstFit.Allocate(sizes[i], 16, nil)
		require.NoError(t, err)
		require.Equal(t, address, again)
		require.NoError(t, firstFit.Validate())
	}

	for _, address := range addresses {
		require.NoError(t, firstFit.Free(address))
	}
	firstFit.GarbageCollect(true)

	require.True(t, firstFit.IsEmpty())
	require.Equal(t, 1, firstFit.FreeRegionsCount())
}

func TestFirstFitVisitAllRegions(t *testing.T) {
	firstFit := metadata.NewFirstFitBlockMetadata(0)
	firstFit.Init(100)

	alloc1, err := firstFit.Allocate(10, 1, "a")
	require.NoError(t, err)
	_, err = firstFit.Allocate(20, 1, "b")
	require.NoError(t, err)
	require.NoError(t, firstFit.Free(alloc1))

	var regions []metadata.Suballocation
	var frees []bool
	err = firstFit.VisitAllRegions(func(address metadata.VirtualAddress, offset uint64, size uint64, userData any, free bool) error {
		regions = append(regions, metadata.Suballocation{Offset: offset, Size: size, UserData: userData})
		frees = append(frees, free)
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, []metadata.Suballocation{
		{Offset: 0, Size: 10},
		{Offset: 10, Size: 20, UserData: "b"},
		{Offset: 30, Size: 70},
	}, regions)
	require.Equal(t, []bool{true, false, true}, frees)
}

func TestFirstFitClear(t *testing.T) {
	firstFit := metadata.NewFirstFitBlockMetadata(0)
	firstFit.Init(100)

	for i := 0; i < 5; i++ {
		_, err := firstFit.Allocate(10, 4, nil)
		require.NoError(t, err)
	}

	firstFit.Clear()
	require.True(t, firstFit.IsEmpty())
	require.Equal(t, uint64(100), firstFit.SumFreeSize())
	require.Equal(t, 1, firstFit.FreeRegionsCount())
	require.NoError(t, firstFit.Validate())

	var stats memutils.Statistics
	firstFit.AddStatistics(&stats)
	require.Equal(t, memutils.Statistics{BlockCount: 1, BlockBytes: 100}, stats)
}
