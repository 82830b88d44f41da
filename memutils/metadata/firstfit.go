package metadata

import (
	"github.com/dolthub/swiss"
	"github.com/google/btree"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/framegraph/memutils"
	"golang.org/x/exp/slices"
)

const (
	// DefaultGarbageCollectThreshold is the number of uncoalesced frees after which an unforced
	// GarbageCollect will merge the free list
	DefaultGarbageCollectThreshold = 8

	freeListDegree = 16
)

type freeRange struct {
	offset uint64
	size   uint64
}

func (r freeRange) end() uint64 {
	return r.offset + r.size
}

func freeRangeLess(a, b freeRange) bool {
	return a.offset < b.offset
}

type firstFitAllocation struct {
	offset   uint64
	size     uint64
	userData any
}

// FirstFitBlockMetadata is a BlockMetadata implementation that hands out the lowest-addressed
// free range that can hold a request, so that placements are packed toward offset zero.
//
// Free does not coalesce the released range with its neighbours. Adjacent free ranges are only
// merged by GarbageCollect, which consumers with heavy churn should call with force=true after
// every Free.
type FirstFitBlockMetadata struct {
	BlockMetadataBase

	freeRanges  *btree.BTreeG[freeRange]
	allocations *swiss.Map[VirtualAddress, *firstFitAllocation]
	sumFreeSize uint64

	uncoalescedFrees        int
	garbageCollectThreshold int

	// mergeScratch is reused between garbage collections so that merging does not allocate
	mergeScratch []freeRange
}

var _ BlockMetadata = &FirstFitBlockMetadata{}

// NewFirstFitBlockMetadata creates a new FirstFitBlockMetadata. garbageCollectThreshold is the
// number of frees that must be pending before an unforced GarbageCollect does any work. If it is
// less than 1, DefaultGarbageCollectThreshold is used.
func NewFirstFitBlockMetadata(garbageCollectThreshold int) *FirstFitBlockMetadata {
	if garbageCollectThreshold < 1 {
		garbageCollectThreshold = DefaultGarbageCollectThreshold
	}

	return &FirstFitBlockMetadata{
		garbageCollectThreshold: garbageCollectThreshold,
	}
}

// Init prepares this structure for allocations and sizes the block in bytes based on the parameter size.
func (m *FirstFitBlockMetadata) Init(size uint64) {
	m.BlockMetadataBase.Init(size)
	m.freeRanges = btree.NewG[freeRange](freeListDegree, freeRangeLess)
	m.allocations = swiss.NewMap[VirtualAddress, *firstFitAllocation](42)
	m.sumFreeSize = size
	m.uncoalescedFrees = 0

	if size > 0 {
		m.freeRanges.ReplaceOrInsert(freeRange{offset: 0, size: size})
	}
}

// AllocationCount returns the number of live allocations
func (m *FirstFitBlockMetadata) AllocationCount() int {
	return m.allocations.Count()
}

// FreeRegionsCount returns the number of entries in the free list. Until GarbageCollect runs,
// adjacent freed ranges are counted separately.
func (m *FirstFitBlockMetadata) FreeRegionsCount() int {
	return m.freeRanges.Len()
}

// SumFreeSize returns the number of free bytes in the block
func (m *FirstFitBlockMetadata) SumFreeSize() uint64 {
	return m.sumFreeSize
}

// IsEmpty returns true if there are no live allocations in the block
func (m *FirstFitBlockMetadata) IsEmpty() bool {
	return m.allocations.Count() == 0
}

// UncoalescedFrees returns the number of frees since the last time the free list was merged
func (m *FirstFitBlockMetadata) UncoalescedFrees() int {
	return m.uncoalescedFrees
}

// Allocate scans the free list in address order and takes the first range that can hold size
// bytes once its start has been rounded up to alignment. The range is split: alignment padding
// before the allocation and any tail after it remain free.
func (m *FirstFitBlockMetadata) Allocate(size uint64, alignment uint64, userData any) (VirtualAddress, error) {
	if size == 0 {
		return NullAddress, errors.Wrap(memutils.ZeroSizeError, "invalid allocation size")
	}

	if alignment == 0 {
		alignment = 1
	}
	if err := memutils.CheckPow2(alignment, "alignment"); err != nil {
		return NullAddress, err
	}

	memutils.DebugValidate(m)

	if size > m.sumFreeSize {
		return NullAddress, nil
	}

	var found bool
	var chosen freeRange
	var alignedOffset uint64

	m.freeRanges.Ascend(func(r freeRange) bool {
		if r.size < size {
			return true
		}

		candidate := memutils.AlignUp(r.offset, alignment)
		if candidate < r.offset {
			// Overflowed while aligning
			return false
		}

		padding := candidate - r.offset
		if padding > r.size || r.size-padding < size {
			return true
		}

		found = true
		chosen = r
		alignedOffset = candidate
		return false
	})

	if !found {
		return NullAddress, nil
	}

	m.freeRanges.Delete(chosen)

	if alignedOffset > chosen.offset {
		m.freeRanges.ReplaceOrInsert(freeRange{offset: chosen.offset, size: alignedOffset - chosen.offset})
	}

	allocEnd := alignedOffset + size
	if allocEnd < chosen.end() {
		m.freeRanges.ReplaceOrInsert(freeRange{offset: allocEnd, size: chosen.end() - allocEnd})
	}

	address := VirtualAddress(alignedOffset)
	m.allocations.Put(address, &firstFitAllocation{
		offset:   alignedOffset,
		size:     size,
		userData: userData,
	})
	m.sumFreeSize -= size

	return address, nil
}

func (m *FirstFitBlockMetadata) getAllocation(address VirtualAddress) (*firstFitAllocation, error) {
	alloc, ok := m.allocations.Get(address)
	if !ok {
		return nil, errors.Errorf("address %d does not map to a live allocation in this metadata", uint64(address))
	}

	return alloc, nil
}

// Free marks the allocation's range free again. The range is not merged with its neighbours
// until the next GarbageCollect.
func (m *FirstFitBlockMetadata) Free(address VirtualAddress) error {
	alloc, err := m.getAllocation(address)
	if err != nil {
		return err
	}

	m.allocations.Delete(address)
	m.freeRanges.ReplaceOrInsert(freeRange{offset: alloc.offset, size: alloc.size})
	m.sumFreeSize += alloc.size
	m.uncoalescedFrees++

	return nil
}

// GarbageCollect merges every run of adjacent free ranges into a single range. Unless force is
// true, nothing happens until the number of frees since the last merge reaches the threshold
// the metadata was created with.
func (m *FirstFitBlockMetadata) GarbageCollect(force bool) {
	if !force && m.uncoalescedFrees < m.garbageCollectThreshold {
		return
	}
	m.uncoalescedFrees = 0

	merged := m.mergeScratch[:0]
	m.freeRanges.Ascend(func(r freeRange) bool {
		last := len(merged) - 1
		if last >= 0 && merged[last].end() == r.offset {
			merged[last].size += r.size
		} else {
			merged = append(merged, r)
		}
		return true
	})
	m.mergeScratch = merged[:0]

	if len(merged) == m.freeRanges.Len() {
		return
	}

	m.freeRanges.Clear(true)
	for _, r := range merged {
		m.freeRanges.ReplaceOrInsert(r)
	}

	memutils.DebugValidate(m)
}

// AllocationSize returns the size in bytes of a live allocation
func (m *FirstFitBlockMetadata) AllocationSize(address VirtualAddress) (uint64, error) {
	alloc, err := m.getAllocation(address)
	if err != nil {
		return 0, err
	}

	return alloc.size, nil
}

// AllocationUserData returns the userData value provided when the range was allocated
func (m *FirstFitBlockMetadata) AllocationUserData(address VirtualAddress) (any, error) {
	alloc, err := m.getAllocation(address)
	if err != nil {
		return nil, err
	}

	return alloc.userData, nil
}

// SetAllocationUserData replaces the userData value of a live allocation
func (m *FirstFitBlockMetadata) SetAllocationUserData(address VirtualAddress, userData any) error {
	alloc, err := m.getAllocation(address)
	if err != nil {
		return err
	}

	alloc.userData = userData
	return nil
}

func (m *FirstFitBlockMetadata) sortedAllocations() []*firstFitAllocation {
	allocs := make([]*firstFitAllocation, 0, m.allocations.Count())
	m.allocations.Iter(func(_ VirtualAddress, alloc *firstFitAllocation) bool {
		allocs = append(allocs, alloc)
		return false
	})

	slices.SortFunc(allocs, func(a, b *firstFitAllocation) bool {
		return a.offset < b.offset
	})

	return allocs
}

// VisitAllRegions calls handleRegion once for each free range and live allocation in address
// order. It allocates and sorts, so it should be reserved for diagnostics.
func (m *FirstFitBlockMetadata) VisitAllRegions(handleRegion func(address VirtualAddress, offset uint64, size uint64, userData any, free bool) error) error {
	allocs := m.sortedAllocations()
	allocIndex := 0

	var err error
	m.freeRanges.Ascend(func(r freeRange) bool {
		for allocIndex < len(allocs) && allocs[allocIndex].offset < r.offset {
			alloc := allocs[allocIndex]
			err = handleRegion(VirtualAddress(alloc.offset), alloc.offset, alloc.size, alloc.userData, false)
			if err != nil {
				return false
			}
			allocIndex++
		}

		err = handleRegion(NullAddress, r.offset, r.size, nil, true)
		return err == nil
	})
	if err != nil {
		return err
	}

	for ; allocIndex < len(allocs); allocIndex++ {
		alloc := allocs[allocIndex]
		err = handleRegion(VirtualAddress(alloc.offset), alloc.offset, alloc.size, alloc.userData, false)
		if err != nil {
			return err
		}
	}

	return nil
}

// Validate verifies that the free list and the live allocations tile [0, Size()) exactly
func (m *FirstFitBlockMetadata) Validate() error {
	if m.sumFreeSize > m.size {
		return errors.Errorf("invalid metadata free size %d for a block of %d bytes", m.sumFreeSize, m.size)
	}

	var nextOffset, calculatedFree, calculatedAllocated uint64
	err := m.VisitAllRegions(func(address VirtualAddress, offset uint64, size uint64, userData any, free bool) error {
		if size == 0 {
			return errors.Errorf("region at offset %d has a size of zero", offset)
		}
		if offset != nextOffset {
			return errors.Errorf("region at offset %d does not begin where the previous region ended (%d)", offset, nextOffset)
		}

		if free {
			calculatedFree += size
		} else {
			if uint64(address) != offset {
				return errors.Errorf("allocation at offset %d is keyed by address %d", offset, uint64(address))
			}
			calculatedAllocated += size
		}

		nextOffset = offset + size
		return nil
	})
	if err != nil {
		return err
	}

	if nextOffset != m.size {
		return errors.Errorf("the full size of the metadata is %d, but the regions only added up to %d", m.size, nextOffset)
	}

	if calculatedFree != m.sumFreeSize {
		return errors.Errorf("the free size of the metadata is %d, but the free regions added up to %d", m.sumFreeSize, calculatedFree)
	}

	if calculatedFree+calculatedAllocated != m.size {
		return errors.Errorf("free bytes (%d) and allocated bytes (%d) do not add up to the block size %d", calculatedFree, calculatedAllocated, m.size)
	}

	return nil
}

// AddDetailedStatistics sums this block's allocation statistics into stats
func (m *FirstFitBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += m.size

	m.freeRanges.Ascend(func(r freeRange) bool {
		stats.AddUnusedRange(r.size)
		return true
	})

	m.allocations.Iter(func(_ VirtualAddress, alloc *firstFitAllocation) bool {
		stats.AddAllocation(alloc.size)
		return false
	})
}

// AddStatistics sums this block's allocation statistics into stats
func (m *FirstFitBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.AllocationCount += m.allocations.Count()
	stats.BlockBytes += m.size
	stats.AllocationBytes += m.size - m.sumFreeSize
}

// Clear instantly frees all allocations and resets the free list to a single range
func (m *FirstFitBlockMetadata) Clear() {
	m.allocations.Clear()
	m.freeRanges.Clear(true)
	m.sumFreeSize = m.size
	m.uncoalescedFrees = 0

	if m.size > 0 {
		m.freeRanges.ReplaceOrInsert(freeRange{offset: 0, size: m.size})
	}
}

// BlockJsonData populates a json object with information about this block
func (m *FirstFitBlockMetadata) BlockJsonData(json jwriter.ObjectState) {
	m.WriteBlockJsonData(&json, m.sumFreeSize, m.allocations.Count(), m.freeRanges.Len())
	json.Name("UncoalescedFrees").Int(m.uncoalescedFrees)

	regions := json.Name("Regions").Array()
	defer regions.End()

	_ = m.VisitAllRegions(func(address VirtualAddress, offset uint64, size uint64, userData any, free bool) error {
		obj := regions.Object()
		defer obj.End()

		obj.Name("Offset").Int(int(offset))
		obj.Name("Size").Int(int(size))
		obj.Name("Free").Bool(free)
		return nil
	})
}
