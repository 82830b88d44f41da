package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/framegraph/memutils"
)

// BlockMetadata represents a single opaque range of bytes [0, Size()) within some system. It manages
// suballocations within the block, allowing ranges to be requested and freed, as well as
// enumerated and queried. It does not own or touch any memory: the consumer is responsible for
// mapping the ranges it hands out onto real resources.
type BlockMetadata interface {
	// Init must be called before the BlockMetadata is used. It gives the implementation an opportunity
	// to ensure that metadata structures are prepared for allocations, as well as allows the consumer
	// to inform the implementation of the size in bytes of the block it will be managing,
	// via the size parameter.
	Init(size uint64)
	// Size retrieves the size in bytes that the block was initialized with
	Size() uint64

	// Validate performs internal consistency checks on the metadata. These checks may be expensive, depending
	// on the implementation. When the implementation is functioning correctly, it should not be possible
	// for this method to return an error, but this may assist in diagnosing issues with the implementation.
	Validate() error
	// AllocationCount returns the number of suballocations currently live in the implementation.
	AllocationCount() int
	// FreeRegionsCount returns the number of distinct free ranges tracked by the block. Adjacent free
	// ranges are only counted once after GarbageCollect has merged them.
	FreeRegionsCount() int
	// SumFreeSize returns the number of free bytes in the block.
	SumFreeSize() uint64
	// IsEmpty will return true if this block has no live suballocations
	IsEmpty() bool

	// Allocate reserves size bytes at an offset that is a multiple of alignment. If no free range
	// can hold the request, NullAddress is returned with a nil error: the consumer decides how to
	// treat a full block. Invalid requests (zero size, alignment that is not a power of two) return
	// an error.
	Allocate(size uint64, alignment uint64, userData any) (VirtualAddress, error)
	// Free returns a live range to the block. The implementation must return an error if the address
	// does not map to a live allocation within this block.
	Free(address VirtualAddress) error
	// GarbageCollect merges adjacent free ranges. When force is false, the implementation may
	// decide that there is not enough pending work to bother.
	GarbageCollect(force bool)

	// AllocationSize returns the size in bytes of a live allocation
	AllocationSize(address VirtualAddress) (uint64, error)
	// AllocationUserData returns the userData value provided when the range was allocated
	AllocationUserData(address VirtualAddress) (any, error)
	// SetAllocationUserData replaces the userData value of a live allocation
	SetAllocationUserData(address VirtualAddress, userData any) error

	// VisitAllRegions will call the provided callback once for each allocation and free region in
	// the block, in address order.
	VisitAllRegions(handleRegion func(address VirtualAddress, offset uint64, size uint64, userData any, free bool) error) error

	// AddDetailedStatistics sums this block's allocation statistics into the statistics currently present
	// in the provided memutils.DetailedStatistics object.
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this block's allocation statistics into the statistics currently present in the
	// provided memutils.Statistics object.
	AddStatistics(stats *memutils.Statistics)

	// Clear instantly frees all allocations
	Clear()
	// BlockJsonData populates a json object with information about this block
	BlockJsonData(json jwriter.ObjectState)
}

// BlockMetadataBase is a simple struct that provides a few shared utilities for BlockMetadata
// implementations in the memutils module.
type BlockMetadataBase struct {
	size uint64
}

// Init prepares this structure for allocations and sizes the block in bytes based on the parameter size.
func (m *BlockMetadataBase) Init(size uint64) {
	m.size = size
}

// Size returns the size of the block in bytes
func (m *BlockMetadataBase) Size() uint64 { return m.size }

// WriteBlockJsonData populates a json object with the summary information shared by every block
func (m *BlockMetadataBase) WriteBlockJsonData(json *jwriter.ObjectState, unusedBytes uint64, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Int(int(m.Size()))
	json.Name("UnusedBytes").Int(int(unusedBytes))
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
