package transient

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/framegraph/memutils"
	"github.com/vkngwrapper/framegraph/memutils/metadata"
	"golang.org/x/exp/slog"
)

// HeapDescriptor describes a heap. It is fixed for the lifetime of the heap.
type HeapDescriptor struct {
	// Name identifies the heap in logs and statistics
	Name string
	// CapacityBytes is the size of the heap's memory. It must not be 0.
	CapacityBytes uint64
	// AlignmentBytes is the minimum alignment of every placement in the heap. It must be a power
	// of two. If it is 0, placements are aligned only as their resources require.
	AlignmentBytes uint64
	// ResourceTypeMask is the set of attachment types this heap will hold. If it is 0, the heap
	// holds every type.
	ResourceTypeMask AttachmentTypeMask
	// CacheCapacity is the number of placed resources the heap keeps alive between frames. It
	// should be at least the largest number of distinct placements used in a single frame. If it
	// is 0, a default of 64 is used.
	CacheCapacity int
	// GarbageCollectThreshold is the number of frees the heap's allocator accumulates before it
	// merges free ranges on its own. If it is 0, a default of 8 is used.
	GarbageCollectThreshold int
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags HeapCreateFlags

	// Callbacks is an optional set of callbacks the heap executes while compiling frames
	Callbacks *HeapCallbackOptions
}

func initializationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInitialization)
}

func (d HeapDescriptor) withDefaults() HeapDescriptor {
	if d.AlignmentBytes == 0 {
		d.AlignmentBytes = 1
	}
	if d.ResourceTypeMask == 0 {
		d.ResourceTypeMask = AttachmentTypeMaskAll
	}
	if d.CacheCapacity == 0 {
		d.CacheCapacity = defaultCacheCapacity
	}
	if d.GarbageCollectThreshold == 0 {
		d.GarbageCollectThreshold = metadata.DefaultGarbageCollectThreshold
	}

	return d
}

func (d HeapDescriptor) validate() error {
	if d.CapacityBytes == 0 {
		return initializationf("heap %q has a capacity of 0 bytes", d.Name)
	}

	err := memutils.CheckPow2(d.AlignmentBytes, "AlignmentBytes")
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "heap %q has an invalid alignment", d.Name), ErrInitialization)
	}

	if d.CacheCapacity < 0 {
		return initializationf("heap %q has a negative cache capacity (%d)", d.Name, d.CacheCapacity)
	}

	if d.ResourceTypeMask&^AttachmentTypeMaskAll != 0 {
		return initializationf("heap %q has unknown bits in its resource type mask: %s", d.Name, d.ResourceTypeMask)
	}

	return nil
}

// NewAliasedHeap creates a heap and initializes it
//
// logger - Receives debug output and protocol violation reports. If it is nil, nothing is logged.
//
// factory - Reserves the heap's memory and creates every resource placed in it
//
// descriptor - Describes the heap
func NewAliasedHeap(logger *slog.Logger, factory ResourceFactory, descriptor HeapDescriptor) (*AliasedHeap, error) {
	heap := &AliasedHeap{}
	err := heap.Init(logger, factory, descriptor)
	if err != nil {
		return nil, err
	}

	return heap, nil
}

// Init reserves the heap's memory and prepares it to compile frames. It must be called exactly
// once on a zero-valued AliasedHeap.
func (h *AliasedHeap) Init(logger *slog.Logger, factory ResourceFactory, descriptor HeapDescriptor) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}

	h.mutex.RLock()
	state := h.state
	h.mutex.RUnlock()

	if state != heapStateUninitialized {
		return h.protocolViolation(protocolViolationf("AliasedHeap::Init called on a heap that is %s", state))
	}

	h.mutex.Enable(descriptor.Flags&HeapCreateInternallySynchronized != 0)
	h.mutex.Lock()
	defer h.mutex.Unlock()

	logger.Debug("AliasedHeap::Init",
		slog.String("Name", descriptor.Name),
		slog.Uint64("CapacityBytes", descriptor.CapacityBytes),
		slog.Uint64("AlignmentBytes", descriptor.AlignmentBytes),
		slog.String("ResourceTypeMask", descriptor.ResourceTypeMask.String()),
		slog.String("Flags", descriptor.Flags.String()),
	)

	if factory == nil {
		return initializationf("heap %q was not given a resource factory", descriptor.Name)
	}

	descriptor = descriptor.withDefaults()
	err := descriptor.validate()
	if err != nil {
		return err
	}

	memory, err := factory.ReserveHeapMemory(descriptor)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to reserve %d bytes for heap %q", descriptor.CapacityBytes, descriptor.Name), ErrInitialization)
	}

	h.logger = logger
	h.factory = factory
	h.descriptor = descriptor
	h.memory = memory
	h.callbacks = heapCallbacks{
		Callbacks: descriptor.Callbacks,
		Heap:      h,
	}

	h.metadata = metadata.NewFirstFitBlockMetadata(descriptor.GarbageCollectThreshold)
	h.metadata.Init(descriptor.CapacityBytes)

	h.cache.Init(logger, factory, descriptor.CacheCapacity)
	h.tracker.Init(h.callbacks.Barrier)
	h.active = swiss.NewMap[AttachmentID, *Attachment](uint32(descriptor.CacheCapacity))

	h.state = heapStateReady
	return nil
}
