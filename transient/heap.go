package transient

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/framegraph/internal/utils"
	"github.com/vkngwrapper/framegraph/memutils"
	"github.com/vkngwrapper/framegraph/memutils/intervals"
	"github.com/vkngwrapper/framegraph/memutils/metadata"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

type heapState int

const (
	heapStateUninitialized heapState = iota
	heapStateReady
	heapStateInFrame
	heapStateShutdown
)

var heapStateMapping = map[heapState]string{
	heapStateUninitialized: "Uninitialized",
	heapStateReady:         "Ready",
	heapStateInFrame:       "InFrame",
	heapStateShutdown:      "Shutdown",
}

func (s heapState) String() string {
	return heapStateMapping[s]
}

// AliasedHeap packs transient resources into a fixed block of memory, placing resources whose
// lifetimes within a frame do not overlap into the same bytes. Every frame is compiled by a call
// to Begin, followed by Activate and Deactivate calls for each resource in scope order, followed
// by a call to End.
//
// Placed resources are cached by descriptor and placement, so a frame graph that places the same
// resources in the same way every frame creates no new platform resources after its first frame.
//
// An AliasedHeap is not safe for concurrent use unless it was created with
// HeapCreateInternallySynchronized.
type AliasedHeap struct {
	mutex utils.OptionalRWMutex

	logger     *slog.Logger
	factory    ResourceFactory
	descriptor HeapDescriptor
	memory     HeapMemory
	callbacks  heapCallbacks

	state        heapState
	compileFlags CompileFlags
	frameIndex   uint64

	metadata *metadata.FirstFitBlockMetadata
	cache    resourceCache
	tracker  AliasingTracker
	active   *swiss.Map[AttachmentID, *Attachment]

	watermark        uint64
	peakActiveCount  int
	frameAttachments []Attachment

	// retired holds, for every byte released this frame, the last scope it was used in
	retired intervals.Map[uint64, ScopeIndex]
	// frameEntries are the cache entries of deactivated attachments. They stay referenced
	// until End, because barriers and earlier scopes still refer to their resources.
	frameEntries []*cacheEntry

	stats    HeapStats
	barriers []AliasingBarrier
}

// Descriptor returns the descriptor the heap was initialized with, with defaults applied
func (h *AliasedHeap) Descriptor() HeapDescriptor {
	return h.descriptor
}

// ActiveCount returns the number of attachments that have been activated but not deactivated
func (h *AliasedHeap) ActiveCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.active == nil {
		return 0
	}
	return h.active.Count()
}

// CachedResourceCount returns the number of placed resources currently held by the cache
func (h *AliasedHeap) CachedResourceCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.state == heapStateUninitialized {
		return 0
	}
	return h.cache.Count()
}

func (h *AliasedHeap) protocolViolation(err error) error {
	logger := h.logger
	if logger == nil {
		return err
	}

	logger.LogAttrs(context.Background(), slog.LevelError, "[PROTOCOL VIOLATION] "+err.Error(),
		slog.String("heap", h.descriptor.Name),
		slog.String("state", h.state.String()),
		slog.Uint64("frame", h.frameIndex),
	)
	return err
}

func (h *AliasedHeap) checkState(method string, expected heapState) error {
	if h.state != expected {
		return h.protocolViolation(protocolViolationf("%s called on a heap that is %s, but it must be %s", method, h.state, expected))
	}

	return nil
}

func (h *AliasedHeap) dryRun() bool {
	return h.compileFlags&CompileDontAllocateResources != 0
}

// Begin starts compiling a new frame
func (h *AliasedHeap) Begin(flags CompileFlags) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	err := h.checkState("AliasedHeap::Begin", heapStateReady)
	if err != nil {
		return err
	}

	h.logger.Debug("AliasedHeap::Begin", slog.String("Flags", flags.String()))

	h.compileFlags = flags
	h.frameIndex++
	h.watermark = 0
	h.peakActiveCount = 0
	h.frameAttachments = nil
	h.barriers = nil
	h.retired.Clear()
	h.frameEntries = h.frameEntries[:0]
	h.tracker.Reset()
	h.cache.ResetCounters()

	h.state = heapStateInFrame
	return nil
}

// ActivateBuffer places a buffer in the heap. The placement and resource are returned as an
// Attachment, which stays active until DeactivateBuffer is called with the same ID.
//
// If there is not enough contiguous free space for the buffer, an error wrapping
// ErrOutOfMemory is returned and the heap is left unchanged.
func (h *AliasedHeap) ActivateBuffer(descriptor BufferDescriptor, scope ScopeIndex) (Attachment, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	err := h.checkState("AliasedHeap::ActivateBuffer", heapStateInFrame)
	if err != nil {
		return Attachment{}, err
	}

	h.logger.Debug("AliasedHeap::ActivateBuffer",
		slog.String("ID", string(descriptor.ID)),
		slog.Uint64("Size", descriptor.Size),
		slog.Uint64("Scope", uint64(scope)),
	)

	if descriptor.Size == 0 {
		return Attachment{}, h.protocolViolation(protocolViolationf("buffer %q has a size of 0", descriptor.ID))
	}

	requirements, err := h.factory.BufferMemoryRequirements(descriptor)
	if err != nil {
		return Attachment{}, errors.Wrapf(err, "failed to get memory requirements for buffer %q", descriptor.ID)
	}

	return h.activate(activateRequest{
		id:             descriptor.ID,
		attachmentType: AttachmentTypeBuffer,
		size:           memutils.Max(descriptor.Size, uint64(requirements.Size)),
		alignment:      memutils.Max(descriptor.Alignment, uint64(requirements.Alignment)),
		scope:          scope,
		cacheKey: func(offset uint64) (cacheKey, any) {
			return h.cache.bufferKey(descriptor, offset)
		},
		create: func(offset uint64) (Resource, error) {
			return h.factory.CreateBuffer(descriptor, h.memory, offset)
		},
	})
}

// ActivateImage places an image in the heap. The placement and resource are returned as an
// Attachment, which stays active until DeactivateImage is called with the same ID. Images with
// color or depth-stencil attachment usage are placed as AttachmentTypeRenderTarget.
//
// If there is not enough contiguous free space for the image, an error wrapping
// ErrOutOfMemory is returned and the heap is left unchanged.
func (h *AliasedHeap) ActivateImage(descriptor ImageDescriptor, scope ScopeIndex) (Attachment, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	err := h.checkState("AliasedHeap::ActivateImage", heapStateInFrame)
	if err != nil {
		return Attachment{}, err
	}

	h.logger.Debug("AliasedHeap::ActivateImage",
		slog.String("ID", string(descriptor.ID)),
		slog.Int("Width", descriptor.Extent.Width),
		slog.Int("Height", descriptor.Extent.Height),
		slog.Uint64("Scope", uint64(scope)),
	)

	requirements, err := h.factory.ImageMemoryRequirements(descriptor)
	if err != nil {
		return Attachment{}, errors.Wrapf(err, "failed to get memory requirements for image %q", descriptor.ID)
	}

	if requirements.Size <= 0 {
		return Attachment{}, errors.Newf("image %q has invalid memory requirements: size %d", descriptor.ID, requirements.Size)
	}

	return h.activate(activateRequest{
		id:             descriptor.ID,
		attachmentType: descriptor.AttachmentType(),
		size:           uint64(requirements.Size),
		alignment:      uint64(requirements.Alignment),
		scope:          scope,
		cacheKey: func(offset uint64) (cacheKey, any) {
			return h.cache.imageKey(descriptor, offset)
		},
		create: func(offset uint64) (Resource, error) {
			return h.factory.CreateImage(descriptor, h.memory, offset)
		},
	})
}

type activateRequest struct {
	id             AttachmentID
	attachmentType AttachmentType
	size           uint64
	alignment      uint64
	scope          ScopeIndex

	cacheKey func(offset uint64) (cacheKey, any)
	create   func(offset uint64) (Resource, error)
}

func (h *AliasedHeap) activate(request activateRequest) (Attachment, error) {
	if request.id == "" {
		return Attachment{}, h.protocolViolation(protocolViolationf("attempted to activate a %s without an ID", request.attachmentType))
	}

	if !h.descriptor.ResourceTypeMask.Contains(request.attachmentType) {
		return Attachment{}, h.protocolViolation(protocolViolationf("attempted to activate %s %q in heap %q, which only holds %s",
			request.attachmentType, request.id, h.descriptor.Name, h.descriptor.ResourceTypeMask))
	}

	_, alreadyActive := h.active.Get(request.id)
	if alreadyActive {
		return Attachment{}, h.protocolViolation(protocolViolationf("attachment %q is already active", request.id))
	}

	alignment := memutils.Max(h.descriptor.AlignmentBytes, request.alignment)
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return Attachment{}, errors.Wrapf(err, "attachment %q has an invalid alignment", request.id)
	}

	attachment := &Attachment{
		ID:             request.id,
		Type:           request.attachmentType,
		SizeBytes:      request.size,
		ScopeOffsetMin: request.scope,
	}

	address, err := h.metadata.Allocate(request.size, alignment, attachment)
	if err != nil {
		return Attachment{}, errors.Wrapf(err, "failed to place attachment %q", request.id)
	}

	if address.IsNull() {
		h.logger.Debug("    AliasedHeap::activate FAILED", slog.Uint64("SumFreeSize", h.metadata.SumFreeSize()))
		return Attachment{}, errors.Wrapf(ErrOutOfMemory, "heap %q has no free range of %d bytes aligned to %d for attachment %q",
			h.descriptor.Name, request.size, alignment, request.id)
	}

	attachment.address = address
	attachment.HeapOffsetMin = address.Offset()
	attachment.HeapOffsetMax = attachment.HeapOffsetMin + request.size

	err = h.checkRetired(attachment)
	if err != nil {
		h.releasePlacement(address)
		return Attachment{}, err
	}

	if !h.dryRun() {
		err = h.acquireResource(attachment, request)
		if err != nil {
			h.releasePlacement(address)
			return Attachment{}, err
		}
	}

	h.active.Put(attachment.ID, attachment)
	if attachment.HeapOffsetMax > h.watermark {
		h.watermark = attachment.HeapOffsetMax
	}
	if h.active.Count() > h.peakActiveCount {
		h.peakActiveCount = h.active.Count()
	}

	return *attachment, nil
}

func (h *AliasedHeap) acquireResource(attachment *Attachment, request activateRequest) error {
	key, descriptor := request.cacheKey(attachment.HeapOffsetMin)

	entry := h.cache.Find(key, descriptor)
	if entry == nil {
		err := h.cache.CheckInsert(key)
		if err != nil {
			return h.protocolViolation(errors.Wrapf(err, "cannot cache %s %q", request.attachmentType, request.id))
		}

		resource, err := request.create(attachment.HeapOffsetMin)
		if err != nil {
			return errors.Wrapf(err, "failed to create %s %q", request.attachmentType, request.id)
		}
		h.callbacks.CreateResource(request.attachmentType, resource, attachment.HeapOffsetMin)

		entry, err = h.cache.Insert(key, descriptor, resource)
		if err != nil {
			destroyErr := h.factory.DestroyResource(resource)
			return h.protocolViolation(errors.CombineErrors(err, destroyErr))
		}
	}

	h.cache.Acquire(entry)
	attachment.cacheEntry = entry
	attachment.Resource = entry.resource

	return nil
}

// checkRetired refuses a placement over bytes that an earlier attachment of this frame used in
// the new attachment's first scope or later
func (h *AliasedHeap) checkRetired(attachment *Attachment) error {
	var conflict intervals.Interval[uint64, ScopeIndex]
	found := false

	h.retired.VisitOverlap(attachment.HeapOffsetMin, attachment.HeapOffsetMax, func(interval intervals.Interval[uint64, ScopeIndex]) bool {
		if interval.Value >= attachment.ScopeOffsetMin {
			conflict = interval
			found = true
			return false
		}
		return true
	})

	if !found {
		return nil
	}

	return h.protocolViolation(protocolViolationf("%s %q cannot be activated in scope %d: bytes [%d, %d) were in use through scope %d",
		attachment.Type, attachment.ID, attachment.ScopeOffsetMin,
		memutils.Max(conflict.Lo, attachment.HeapOffsetMin), memutils.Min(conflict.Hi, attachment.HeapOffsetMax), conflict.Value))
}

// retire records that [lo, hi) was last used in scope, keeping any later scope already recorded
func (h *AliasedHeap) retire(lo, hi uint64, scope ScopeIndex) {
	var later []intervals.Interval[uint64, ScopeIndex]
	h.retired.VisitOverlap(lo, hi, func(interval intervals.Interval[uint64, ScopeIndex]) bool {
		if interval.Value > scope {
			later = append(later, interval)
		}
		return true
	})

	h.retired.Assign(lo, hi, scope)
	for _, interval := range later {
		h.retired.Assign(memutils.Max(interval.Lo, lo), memutils.Min(interval.Hi, hi), interval.Value)
	}
}

// releasePlacement returns a placement to the allocator and merges the free list so that no
// trace of the placement remains
func (h *AliasedHeap) releasePlacement(address metadata.VirtualAddress) {
	err := h.metadata.Free(address)
	if err != nil {
		panic(errors.Wrapf(err, "heap %q lost track of a placement", h.descriptor.Name))
	}

	h.metadata.GarbageCollect(true)
}

// DeactivateBuffer ends the lifetime of a buffer activated with ActivateBuffer. scope must be the
// last scope the buffer is used in. The buffer's bytes are available to attachments activated
// after this call in a later scope. Its resource stays cached and referenced until End.
func (h *AliasedHeap) DeactivateBuffer(id AttachmentID, scope ScopeIndex) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	err := h.checkState("AliasedHeap::DeactivateBuffer", heapStateInFrame)
	if err != nil {
		return err
	}

	h.logger.Debug("AliasedHeap::DeactivateBuffer", slog.String("ID", string(id)), slog.Uint64("Scope", uint64(scope)))

	return h.deactivate(id, false, scope)
}

// DeactivateImage ends the lifetime of an image activated with ActivateImage. scope must be the
// last scope the image is used in. The image's bytes are available to attachments activated
// after this call in a later scope. Its resource stays cached and referenced until End.
func (h *AliasedHeap) DeactivateImage(id AttachmentID, scope ScopeIndex) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	err := h.checkState("AliasedHeap::DeactivateImage", heapStateInFrame)
	if err != nil {
		return err
	}

	h.logger.Debug("AliasedHeap::DeactivateImage", slog.String("ID", string(id)), slog.Uint64("Scope", uint64(scope)))

	return h.deactivate(id, true, scope)
}

func (h *AliasedHeap) deactivate(id AttachmentID, image bool, scope ScopeIndex) error {
	attachment, ok := h.active.Get(id)
	if !ok {
		return h.protocolViolation(protocolViolationf("attachment %q is not active", id))
	}

	isImage := attachment.Type != AttachmentTypeBuffer
	if isImage != image {
		return h.protocolViolation(protocolViolationf("attachment %q is a %s and cannot be deactivated as a different kind of resource", id, attachment.Type))
	}

	if scope < attachment.ScopeOffsetMin {
		return h.protocolViolation(protocolViolationf("attachment %q was activated in scope %d and cannot be deactivated in the earlier scope %d",
			id, attachment.ScopeOffsetMin, scope))
	}

	if !h.dryRun() {
		err := h.tracker.AddResource(attachment.Resource, attachment.Type, attachment.HeapOffsetMin, attachment.HeapOffsetMax,
			attachment.ScopeOffsetMin, scope)
		if err != nil {
			return h.protocolViolation(errors.Wrapf(err, "failed to deactivate attachment %q", id))
		}
	}

	attachment.ScopeOffsetMax = scope
	h.releasePlacement(attachment.address)
	h.retire(attachment.HeapOffsetMin, attachment.HeapOffsetMax, scope)

	if attachment.cacheEntry != nil {
		h.frameEntries = append(h.frameEntries, attachment.cacheEntry)
		attachment.cacheEntry = nil
	}

	h.active.Delete(id)

	if h.compileFlags&CompileGatherStatistics != 0 {
		h.frameAttachments = append(h.frameAttachments, *attachment)
	}

	return nil
}

func (h *AliasedHeap) logUnreleasedAttachment(attachment *Attachment) {
	h.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED ATTACHMENT] attachment still active at end of frame",
		slog.String("heap", h.descriptor.Name),
		slog.String("id", string(attachment.ID)),
		slog.String("type", attachment.Type.String()),
		slog.Uint64("offset", attachment.HeapOffsetMin),
		slog.Uint64("size", attachment.SizeBytes),
		slog.Uint64("activatedScope", uint64(attachment.ScopeOffsetMin)),
	)
}

// End completes the frame. Every attachment must have been deactivated. Statistics and barriers
// for the frame are available afterwards from GetStatistics and Barriers.
func (h *AliasedHeap) End() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	err := h.checkState("AliasedHeap::End", heapStateInFrame)
	if err != nil {
		return err
	}

	h.logger.Debug("AliasedHeap::End")

	if h.active.Count() > 0 {
		h.active.Iter(func(_ AttachmentID, attachment *Attachment) bool {
			h.logUnreleasedAttachment(attachment)
			return false
		})

		return h.protocolViolation(protocolViolationf("%d attachments were not deactivated before the end of the frame", h.active.Count()))
	}

	memutils.DebugValidate(h.metadata)
	if memutils.DebugChecksEnabled {
		err = h.cache.Validate()
		if err != nil {
			panic(err)
		}
	}

	err = h.tracker.End()
	if err != nil {
		return h.protocolViolation(err)
	}

	for _, entry := range h.frameEntries {
		h.cache.Release(entry)
	}
	h.frameEntries = h.frameEntries[:0]

	slices.SortFunc(h.frameAttachments, func(a, b Attachment) bool {
		if a.ScopeOffsetMin != b.ScopeOffsetMin {
			return a.ScopeOffsetMin < b.ScopeOffsetMin
		}
		return a.HeapOffsetMin < b.HeapOffsetMin
	})

	h.barriers = h.tracker.Barriers()
	h.stats = HeapStats{
		Name:             h.descriptor.Name,
		HeapSizeBytes:    h.descriptor.CapacityBytes,
		WatermarkBytes:   h.watermark,
		ResourceTypeMask: h.descriptor.ResourceTypeMask,
		CompileFlags:     h.compileFlags,
		FrameIndex:       h.frameIndex,
		PeakActiveCount:  h.peakActiveCount,
		BarrierCount:     len(h.barriers),
		CachedResources:  h.cache.Count(),
		CacheHits:        h.cache.hits,
		CacheMisses:      h.cache.misses,
		CacheEvictions:   h.cache.evictions,
		Attachments:      h.frameAttachments,
	}

	h.state = heapStateReady
	return nil
}

// GetStatistics returns the statistics gathered for the most recently ended frame. Attachments
// are only listed for frames compiled with CompileGatherStatistics.
func (h *AliasedHeap) GetStatistics() (HeapStats, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.state == heapStateUninitialized {
		return HeapStats{}, h.protocolViolation(protocolViolationf("AliasedHeap::GetStatistics called on a heap that is %s", h.state))
	}

	stats := h.stats
	stats.Attachments = slices.Clone(h.stats.Attachments)
	return stats, nil
}

// Barriers returns the aliasing barriers recorded in the most recently ended frame, sorted by
// the scope they must precede and then by heap offset. No barriers are recorded for frames
// compiled with CompileDontAllocateResources.
func (h *AliasedHeap) Barriers() []AliasingBarrier {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return slices.Clone(h.barriers)
}

// Shutdown destroys every cached resource and releases the heap's memory. The heap cannot be
// used afterward.
func (h *AliasedHeap) Shutdown() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	err := h.checkState("AliasedHeap::Shutdown", heapStateReady)
	if err != nil {
		return err
	}

	h.logger.Debug("AliasedHeap::Shutdown", slog.Int("CachedResources", h.cache.Count()))

	err = h.cache.Clear()
	releaseErr := h.factory.ReleaseHeapMemory(h.memory)
	if releaseErr != nil {
		err = errors.CombineErrors(err, errors.Wrapf(releaseErr, "failed to release memory for heap %q", h.descriptor.Name))
	}

	h.metadata.Clear()
	h.memory = nil
	h.state = heapStateShutdown

	return err
}
