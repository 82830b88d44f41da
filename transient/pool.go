package transient

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"
)

// PoolCreateInfo describes the heaps of a Pool
type PoolCreateInfo struct {
	// Heaps lists the heaps of the pool in the order they are tried. An attachment is placed in
	// the first heap whose ResourceTypeMask holds its type and which has room for it.
	Heaps []HeapDescriptor
}

// Pool compiles frames across several AliasedHeaps at once. It is typically used to keep
// buffers, images and render targets in separate heaps when the platform requires it, or to add
// an overflow heap for frames that do not fit in the primary heap.
//
// A Pool is not safe for concurrent use.
type Pool struct {
	logger *slog.Logger
	heaps  []*AliasedHeap
	owners *swiss.Map[AttachmentID, *AliasedHeap]
}

// NewPool creates and initializes every heap of a pool. If any heap fails to initialize, the
// heaps already created are shut down and the error is returned.
func NewPool(logger *slog.Logger, factory ResourceFactory, createInfo PoolCreateInfo) (*Pool, error) {
	if len(createInfo.Heaps) == 0 {
		return nil, errors.Mark(errors.New("a pool must have at least one heap"), ErrInitialization)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}

	pool := &Pool{
		logger: logger,
		owners: swiss.NewMap[AttachmentID, *AliasedHeap](42),
	}

	for _, descriptor := range createInfo.Heaps {
		heap, err := NewAliasedHeap(logger, factory, descriptor)
		if err != nil {
			shutdownErr := pool.Shutdown()
			if shutdownErr != nil {
				logger.Error("error attempting to shut down pool after heap creation failure", slog.Any("error", shutdownErr))
			}
			return nil, err
		}

		pool.heaps = append(pool.heaps, heap)
	}

	return pool, nil
}

func (p *Pool) protocolViolation(err error) error {
	p.logger.LogAttrs(context.Background(), slog.LevelError, "[PROTOCOL VIOLATION] "+err.Error(),
		slog.Int("heaps", len(p.heaps)),
	)
	return err
}

// Heaps returns the heaps of the pool in the order they are tried
func (p *Pool) Heaps() []*AliasedHeap {
	return p.heaps
}

// Begin starts compiling a new frame in every heap
func (p *Pool) Begin(flags CompileFlags) error {
	for _, heap := range p.heaps {
		if heap.state != heapStateReady {
			return heap.checkState("Pool::Begin", heapStateReady)
		}
	}

	for _, heap := range p.heaps {
		err := heap.Begin(flags)
		if err != nil {
			return err
		}
	}

	p.owners.Clear()
	return nil
}

func (p *Pool) place(attachmentType AttachmentType, id AttachmentID, activate func(heap *AliasedHeap) (Attachment, error)) (Attachment, error) {
	_, alreadyActive := p.owners.Get(id)
	if alreadyActive {
		return Attachment{}, p.protocolViolation(protocolViolationf("attachment %q is already active in the pool", id))
	}

	eligible := false
	var outOfMemory error

	for _, heap := range p.heaps {
		if !heap.descriptor.ResourceTypeMask.Contains(attachmentType) {
			continue
		}
		eligible = true

		attachment, err := activate(heap)
		if errors.Is(err, ErrOutOfMemory) {
			outOfMemory = errors.CombineErrors(outOfMemory, err)
			continue
		} else if err != nil {
			return Attachment{}, err
		}

		p.owners.Put(id, heap)
		return attachment, nil
	}

	if !eligible {
		return Attachment{}, p.protocolViolation(protocolViolationf("no heap in the pool holds attachments of type %s", attachmentType))
	}

	return Attachment{}, outOfMemory
}

// ActivateBuffer places a buffer in the first heap of the pool that holds buffers and has room
// for it. If no heap has room, an error wrapping ErrOutOfMemory is returned.
func (p *Pool) ActivateBuffer(descriptor BufferDescriptor, scope ScopeIndex) (Attachment, error) {
	return p.place(AttachmentTypeBuffer, descriptor.ID, func(heap *AliasedHeap) (Attachment, error) {
		return heap.ActivateBuffer(descriptor, scope)
	})
}

// ActivateImage places an image in the first heap of the pool that holds its type and has room
// for it. If no heap has room, an error wrapping ErrOutOfMemory is returned.
func (p *Pool) ActivateImage(descriptor ImageDescriptor, scope ScopeIndex) (Attachment, error) {
	return p.place(descriptor.AttachmentType(), descriptor.ID, func(heap *AliasedHeap) (Attachment, error) {
		return heap.ActivateImage(descriptor, scope)
	})
}

func (p *Pool) owner(id AttachmentID) (*AliasedHeap, error) {
	heap, ok := p.owners.Get(id)
	if !ok {
		return nil, p.protocolViolation(protocolViolationf("attachment %q is not active in any heap of the pool", id))
	}

	return heap, nil
}

// DeactivateBuffer ends the lifetime of a buffer activated with ActivateBuffer
func (p *Pool) DeactivateBuffer(id AttachmentID, scope ScopeIndex) error {
	heap, err := p.owner(id)
	if err != nil {
		return err
	}

	err = heap.DeactivateBuffer(id, scope)
	if err != nil {
		return err
	}

	p.owners.Delete(id)
	return nil
}

// DeactivateImage ends the lifetime of an image activated with ActivateImage
func (p *Pool) DeactivateImage(id AttachmentID, scope ScopeIndex) error {
	heap, err := p.owner(id)
	if err != nil {
		return err
	}

	err = heap.DeactivateImage(id, scope)
	if err != nil {
		return err
	}

	p.owners.Delete(id)
	return nil
}

// End completes the frame in every heap. Every heap is ended even if an earlier one fails, and
// the errors of all heaps are combined.
func (p *Pool) End() error {
	var err error
	for _, heap := range p.heaps {
		endErr := heap.End()
		if endErr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(endErr, "failed to end heap %q", heap.descriptor.Name))
		}
	}

	return err
}

// GetStatistics returns the statistics of the most recently ended frame of every heap, in heap
// order
func (p *Pool) GetStatistics() ([]HeapStats, error) {
	stats := make([]HeapStats, 0, len(p.heaps))
	for _, heap := range p.heaps {
		heapStats, err := heap.GetStatistics()
		if err != nil {
			return nil, err
		}
		stats = append(stats, heapStats)
	}

	return stats, nil
}

// Barriers returns the aliasing barriers of the most recently ended frame of every heap, in heap
// order. Heaps never share memory, so no barrier crosses heaps.
func (p *Pool) Barriers() []AliasingBarrier {
	var barriers []AliasingBarrier
	for _, heap := range p.heaps {
		barriers = append(barriers, heap.Barriers()...)
	}

	return barriers
}

// Shutdown shuts down every heap in the pool
func (p *Pool) Shutdown() error {
	var err error
	for _, heap := range p.heaps {
		shutdownErr := heap.Shutdown()
		if shutdownErr != nil {
			err = errors.CombineErrors(err, shutdownErr)
		}
	}

	p.heaps = nil
	p.owners.Clear()
	return err
}
