package transient_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/framegraph/transient"
	"github.com/vkngwrapper/framegraph/transient/mocks"
	"go.uber.org/mock/gomock"
)

type fakeHeapMemory struct {
	name string
}

type fakeResource struct {
	kind   string
	id     transient.AttachmentID
	offset uint64
}

func (r *fakeResource) String() string {
	return fmt.Sprintf("%s %s@%d", r.kind, r.id, r.offset)
}

type HeapSetup struct {
	Descriptor transient.HeapDescriptor

	// ImageSizes gives the memory requirement size for each image ID. Images not listed are
	// 256 bytes.
	ImageSizes map[transient.AttachmentID]int
	// ImageAlignment is the memory requirement alignment of every image
	ImageAlignment int
}

type readyHeapResult struct {
	Heap    *transient.AliasedHeap
	Factory *mocks.MockResourceFactory
	Memory  *fakeHeapMemory

	// Created lists every resource the factory created, in order
	Created *[]*fakeResource
}

// readyHeap creates an initialized heap backed by a mock factory that creates a new fakeResource
// for every CreateBuffer and CreateImage call and destroys resources without error
func readyHeap(t *testing.T, ctrl *gomock.Controller, setup HeapSetup) readyHeapResult {
	factory := mocks.NewMockResourceFactory(ctrl)
	memory := &fakeHeapMemory{name: setup.Descriptor.Name}
	created := &[]*fakeResource{}

	factory.EXPECT().ReserveHeapMemory(gomock.Any()).Return(memory, nil)

	factory.EXPECT().BufferMemoryRequirements(gomock.Any()).AnyTimes().DoAndReturn(
		func(descriptor transient.BufferDescriptor) (core1_0.MemoryRequirements, error) {
			return core1_0.MemoryRequirements{
				Size:           int(descriptor.Size),
				Alignment:      1,
				MemoryTypeBits: 1,
			}, nil
		})

	factory.EXPECT().ImageMemoryRequirements(gomock.Any()).AnyTimes().DoAndReturn(
		func(descriptor transient.ImageDescriptor) (core1_0.MemoryRequirements, error) {
			size, ok := setup.ImageSizes[descriptor.ID]
			if !ok {
				size = 256
			}

			alignment := setup.ImageAlignment
			if alignment == 0 {
				alignment = 1
			}

			return core1_0.MemoryRequirements{
				Size:           size,
				Alignment:      alignment,
				MemoryTypeBits: 1,
			}, nil
		})

	factory.EXPECT().CreateBuffer(gomock.Any(), memory, gomock.Any()).AnyTimes().DoAndReturn(
		func(descriptor transient.BufferDescriptor, _ transient.HeapMemory, offset uint64) (transient.Resource, error) {
			resource := &fakeResource{kind: "buffer", id: descriptor.ID, offset: offset}
			*created = append(*created, resource)
			return resource, nil
		})

	factory.EXPECT().CreateImage(gomock.Any(), memory, gomock.Any()).AnyTimes().DoAndReturn(
		func(descriptor transient.ImageDescriptor, _ transient.HeapMemory, offset uint64) (transient.Resource, error) {
			resource := &fakeResource{kind: "image", id: descriptor.ID, offset: offset}
			*created = append(*created, resource)
			return resource, nil
		})

	heap, err := transient.NewAliasedHeap(nil, factory, setup.Descriptor)
	require.NoError(t, err)

	return readyHeapResult{
		Heap:    heap,
		Factory: factory,
		Memory:  memory,
		Created: created,
	}
}

func buffer(id transient.AttachmentID, size uint64) transient.BufferDescriptor {
	return transient.BufferDescriptor{
		ID:    id,
		Size:  size,
		Usage: core1_0.BufferUsageStorageBuffer,
	}
}

func image(id transient.AttachmentID, usage core1_0.ImageUsageFlags) transient.ImageDescriptor {
	return transient.ImageDescriptor{
		ID:     id,
		Format: core1_0.FormatA1R5G5B5UnsignedNormalizedPacked,
		Extent: core1_0.Extent3D{
			Width:  16,
			Height: 8,
			Depth:  1,
		},
		MipLevels:   1,
		ArrayLayers: 1,
		Usage:       usage,
	}
}
