package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/framegraph/memutils"
	"github.com/vkngwrapper/framegraph/transient"
)

const defaultImageAlignment = 256

type plannedHeap struct {
	name     string
	capacity uint64
}

type plannedResource struct {
	attachmentType transient.AttachmentType
	id             transient.AttachmentID
	offset         uint64
}

func (r *plannedResource) String() string {
	return fmt.Sprintf("%s %s@%d", r.attachmentType, r.id, r.offset)
}

// planningFactory stands in for a graphics device. Memory requirements are computed from the
// event being replayed and resources are plain records of what would have been created where.
type planningFactory struct {
	// replaying is the activation event currently being placed. An ID can be activated more than
	// once in a frame with different sizes, so requirements always come from this event.
	replaying *scriptEvent
	created   int
}

func newPlanningFactory() *planningFactory {
	return &planningFactory{}
}

func (f *planningFactory) ReserveHeapMemory(descriptor transient.HeapDescriptor) (transient.HeapMemory, error) {
	return &plannedHeap{name: descriptor.Name, capacity: descriptor.CapacityBytes}, nil
}

func (f *planningFactory) ReleaseHeapMemory(memory transient.HeapMemory) error {
	return nil
}

func (f *planningFactory) BufferMemoryRequirements(descriptor transient.BufferDescriptor) (core1_0.MemoryRequirements, error) {
	alignment := descriptor.Alignment
	if alignment == 0 {
		alignment = 1
	}

	return core1_0.MemoryRequirements{
		Size:           int(descriptor.Size),
		Alignment:      int(alignment),
		MemoryTypeBits: 1,
	}, nil
}

// imageSize is the size of the full mip chain of every layer and sample of an image
func imageSize(event *scriptEvent) int {
	size := 0
	width, height, depth := event.Width, event.Height, event.Depth

	for mip := 0; mip < event.MipLevels; mip++ {
		size += width * height * depth

		width = memutils.Max(width/2, 1)
		height = memutils.Max(height/2, 1)
		depth = memutils.Max(depth/2, 1)
	}

	return size * event.BytesPerTexel * event.ArrayLayers * event.Samples
}

func (f *planningFactory) ImageMemoryRequirements(descriptor transient.ImageDescriptor) (core1_0.MemoryRequirements, error) {
	event := f.replaying
	if event == nil || event.ID != descriptor.ID {
		return core1_0.MemoryRequirements{}, errors.Newf("image %q is not the event being replayed", descriptor.ID)
	}

	alignment := int(event.Alignment)
	if alignment == 0 {
		alignment = defaultImageAlignment
	}

	return core1_0.MemoryRequirements{
		Size:           imageSize(event),
		Alignment:      alignment,
		MemoryTypeBits: 1,
	}, nil
}

func (f *planningFactory) CreateBuffer(descriptor transient.BufferDescriptor, memory transient.HeapMemory, offset uint64) (transient.Resource, error) {
	f.created++
	return &plannedResource{attachmentType: transient.AttachmentTypeBuffer, id: descriptor.ID, offset: offset}, nil
}

func (f *planningFactory) CreateImage(descriptor transient.ImageDescriptor, memory transient.HeapMemory, offset uint64) (transient.Resource, error) {
	f.created++
	return &plannedResource{attachmentType: descriptor.AttachmentType(), id: descriptor.ID, offset: offset}, nil
}

func (f *planningFactory) DestroyResource(resource transient.Resource) error {
	return nil
}
