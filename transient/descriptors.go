package transient

import (
	"github.com/vkngwrapper/core/v2/core1_0"
)

// ScopeIndex is the ordinal of a pass within a frame. Scopes increase monotonically as the frame
// is compiled.
type ScopeIndex uint64

// AttachmentID names an attachment uniquely among the attachments active in a heap
type AttachmentID string

// BufferDescriptor describes a transient buffer
type BufferDescriptor struct {
	ID AttachmentID
	// Size is the size of the buffer in bytes. The heap may place it in a larger range if the
	// factory reports larger memory requirements.
	Size uint64
	// Alignment is an optional minimum alignment for the buffer's placement. If it is 0, only
	// the factory's requirements and the heap's own alignment are used
	Alignment uint64
	Usage     core1_0.BufferUsageFlags
}

// ImageDescriptor describes a transient image
type ImageDescriptor struct {
	ID          AttachmentID
	Format      core1_0.Format
	Extent      core1_0.Extent3D
	MipLevels   int
	ArrayLayers int
	Samples     core1_0.SampleCountFlags
	Usage       core1_0.ImageUsageFlags
}

const renderTargetUsage = core1_0.ImageUsageColorAttachment | core1_0.ImageUsageDepthStencilAttachment

// AttachmentType reports whether the image is an ordinary image or a render target. Any image
// usable as a color or depth-stencil attachment is a render target.
func (d ImageDescriptor) AttachmentType() AttachmentType {
	if d.Usage&renderTargetUsage != 0 {
		return AttachmentTypeRenderTarget
	}

	return AttachmentTypeImage
}

// bufferCacheDescriptor is the part of a BufferDescriptor that determines which resource is
// created. Two descriptors that only differ by ID can share a cached resource.
type bufferCacheDescriptor struct {
	Size      uint64
	Alignment uint64
	Usage     core1_0.BufferUsageFlags
}

func (d BufferDescriptor) cacheDescriptor() bufferCacheDescriptor {
	return bufferCacheDescriptor{
		Size:      d.Size,
		Alignment: d.Alignment,
		Usage:     d.Usage,
	}
}

type imageCacheDescriptor struct {
	Format      core1_0.Format
	Extent      core1_0.Extent3D
	MipLevels   int
	ArrayLayers int
	Samples     core1_0.SampleCountFlags
	Usage       core1_0.ImageUsageFlags
}

func (d ImageDescriptor) cacheDescriptor() imageCacheDescriptor {
	return imageCacheDescriptor{
		Format:      d.Format,
		Extent:      d.Extent,
		MipLevels:   d.MipLevels,
		ArrayLayers: d.ArrayLayers,
		Samples:     d.Samples,
		Usage:       d.Usage,
	}
}
