package transient

import (
	"github.com/vkngwrapper/core/v2/common"
)

// HeapCreateFlags indicate specific heap behaviors to activate or deactivate
type HeapCreateFlags int32

var heapCreateFlagsMapping = common.NewFlagStringMapping[HeapCreateFlags]()

func (f HeapCreateFlags) Register(str string) {
	heapCreateFlagsMapping.Register(f, str)
}
func (f HeapCreateFlags) String() string {
	return heapCreateFlagsMapping.FlagsToString(f)
}

const (
	// HeapCreateInternallySynchronized guards every public method of the heap with an internal
	// lock, so that statistics can be read from another goroutine while a frame is compiled.
	// Heaps without this flag must only be used from one goroutine at a time.
	HeapCreateInternallySynchronized HeapCreateFlags = 1 << iota
)

func init() {
	HeapCreateInternallySynchronized.Register("HeapCreateInternallySynchronized")
}

// CompileFlags alter how a single frame is compiled. They are passed to AliasedHeap.Begin
type CompileFlags int32

var compileFlagsMapping = common.NewFlagStringMapping[CompileFlags]()

func (f CompileFlags) Register(str string) {
	compileFlagsMapping.Register(f, str)
}
func (f CompileFlags) String() string {
	return compileFlagsMapping.FlagsToString(f)
}

const (
	// CompileGatherStatistics records every attachment placed during the frame so that it can be
	// retrieved with AliasedHeap.GetStatistics after End
	CompileGatherStatistics CompileFlags = 1 << iota
	// CompileDontAllocateResources runs the frame as a dry run: placements, watermark and statistics
	// are computed, but no resources are created or looked up in the cache and no aliasing barriers
	// are produced. This is used to measure how large a heap needs to be.
	CompileDontAllocateResources
)

func init() {
	CompileGatherStatistics.Register("CompileGatherStatistics")
	CompileDontAllocateResources.Register("CompileDontAllocateResources")
}

// AttachmentType is the kind of resource an attachment holds
type AttachmentType int32

const (
	AttachmentTypeBuffer AttachmentType = iota
	AttachmentTypeImage
	// AttachmentTypeRenderTarget is an image that is used as a color or depth-stencil attachment
	AttachmentTypeRenderTarget
)

var attachmentTypeMapping = map[AttachmentType]string{
	AttachmentTypeBuffer:       "Buffer",
	AttachmentTypeImage:        "Image",
	AttachmentTypeRenderTarget: "RenderTarget",
}

func (t AttachmentType) String() string {
	return attachmentTypeMapping[t]
}

// Mask returns the AttachmentTypeMask bit that corresponds to this type
func (t AttachmentType) Mask() AttachmentTypeMask {
	return AttachmentTypeMask(1) << AttachmentTypeMask(t)
}

// AttachmentTypeMask is a set of attachment types. Each heap declares which types it is willing
// to hold
type AttachmentTypeMask int32

var attachmentTypeMaskMapping = common.NewFlagStringMapping[AttachmentTypeMask]()

func (f AttachmentTypeMask) Register(str string) {
	attachmentTypeMaskMapping.Register(f, str)
}
func (f AttachmentTypeMask) String() string {
	return attachmentTypeMaskMapping.FlagsToString(f)
}

// Contains returns true if the attachment type's bit is set in this mask
func (f AttachmentTypeMask) Contains(attachmentType AttachmentType) bool {
	return f&attachmentType.Mask() != 0
}

const (
	AttachmentTypeMaskBuffer AttachmentTypeMask = 1 << iota
	AttachmentTypeMaskImage
	AttachmentTypeMaskRenderTarget

	AttachmentTypeMaskAll = AttachmentTypeMaskBuffer | AttachmentTypeMaskImage | AttachmentTypeMaskRenderTarget
)

func init() {
	AttachmentTypeMaskBuffer.Register("Buffer")
	AttachmentTypeMaskImage.Register("Image")
	AttachmentTypeMaskRenderTarget.Register("RenderTarget")
}
