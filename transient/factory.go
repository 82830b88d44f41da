package transient

import (
	"github.com/vkngwrapper/core/v2/core1_0"
)

//go:generate mockgen -source factory.go -destination ./mocks/factory.go -package mocks

// HeapMemory is the platform memory object backing a heap, as returned by
// ResourceFactory.ReserveHeapMemory
type HeapMemory any

// Resource is a platform buffer or image placed in heap memory. Resource values are compared
// with ==, so they must be comparable, which platform handles (pointers, interfaces
// implemented by pointers, integer handles) always are.
type Resource any

// ResourceFactory is the bridge between a heap and the graphics platform. A heap never creates
// platform objects on its own: every piece of memory it reserves and every resource it places
// comes from its factory.
type ResourceFactory interface {
	// ReserveHeapMemory creates the memory object that backs an entire heap
	ReserveHeapMemory(descriptor HeapDescriptor) (HeapMemory, error)
	// ReleaseHeapMemory destroys memory created by ReserveHeapMemory
	ReleaseHeapMemory(memory HeapMemory) error

	BufferMemoryRequirements(descriptor BufferDescriptor) (core1_0.MemoryRequirements, error)
	ImageMemoryRequirements(descriptor ImageDescriptor) (core1_0.MemoryRequirements, error)

	// CreateBuffer creates a buffer placed at offset within the heap memory
	CreateBuffer(descriptor BufferDescriptor, memory HeapMemory, offset uint64) (Resource, error)
	// CreateImage creates an image placed at offset within the heap memory
	CreateImage(descriptor ImageDescriptor, memory HeapMemory, offset uint64) (Resource, error)
	// DestroyResource destroys a resource created by CreateBuffer or CreateImage
	DestroyResource(resource Resource) error
}
