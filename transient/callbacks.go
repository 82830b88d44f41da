package transient

// BarrierCallback is called each time a heap records an aliasing barrier
type BarrierCallback func(
	heap *AliasedHeap,
	barrier AliasingBarrier,
	userData interface{},
)

// ResourceCallback is called each time a heap creates a platform resource
type ResourceCallback func(
	heap *AliasedHeap,
	attachmentType AttachmentType,
	resource Resource,
	heapOffset uint64,
	userData interface{},
)

// HeapCallbackOptions is an optional set of callbacks that a heap executes as it compiles frames.
// They can be used to submit barriers to the platform as they are found or to track resource
// churn.
type HeapCallbackOptions struct {
	Barrier        BarrierCallback
	CreateResource ResourceCallback
	UserData       interface{}
}

type heapCallbacks struct {
	Callbacks *HeapCallbackOptions
	Heap      *AliasedHeap
}

func (c *heapCallbacks) Barrier(barrier AliasingBarrier) {
	if c.Callbacks != nil && c.Callbacks.Barrier != nil {
		c.Callbacks.Barrier(c.Heap, barrier, c.Callbacks.UserData)
	}
}

func (c *heapCallbacks) CreateResource(attachmentType AttachmentType, resource Resource, heapOffset uint64) {
	if c.Callbacks != nil && c.Callbacks.CreateResource != nil {
		c.Callbacks.CreateResource(c.Heap, attachmentType, resource, heapOffset, c.Callbacks.UserData)
	}
}
