package transient

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/framegraph/memutils/metadata"
)

// Attachment is a resource placed in a heap for part of a frame. It is created by one of the
// AliasedHeap.Activate methods and its lifetime is completed by the matching Deactivate method.
// Attachments only exist between AliasedHeap.Begin and AliasedHeap.End.
type Attachment struct {
	ID   AttachmentID
	Type AttachmentType

	// HeapOffsetMin is the first byte of the heap occupied by this attachment
	HeapOffsetMin uint64
	// HeapOffsetMax is one past the last byte of the heap occupied by this attachment
	HeapOffsetMax uint64
	SizeBytes     uint64

	// ScopeOffsetMin is the scope this attachment was activated in
	ScopeOffsetMin ScopeIndex
	// ScopeOffsetMax is the scope this attachment was deactivated in. It is only valid once
	// the attachment has been deactivated.
	ScopeOffsetMax ScopeIndex

	// Resource is the platform resource placed at HeapOffsetMin. It is nil for frames compiled
	// with CompileDontAllocateResources.
	Resource Resource

	address    metadata.VirtualAddress
	cacheEntry *cacheEntry
}

// OverlapsBytes returns true if the two attachments claim any of the same bytes
func (a *Attachment) OverlapsBytes(other *Attachment) bool {
	return a.HeapOffsetMin < other.HeapOffsetMax && other.HeapOffsetMin < a.HeapOffsetMax
}

// OverlapsScopes returns true if the two attachments are alive during any of the same scopes
func (a *Attachment) OverlapsScopes(other *Attachment) bool {
	return a.ScopeOffsetMin <= other.ScopeOffsetMax && other.ScopeOffsetMin <= a.ScopeOffsetMax
}

func (a *Attachment) printParameters(json *jwriter.ObjectState) {
	json.Name("ID").String(string(a.ID))
	json.Name("Type").String(a.Type.String())
	json.Name("HeapOffsetMin").Int(int(a.HeapOffsetMin))
	json.Name("HeapOffsetMax").Int(int(a.HeapOffsetMax))
	json.Name("SizeBytes").Int(int(a.SizeBytes))
	json.Name("ScopeOffsetMin").Int(int(a.ScopeOffsetMin))
	json.Name("ScopeOffsetMax").Int(int(a.ScopeOffsetMax))
}
