package metadata

import "math"

// VirtualAddress is an opaque handle for a live range handed out by a BlockMetadata. For the
// metadata implementations in this package it is the byte offset of the range.
type VirtualAddress uint64

const (
	// NullAddress is returned from Allocate when no free range is large enough for the request
	NullAddress VirtualAddress = math.MaxUint64
)

// Offset returns the byte offset of the range that this address identifies
func (a VirtualAddress) Offset() uint64 {
	return uint64(a)
}

// IsNull returns true if this address is the NullAddress sentinel
func (a VirtualAddress) IsNull() bool {
	return a == NullAddress
}

// Suballocation describes a single live range within a block
type Suballocation struct {
	Offset   uint64
	Size     uint64
	UserData any
}
