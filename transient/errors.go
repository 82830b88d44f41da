package transient

import (
	"github.com/cockroachdb/errors"
)

// ErrOutOfMemory is returned when an attachment does not fit in the heap's free space. It is
// recoverable: the heap is left exactly as it was before the call.
var ErrOutOfMemory = errors.New("transient heap is out of memory")

// ErrInitialization is returned when a heap cannot be initialized, either because its descriptor
// is invalid or because the factory could not reserve heap memory.
var ErrInitialization = errors.New("transient heap could not be initialized")

// ErrProtocolViolation marks every error caused by the caller breaking the heap's usage contract:
// calling a method in the wrong state, deactivating an unknown attachment, reusing bytes while
// their previous occupant is still alive, and so on. Test with errors.Is.
var ErrProtocolViolation = errors.New("transient heap protocol violation")

// ErrCacheOverrun is returned when a new resource must be cached but every cached resource is
// still in use by an active attachment. It is always also marked as ErrProtocolViolation.
var ErrCacheOverrun = errors.New("transient heap resource cache overrun")

func protocolViolationf(format string, args ...any) error {
	return errors.Mark(errors.AssertionFailedf(format, args...), ErrProtocolViolation)
}
