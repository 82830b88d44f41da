package transient

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/maphash"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"
)

const defaultCacheCapacity = 64

// cacheKey identifies a cached resource by what it is and where it is placed. Identical
// descriptors placed at different offsets are different resources.
type cacheKey struct {
	attachmentType AttachmentType
	descriptorHash uint64
	heapOffset     uint64
}

type cacheEntry struct {
	key cacheKey
	// descriptor is the bufferCacheDescriptor or imageCacheDescriptor the resource was created
	// from, used to reject hash collisions
	descriptor any
	resource   Resource

	// references is the number of active attachments using this resource
	references int

	prevEntry *cacheEntry
	nextEntry *cacheEntry
}

// resourceCache is a fixed-capacity cache of placed resources. Entries are kept in a list from
// most to least recently used, and entries referenced by active attachments are never evicted.
type resourceCache struct {
	logger   *slog.Logger
	factory  ResourceFactory
	capacity int

	entries *swiss.Map[cacheKey, *cacheEntry]

	// head is the most recently used entry, tail is the least
	head *cacheEntry
	tail *cacheEntry

	bufferHasher maphash.Hasher[bufferCacheDescriptor]
	imageHasher  maphash.Hasher[imageCacheDescriptor]

	hits      int
	misses    int
	evictions int
}

func (c *resourceCache) Init(logger *slog.Logger, factory ResourceFactory, capacity int) {
	if capacity == 0 {
		capacity = defaultCacheCapacity
	}

	c.logger = logger
	c.factory = factory
	c.capacity = capacity
	c.entries = swiss.NewMap[cacheKey, *cacheEntry](uint32(capacity))
	c.bufferHasher = maphash.NewHasher[bufferCacheDescriptor]()
	c.imageHasher = maphash.NewHasher[imageCacheDescriptor]()
}

func (c *resourceCache) Capacity() int {
	return c.capacity
}

func (c *resourceCache) Count() int {
	return c.entries.Count()
}

func (c *resourceCache) bufferKey(descriptor BufferDescriptor, offset uint64) (cacheKey, any) {
	cacheDescriptor := descriptor.cacheDescriptor()
	return cacheKey{
		attachmentType: AttachmentTypeBuffer,
		descriptorHash: c.bufferHasher.Hash(cacheDescriptor),
		heapOffset:     offset,
	}, cacheDescriptor
}

func (c *resourceCache) imageKey(descriptor ImageDescriptor, offset uint64) (cacheKey, any) {
	cacheDescriptor := descriptor.cacheDescriptor()
	return cacheKey{
		attachmentType: descriptor.AttachmentType(),
		descriptorHash: c.imageHasher.Hash(cacheDescriptor),
		heapOffset:     offset,
	}, cacheDescriptor
}

// Find retrieves the entry for a key and marks it as most recently used. Nil is returned if
// there is no entry, or if the entry under the key was created from a different descriptor.
func (c *resourceCache) Find(key cacheKey, descriptor any) *cacheEntry {
	entry, ok := c.entries.Get(key)
	if !ok || entry.descriptor != descriptor {
		c.misses++
		return nil
	}

	c.hits++
	c.unlink(entry)
	c.pushFront(entry)
	return entry
}

// CheckInsert verifies that an entry could be inserted under key without exceeding the cache's
// capacity, evicting nothing. It allows a caller to fail before creating a resource that could
// not be cached.
func (c *resourceCache) CheckInsert(key cacheKey) error {
	existing, exists := c.entries.Get(key)
	if exists {
		if existing.references > 0 {
			return c.overrun()
		}
		return nil
	}

	if c.entries.Count() < c.capacity {
		return nil
	}

	if c.evictionCandidate() == nil {
		return c.overrun()
	}

	return nil
}

func (c *resourceCache) overrun() error {
	return errors.Mark(
		errors.Wrapf(ErrCacheOverrun, "all %d cached resources are referenced by active attachments", c.entries.Count()),
		ErrProtocolViolation,
	)
}

func (c *resourceCache) evictionCandidate() *cacheEntry {
	for entry := c.tail; entry != nil; entry = entry.prevEntry {
		if entry.references == 0 {
			return entry
		}
	}

	return nil
}

// Insert adds a new resource under key as the most recently used entry, evicting the least
// recently used unreferenced entry if the cache is full. An entry left under the same key by a
// hash collision is replaced.
func (c *resourceCache) Insert(key cacheKey, descriptor any, resource Resource) (*cacheEntry, error) {
	err := c.CheckInsert(key)
	if err != nil {
		return nil, err
	}

	existing, exists := c.entries.Get(key)
	if exists {
		c.evict(existing)
	} else if c.entries.Count() >= c.capacity {
		c.evict(c.evictionCandidate())
	}

	entry := &cacheEntry{
		key:        key,
		descriptor: descriptor,
		resource:   resource,
	}
	c.entries.Put(key, entry)
	c.pushFront(entry)

	return entry, nil
}

func (c *resourceCache) Acquire(entry *cacheEntry) {
	entry.references++
}

func (c *resourceCache) Release(entry *cacheEntry) {
	if entry.references <= 0 {
		panic("released a cached resource that was not referenced")
	}
	entry.references--
}

func (c *resourceCache) evict(entry *cacheEntry) {
	c.unlink(entry)
	c.entries.Delete(entry.key)
	c.evictions++

	err := c.factory.DestroyResource(entry.resource)
	if err != nil {
		c.logger.LogAttrs(context.Background(), slog.LevelError, "failed to destroy evicted resource",
			slog.String("type", entry.key.attachmentType.String()),
			slog.Uint64("heapOffset", entry.key.heapOffset),
			slog.Any("error", err),
		)
	}
}

// Clear destroys every cached resource. It must not be called while any entry is referenced.
func (c *resourceCache) Clear() error {
	var err error
	for entry := c.head; entry != nil; entry = entry.nextEntry {
		if entry.references > 0 {
			err = errors.CombineErrors(err, errors.AssertionFailedf("cached resource at offset %d is still referenced by %d attachments", entry.key.heapOffset, entry.references))
			continue
		}

		destroyErr := c.factory.DestroyResource(entry.resource)
		if destroyErr != nil {
			err = errors.CombineErrors(err, destroyErr)
		}
	}

	c.entries.Clear()
	c.head = nil
	c.tail = nil

	return err
}

// ResetCounters zeroes the hit, miss and eviction counts
func (c *resourceCache) ResetCounters() {
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}

func (c *resourceCache) Validate() error {
	listCount := 0
	var prev *cacheEntry
	for entry := c.head; entry != nil; entry = entry.nextEntry {
		if entry.prevEntry != prev {
			return errors.AssertionFailedf("cache entry at offset %d has a broken back-link", entry.key.heapOffset)
		}

		mapped, ok := c.entries.Get(entry.key)
		if !ok || mapped != entry {
			return errors.AssertionFailedf("cache entry at offset %d is in the list but not the map", entry.key.heapOffset)
		}

		if entry.references < 0 {
			return errors.AssertionFailedf("cache entry at offset %d has a negative reference count", entry.key.heapOffset)
		}

		listCount++
		prev = entry
	}

	if prev != c.tail {
		return errors.AssertionFailedf("cache list tail does not match the last entry")
	}

	if listCount != c.entries.Count() {
		return errors.AssertionFailedf("cache list holds %d entries but the map holds %d", listCount, c.entries.Count())
	}

	if listCount > c.capacity {
		return errors.AssertionFailedf("cache holds %d entries but its capacity is %d", listCount, c.capacity)
	}

	return nil
}

func (c *resourceCache) pushFront(entry *cacheEntry) {
	entry.prevEntry = nil
	entry.nextEntry = c.head

	if c.head != nil {
		c.head.prevEntry = entry
	}
	c.head = entry

	if c.tail == nil {
		c.tail = entry
	}
}

func (c *resourceCache) unlink(entry *cacheEntry) {
	if entry.prevEntry != nil {
		entry.prevEntry.nextEntry = entry.nextEntry
	} else {
		c.head = entry.nextEntry
	}

	if entry.nextEntry != nil {
		entry.nextEntry.prevEntry = entry.prevEntry
	} else {
		c.tail = entry.prevEntry
	}

	entry.prevEntry = nil
	entry.nextEntry = nil
}
