package transient

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/framegraph/memutils"
)

// HeapStats describes a single compiled frame of a heap
type HeapStats struct {
	Name             string
	HeapSizeBytes    uint64
	ResourceTypeMask AttachmentTypeMask
	CompileFlags     CompileFlags
	FrameIndex       uint64

	// WatermarkBytes is the highest byte offset occupied during the frame. A heap with this
	// capacity would have placed the frame identically.
	WatermarkBytes uint64
	// PeakActiveCount is the largest number of attachments active at once during the frame
	PeakActiveCount int
	BarrierCount    int

	CachedResources int
	CacheHits       int
	CacheMisses     int
	CacheEvictions  int

	// Attachments lists every attachment of the frame, sorted by ScopeOffsetMin and then
	// HeapOffsetMin. It is only populated for frames compiled with CompileGatherStatistics.
	Attachments []Attachment
}

// UsedBytes returns the number of bytes that would have been needed to place the frame's
// attachments without aliasing
func (s *HeapStats) UsedBytes() uint64 {
	var sum uint64
	for i := range s.Attachments {
		sum += s.Attachments[i].SizeBytes
	}

	return sum
}

// WriteJson populates a json object with these statistics
func (s *HeapStats) WriteJson(json *jwriter.ObjectState, detailed bool) {
	json.Name("Name").String(s.Name)
	json.Name("HeapSizeBytes").Int(int(s.HeapSizeBytes))
	json.Name("WatermarkBytes").Int(int(s.WatermarkBytes))
	json.Name("ResourceTypeMask").String(s.ResourceTypeMask.String())
	json.Name("CompileFlags").String(s.CompileFlags.String())
	json.Name("FrameIndex").Int(int(s.FrameIndex))
	json.Name("PeakActiveCount").Int(s.PeakActiveCount)
	json.Name("BarrierCount").Int(s.BarrierCount)

	cache := json.Name("Cache").Object()
	cache.Name("Resources").Int(s.CachedResources)
	cache.Name("Hits").Int(s.CacheHits)
	cache.Name("Misses").Int(s.CacheMisses)
	cache.Name("Evictions").Int(s.CacheEvictions)
	cache.End()

	if !detailed || len(s.Attachments) == 0 {
		return
	}

	json.Name("UnaliasedBytes").Int(int(s.UsedBytes()))

	attachments := json.Name("Attachments").Array()
	defer attachments.End()

	for i := range s.Attachments {
		obj := attachments.Object()
		s.Attachments[i].printParameters(&obj)
		obj.End()
	}
}

// AllocatorStatistics returns the current state of the heap's placement allocator. Between
// frames every byte is free.
func (h *AliasedHeap) AllocatorStatistics() memutils.DetailedStatistics {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var stats memutils.DetailedStatistics
	stats.Clear()

	if h.metadata != nil {
		h.metadata.AddDetailedStatistics(&stats)
	}

	return stats
}

// BuildStatsString returns a json document describing the heap's most recently compiled frame
// and the current state of its allocator. If detailed is true, every attachment of the frame and
// every region of the allocator is listed as well.
func (h *AliasedHeap) BuildStatsString(detailed bool) string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	writer := jwriter.NewWriter()
	root := writer.Object()

	frame := root.Name("Frame").Object()
	h.stats.WriteJson(&frame, detailed)
	frame.End()

	if h.metadata != nil {
		var allocatorStats memutils.DetailedStatistics
		allocatorStats.Clear()
		h.metadata.AddDetailedStatistics(&allocatorStats)

		allocator := root.Name("Allocator").Object()
		allocatorStats.WriteJson(&allocator)
		if detailed {
			block := allocator.Name("Block").Object()
			h.metadata.BlockJsonData(block)
			block.End()
		}
		allocator.End()
	}

	root.End()
	return string(writer.Bytes())
}
