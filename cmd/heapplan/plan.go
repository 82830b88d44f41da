package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/framegraph/memutils"
	"github.com/vkngwrapper/framegraph/transient"
	"golang.org/x/exp/slog"
)

// suggestionCapacity is the capacity of the heap used to measure a frame that may not fit in
// the heap the script asked for
const suggestionCapacity uint64 = 1 << 62

func heapDescriptor(script frameScript) transient.HeapDescriptor {
	descriptor := transient.HeapDescriptor{
		Name:             script.Heap.Name,
		CapacityBytes:    script.Heap.Capacity,
		AlignmentBytes:   script.Heap.Alignment,
		ResourceTypeMask: script.Heap.Types,
		CacheCapacity:    script.Heap.CacheCapacity,
	}

	if descriptor.Name == "" {
		descriptor.Name = "heap"
	}
	if capacityOverride > 0 {
		descriptor.CapacityBytes = capacityOverride
	}
	if alignmentOverride > 0 {
		descriptor.AlignmentBytes = alignmentOverride
	}

	return descriptor
}

func newLogger() *slog.Logger {
	if !logViolations {
		return nil
	}

	return slog.New(slog.NewTextHandler(os.Stderr))
}

// compileFrame replays the script's events against a new heap and returns it after the frame
// has ended
func compileFrame(script frameScript, descriptor transient.HeapDescriptor, flags transient.CompileFlags) (*transient.AliasedHeap, error) {
	factory := newPlanningFactory()
	heap, err := transient.NewAliasedHeap(newLogger(), factory, descriptor)
	if err != nil {
		return nil, err
	}

	err = heap.Begin(flags)
	if err != nil {
		return nil, err
	}

	images := make(map[transient.AttachmentID]bool)
	for index := range script.Events {
		event := &script.Events[index]
		factory.replaying = event

		switch event.Op {
		case opActivateBuffer:
			images[event.ID] = false
			_, err = heap.ActivateBuffer(event.bufferDescriptor(), event.Scope)
		case opActivateImage:
			images[event.ID] = true
			_, err = heap.ActivateImage(event.imageDescriptor(), event.Scope)
		case opDeactivate:
			if images[event.ID] {
				err = heap.DeactivateImage(event.ID, event.Scope)
			} else {
				err = heap.DeactivateBuffer(event.ID, event.Scope)
			}
		}

		if err != nil {
			return nil, errors.Wrapf(err, "event %d: %s %q at scope %d", index, event.Op, event.ID, event.Scope)
		}
	}

	err = heap.End()
	if err != nil {
		return nil, err
	}

	return heap, nil
}

// suggestCapacity measures the frame in a heap large enough to hold anything and returns the
// smallest capacity that would have held it with the same placements
func suggestCapacity(script frameScript, descriptor transient.HeapDescriptor) (uint64, error) {
	descriptor.CapacityBytes = suggestionCapacity
	heap, err := compileFrame(script, descriptor, transient.CompileDontAllocateResources)
	if err != nil {
		return 0, err
	}

	stats, err := heap.GetStatistics()
	if err != nil {
		return 0, err
	}

	alignment := heap.Descriptor().AlignmentBytes
	return memutils.AlignUp(stats.WatermarkBytes, alignment), nil
}

func runPlan(out io.Writer, path string) error {
	script, err := loadScript(path)
	if err != nil {
		return err
	}

	descriptor := heapDescriptor(script)

	var suggested uint64
	if suggest {
		suggested, err = suggestCapacity(script, descriptor)
		if err != nil {
			return err
		}

		if descriptor.CapacityBytes == 0 {
			descriptor.CapacityBytes = suggested
		}
	}

	flags := transient.CompileGatherStatistics
	if !showBarriers {
		flags |= transient.CompileDontAllocateResources
	}

	heap, err := compileFrame(script, descriptor, flags)
	if err != nil && suggest && errors.Is(err, transient.ErrOutOfMemory) {
		fmt.Fprintf(out, "Suggested capacity: %d bytes\n", suggested)
		return errors.Wrapf(err, "frame does not fit in %d bytes", descriptor.CapacityBytes)
	} else if err != nil {
		return err
	}

	if jsonOut {
		fmt.Fprintln(out, heap.BuildStatsString(detailed))
		if suggest {
			fmt.Fprintln(out, suggestionJson(suggested))
		}
		return nil
	}

	stats, err := heap.GetStatistics()
	if err != nil {
		return err
	}

	printStats(out, &stats)
	if suggest {
		fmt.Fprintf(out, "Suggested capacity: %d bytes\n", suggested)
	}
	if showBarriers {
		printBarriers(out, heap.Barriers())
	}

	return nil
}

func suggestionJson(suggested uint64) string {
	writer := jwriter.NewWriter()
	obj := writer.Object()
	obj.Name("SuggestedCapacityBytes").Int(int(suggested))
	obj.End()

	return string(writer.Bytes())
}

func printStats(out io.Writer, stats *transient.HeapStats) {
	fmt.Fprintf(out, "Heap: %s\n", stats.Name)
	fmt.Fprintf(out, "Capacity: %d bytes\n", stats.HeapSizeBytes)
	fmt.Fprintf(out, "Watermark: %d bytes\n", stats.WatermarkBytes)
	fmt.Fprintf(out, "Unaliased: %d bytes\n", stats.UsedBytes())
	fmt.Fprintf(out, "Peak active attachments: %d\n", stats.PeakActiveCount)

	fmt.Fprintf(out, "Attachments (%d):\n", len(stats.Attachments))
	for _, attachment := range stats.Attachments {
		fmt.Fprintf(out, "  %-24s %-12s bytes [%d, %d) scopes [%d, %d]\n",
			attachment.ID,
			attachment.Type,
			attachment.HeapOffsetMin,
			attachment.HeapOffsetMax,
			attachment.ScopeOffsetMin,
			attachment.ScopeOffsetMax,
		)
	}
}

func printBarriers(out io.Writer, barriers []transient.AliasingBarrier) {
	fmt.Fprintf(out, "Barriers (%d):\n", len(barriers))
	for _, barrier := range barriers {
		fmt.Fprintf(out, "  before scope %d: %s -> %s bytes [%d, %d)\n",
			barrier.ToScope,
			barrier.From,
			barrier.To,
			barrier.HeapOffsetMin,
			barrier.HeapOffsetMax,
		)
	}
}
