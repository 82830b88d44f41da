package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/framegraph/transient"
)

const (
	opActivateBuffer = "activateBuffer"
	opActivateImage  = "activateImage"
	opDeactivate     = "deactivate"
)

var bufferUsages = map[string]core1_0.BufferUsageFlags{
	"TransferSrc":   core1_0.BufferUsageTransferSrc,
	"TransferDst":   core1_0.BufferUsageTransferDst,
	"UniformBuffer": core1_0.BufferUsageUniformBuffer,
	"StorageBuffer": core1_0.BufferUsageStorageBuffer,
}

var imageUsages = map[string]core1_0.ImageUsageFlags{
	"TransferSrc":            core1_0.ImageUsageTransferSrc,
	"TransferDst":            core1_0.ImageUsageTransferDst,
	"Sampled":                core1_0.ImageUsageSampled,
	"Storage":                core1_0.ImageUsageStorage,
	"ColorAttachment":        core1_0.ImageUsageColorAttachment,
	"DepthStencilAttachment": core1_0.ImageUsageDepthStencilAttachment,
	"TransientAttachment":    core1_0.ImageUsageTransientAttachment,
}

var attachmentTypeNames = map[string]transient.AttachmentTypeMask{
	"Buffer":       transient.AttachmentTypeMaskBuffer,
	"Image":        transient.AttachmentTypeMaskImage,
	"RenderTarget": transient.AttachmentTypeMaskRenderTarget,
}

type scriptHeap struct {
	Name          string
	Capacity      uint64
	Alignment     uint64
	Types         transient.AttachmentTypeMask
	CacheCapacity int
}

type scriptEvent struct {
	Op    string
	ID    transient.AttachmentID
	Scope transient.ScopeIndex

	Size      uint64
	Alignment uint64
	Usage     []string

	Width         int
	Height        int
	Depth         int
	MipLevels     int
	ArrayLayers   int
	Samples       int
	BytesPerTexel int
}

// frameScript is a recorded frame: the heap it should be compiled into and the ordered
// activations and deactivations of its attachments
type frameScript struct {
	Heap   scriptHeap
	Events []scriptEvent
}

func loadScript(path string) (frameScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return frameScript{}, errors.Wrapf(err, "failed to read frame script %s", path)
	}

	return parseScript(data)
}

func readUint64(r *jreader.Reader, field string) uint64 {
	value := r.Int()
	if value < 0 {
		r.AddError(errors.Newf("%s must not be negative, got %d", field, value))
		return 0
	}

	return uint64(value)
}

func readStrings(r *jreader.Reader) []string {
	var values []string
	for arr := r.Array(); arr.Next(); {
		values = append(values, r.String())
	}

	return values
}

func parseHeap(r *jreader.Reader) scriptHeap {
	var heap scriptHeap

	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "name":
			heap.Name = r.String()
		case "capacity":
			heap.Capacity = readUint64(r, "heap capacity")
		case "alignment":
			heap.Alignment = readUint64(r, "heap alignment")
		case "cacheCapacity":
			heap.CacheCapacity = r.Int()
		case "types":
			for _, name := range readStrings(r) {
				mask, ok := attachmentTypeNames[name]
				if !ok {
					r.AddError(errors.Newf("unknown attachment type %q", name))
					continue
				}
				heap.Types |= mask
			}
		default:
			_ = r.SkipValue()
		}
	}

	return heap
}

func parseEvent(r *jreader.Reader) scriptEvent {
	var event scriptEvent

	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "op":
			event.Op = r.String()
		case "id":
			event.ID = transient.AttachmentID(r.String())
		case "scope":
			event.Scope = transient.ScopeIndex(readUint64(r, "scope"))
		case "size":
			event.Size = readUint64(r, "size")
		case "alignment":
			event.Alignment = readUint64(r, "alignment")
		case "usage":
			event.Usage = readStrings(r)
		case "width":
			event.Width = r.Int()
		case "height":
			event.Height = r.Int()
		case "depth":
			event.Depth = r.Int()
		case "mipLevels":
			event.MipLevels = r.Int()
		case "arrayLayers":
			event.ArrayLayers = r.Int()
		case "samples":
			event.Samples = r.Int()
		case "bytesPerTexel":
			event.BytesPerTexel = r.Int()
		default:
			_ = r.SkipValue()
		}
	}

	return event
}

func parseScript(data []byte) (frameScript, error) {
	var script frameScript

	r := jreader.NewReader(data)
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "heap":
			script.Heap = parseHeap(&r)
		case "events":
			for arr := r.Array(); arr.Next(); {
				script.Events = append(script.Events, parseEvent(&r))
			}
		default:
			_ = r.SkipValue()
		}
	}

	if err := r.Error(); err != nil {
		return frameScript{}, errors.Wrap(err, "failed to parse frame script")
	}

	for index := range script.Events {
		err := script.Events[index].normalize()
		if err != nil {
			return frameScript{}, errors.Wrapf(err, "event %d", index)
		}
	}

	return script, nil
}

// normalize checks the event and fills in image defaults so that a minimal event describes a
// single-sampled 2D image with one mip and one layer
func (e *scriptEvent) normalize() error {
	if e.ID == "" {
		return errors.New("event has no id")
	}

	switch e.Op {
	case opActivateBuffer:
		if e.Size == 0 {
			return errors.Newf("buffer %q has no size", e.ID)
		}
		_, err := e.bufferUsage()
		return err
	case opActivateImage:
		if e.Width <= 0 || e.Height <= 0 {
			return errors.Newf("image %q must have a positive width and height", e.ID)
		}
		if e.Depth <= 0 {
			e.Depth = 1
		}
		if e.MipLevels <= 0 {
			e.MipLevels = 1
		}
		if e.ArrayLayers <= 0 {
			e.ArrayLayers = 1
		}
		if e.Samples <= 0 {
			e.Samples = 1
		}
		if e.BytesPerTexel <= 0 {
			e.BytesPerTexel = 4
		}
		_, err := e.imageUsage()
		return err
	case opDeactivate:
		return nil
	default:
		return errors.Newf("unknown op %q", e.Op)
	}
}

func (e *scriptEvent) bufferUsage() (core1_0.BufferUsageFlags, error) {
	var usage core1_0.BufferUsageFlags
	for _, name := range e.Usage {
		flag, ok := bufferUsages[name]
		if !ok {
			return 0, errors.Newf("unknown buffer usage %q", name)
		}
		usage |= flag
	}

	return usage, nil
}

func (e *scriptEvent) imageUsage() (core1_0.ImageUsageFlags, error) {
	var usage core1_0.ImageUsageFlags
	for _, name := range e.Usage {
		flag, ok := imageUsages[name]
		if !ok {
			return 0, errors.Newf("unknown image usage %q", name)
		}
		usage |= flag
	}

	return usage, nil
}

func (e *scriptEvent) bufferDescriptor() transient.BufferDescriptor {
	usage, _ := e.bufferUsage()
	return transient.BufferDescriptor{
		ID:        e.ID,
		Size:      e.Size,
		Alignment: e.Alignment,
		Usage:     usage,
	}
}

func (e *scriptEvent) imageDescriptor() transient.ImageDescriptor {
	usage, _ := e.imageUsage()
	return transient.ImageDescriptor{
		ID: e.ID,
		Extent: core1_0.Extent3D{
			Width:  e.Width,
			Height: e.Height,
			Depth:  e.Depth,
		},
		MipLevels:   e.MipLevels,
		ArrayLayers: e.ArrayLayers,
		Samples:     core1_0.SampleCountFlags(e.Samples),
		Usage:       usage,
	}
}
