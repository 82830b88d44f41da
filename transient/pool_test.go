package transient_test

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/framegraph/transient"
	"github.com/vkngwrapper/framegraph/transient/mocks"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func readyPool(t *testing.T, ctrl *gomock.Controller, heaps ...transient.HeapDescriptor) (*transient.Pool, *mocks.MockResourceFactory) {
	factory := mocks.NewMockResourceFactory(ctrl)

	for _, heap := range heaps {
		factory.EXPECT().ReserveHeapMemory(gomock.Any()).Return(&fakeHeapMemory{name: heap.Name}, nil)
	}

	factory.EXPECT().BufferMemoryRequirements(gomock.Any()).AnyTimes().DoAndReturn(
		func(descriptor transient.BufferDescriptor) (core1_0.MemoryRequirements, error) {
			return core1_0.MemoryRequirements{Size: int(descriptor.Size), Alignment: 1}, nil
		})
	factory.EXPECT().ImageMemoryRequirements(gomock.Any()).AnyTimes().Return(
		core1_0.MemoryRequirements{Size: 256, Alignment: 256}, nil)

	pool, err := transient.NewPool(nil, factory, transient.PoolCreateInfo{Heaps: heaps})
	require.NoError(t, err)

	return pool, factory
}

func TestPoolRoutesByType(t *testing.T) {
	ctrl := gomock.NewController(t)
	pool, _ := readyPool(t, ctrl,
		transient.HeapDescriptor{Name: "buffers", CapacityBytes: 1024, ResourceTypeMask: transient.AttachmentTypeMaskBuffer},
		transient.HeapDescriptor{Name: "targets", CapacityBytes: 1024, ResourceTypeMask: transient.AttachmentTypeMaskRenderTarget},
		transient.HeapDescriptor{Name: "images", CapacityBytes: 1024, ResourceTypeMask: transient.AttachmentTypeMaskImage},
	)

	require.NoError(t, pool.Begin(transient.CompileDontAllocateResources|transient.CompileGatherStatistics))

	_, err := pool.ActivateBuffer(buffer("buffer", 100), 0)
	require.NoError(t, err)
	_, err = pool.ActivateImage(image("target", core1_0.ImageUsageColorAttachment), 0)
	require.NoError(t, err)
	_, err = pool.ActivateImage(image("storage", core1_0.ImageUsageStorage), 0)
	require.NoError(t, err)

	require.NoError(t, pool.DeactivateBuffer("buffer", 1))
	require.NoError(t, pool.DeactivateImage("target", 1))
	require.NoError(t, pool.DeactivateImage("storage", 1))
	require.NoError(t, pool.End())

	stats, err := pool.GetStatistics()
	require.NoError(t, err)
	require.Len(t, stats, 3)

	require.Equal(t, "buffers", stats[0].Name)
	require.Equal(t, uint64(100), stats[0].WatermarkBytes)
	require.Len(t, stats[0].Attachments, 1)
	require.Equal(t, transient.AttachmentID("buffer"), stats[0].Attachments[0].ID)

	require.Equal(t, "targets", stats[1].Name)
	require.Equal(t, transient.AttachmentID("target"), stats[1].Attachments[0].ID)

	require.Equal(t, "images", stats[2].Name)
	require.Equal(t, transient.AttachmentID("storage"), stats[2].Attachments[0].ID)
	require.Empty(t, pool.Barriers())
}

func TestPoolOverflowHeap(t *testing.T) {
	ctrl := gomock.NewController(t)
	pool, _ := readyPool(t, ctrl,
		transient.HeapDescriptor{Name: "primary", CapacityBytes: 256},
		transient.HeapDescriptor{Name: "overflow", CapacityBytes: 1024},
	)

	require.NoError(t, pool.Begin(transient.CompileDontAllocateResources))

	first, err := pool.ActivateBuffer(buffer("first", 200), 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), first.HeapOffsetMin)

	// Does not fit in the primary heap, so it lands at the start of the overflow heap
	second, err := pool.ActivateBuffer(buffer("second", 200), 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), second.HeapOffsetMin)

	_, err = pool.ActivateBuffer(buffer("huge", 2000), 0)
	require.True(t, errors.Is(err, transient.ErrOutOfMemory))

	_, err = pool.ActivateBuffer(buffer("first", 10), 0)
	require.True(t, errors.Is(err, transient.ErrProtocolViolation))

	require.NoError(t, pool.DeactivateBuffer("second", 0))
	require.NoError(t, pool.DeactivateBuffer("first", 0))
	require.True(t, errors.Is(pool.DeactivateBuffer("first", 0), transient.ErrProtocolViolation))
	require.NoError(t, pool.End())

	heaps := pool.Heaps()
	require.Len(t, heaps, 2)
	primary, err := heaps[0].GetStatistics()
	require.NoError(t, err)
	overflow, err := heaps[1].GetStatistics()
	require.NoError(t, err)
	require.Equal(t, uint64(200), primary.WatermarkBytes)
	require.Equal(t, uint64(200), overflow.WatermarkBytes)
}

func TestPoolNoEligibleHeap(t *testing.T) {
	ctrl := gomock.NewController(t)
	pool, _ := readyPool(t, ctrl,
		transient.HeapDescriptor{Name: "buffers", CapacityBytes: 1024, ResourceTypeMask: transient.AttachmentTypeMaskBuffer},
	)

	require.NoError(t, pool.Begin(transient.CompileDontAllocateResources))
	_, err := pool.ActivateImage(image("image", core1_0.ImageUsageStorage), 0)
	require.True(t, errors.Is(err, transient.ErrProtocolViolation))
	require.NoError(t, pool.End())
}

func TestPoolEndCombinesErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	pool, _ := readyPool(t, ctrl,
		transient.HeapDescriptor{Name: "a", CapacityBytes: 1024},
		transient.HeapDescriptor{Name: "b", CapacityBytes: 1024},
	)

	require.NoError(t, pool.Begin(transient.CompileDontAllocateResources))
	_, err := pool.ActivateBuffer(buffer("leak", 64), 0)
	require.NoError(t, err)

	err = pool.End()
	require.True(t, errors.Is(err, transient.ErrProtocolViolation))

	// The heap without the leak ended, so the pool cannot begin until the leak is fixed
	require.True(t, errors.Is(pool.Begin(0), transient.ErrProtocolViolation))
}

func TestPoolCreationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	factory := mocks.NewMockResourceFactory(ctrl)

	memory := &fakeHeapMemory{name: "good"}
	factory.EXPECT().ReserveHeapMemory(gomock.Any()).Return(memory, nil)
	factory.EXPECT().ReleaseHeapMemory(memory).Return(nil)

	_, err := transient.NewPool(nil, factory, transient.PoolCreateInfo{
		Heaps: []transient.HeapDescriptor{
			{Name: "good", CapacityBytes: 1024},
			{Name: "bad", CapacityBytes: 0},
		},
	})
	require.True(t, errors.Is(err, transient.ErrInitialization))

	_, err = transient.NewPool(nil, factory, transient.PoolCreateInfo{})
	require.True(t, errors.Is(err, transient.ErrInitialization))
}

func TestPoolShutdown(t *testing.T) {
	ctrl := gomock.NewController(t)
	pool, factory := readyPool(t, ctrl,
		transient.HeapDescriptor{Name: "a", CapacityBytes: 1024},
		transient.HeapDescriptor{Name: "b", CapacityBytes: 1024},
	)

	factory.EXPECT().ReleaseHeapMemory(gomock.Any()).Times(2).Return(nil)
	require.NoError(t, pool.Shutdown())
	require.Empty(t, pool.Heaps())
}

func TestPoolLogsProtocolViolations(t *testing.T) {
	ctrl := gomock.NewController(t)
	factory := mocks.NewMockResourceFactory(ctrl)
	factory.EXPECT().ReserveHeapMemory(gomock.Any()).Return(&fakeHeapMemory{name: "buffers"}, nil)
	factory.EXPECT().BufferMemoryRequirements(gomock.Any()).AnyTimes().Return(
		core1_0.MemoryRequirements{Size: 64, Alignment: 1}, nil)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs))

	pool, err := transient.NewPool(logger, factory, transient.PoolCreateInfo{
		Heaps: []transient.HeapDescriptor{
			{Name: "buffers", CapacityBytes: 1024, ResourceTypeMask: transient.AttachmentTypeMaskBuffer},
		},
	})
	require.NoError(t, err)
	require.NoError(t, pool.Begin(transient.CompileDontAllocateResources))

	_, err = pool.ActivateBuffer(buffer("a", 64), 0)
	require.NoError(t, err)

	testCases := map[string]struct {
		Call    func() error
		Message string
	}{
		"AlreadyActive": {
			Call: func() error {
				_, err := pool.ActivateBuffer(buffer("a", 64), 1)
				return err
			},
			Message: `attachment \"a\" is already active in the pool`,
		},
		"NoEligibleHeap": {
			Call: func() error {
				_, err := pool.ActivateImage(image("image", core1_0.ImageUsageStorage), 1)
				return err
			},
			Message: "no heap in the pool holds attachments of type Image",
		},
		"NotActive": {
			Call: func() error {
				return pool.DeactivateImage("missing", 1)
			},
			Message: `attachment \"missing\" is not active in any heap of the pool`,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			logs.Reset()
			err := testCase.Call()
			require.True(t, errors.Is(err, transient.ErrProtocolViolation))
			require.Contains(t, logs.String(), "level=ERROR")
			require.Contains(t, logs.String(), "[PROTOCOL VIOLATION]")
			require.Contains(t, logs.String(), testCase.Message)
		})
	}
}
