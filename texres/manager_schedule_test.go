package texres

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScheduleTextureUploadSynchronous(t *testing.T) {
	setup := newTestManager(t, nil)
	texture := setup.newTexture(t, "diffuse", 0x1111)

	setup.manager.ScheduleTextureUpload(texture, setup.immediate, false)

	require.Equal(t, StateVidMem, texture.State())
	require.NotNil(t, texture.PendingImage())
	require.Nil(t, texture.LargeMips())

	loads := setup.store.loads()
	require.Len(t, loads, 1)
	require.Equal(t, MipsToLoadLarge, loads[0].mips)

	promotes := setup.store.promotes()
	require.Len(t, promotes, 1)
	require.Equal(t, 0, promotes[0].largestMipToPreload)

	setup.manager.queueMutex.Lock()
	require.Zero(t, setup.manager.texturesPending)
	require.Empty(t, setup.manager.textureQueue)
	setup.manager.queueMutex.Unlock()
}

func TestScheduleTextureUploadQueuesRemainder(t *testing.T) {
	setup := newTestManager(t, func(options *CreateOptions) {
		options.AsyncPreloadMips = 2
	})
	texture := setup.newTexture(t, "diffuse", 0x1111)

	setup.manager.ScheduleTextureUpload(texture, setup.immediate, true)

	require.Equal(t, StateQueuedForUpload, texture.State())

	// Preloading the bottom two levels does not touch the streamed payload
	require.Empty(t, setup.store.loads())

	promotes := setup.store.promotes()
	require.Len(t, promotes, 1)
	require.Equal(t, 8, promotes[0].largestMipToPreload)

	setup.manager.queueMutex.Lock()
	require.Equal(t, 1, setup.manager.texturesPending)
	require.Len(t, setup.manager.textureQueue, 1)
	setup.manager.queueMutex.Unlock()
}

func TestScheduleTextureUploadNoDuplicateEnqueue(t *testing.T) {
	setup := newTestManager(t, func(options *CreateOptions) {
		options.AsyncPreloadMips = 2
	})
	texture := setup.newTexture(t, "diffuse", 0x1111)

	setup.manager.ScheduleTextureUpload(texture, setup.immediate, true)
	setup.manager.ScheduleTextureUpload(texture, setup.immediate, true)
	setup.manager.ScheduleTextureUpload(texture, setup.immediate, true)

	require.Len(t, setup.store.promotes(), 1)

	setup.manager.queueMutex.Lock()
	require.Equal(t, 1, setup.manager.texturesPending)
	require.Len(t, setup.manager.textureQueue, 1)
	setup.manager.queueMutex.Unlock()
}

func TestScheduleTextureUploadIdempotentInVidMem(t *testing.T) {
	setup := newTestManager(t, nil)
	texture := setup.newTexture(t, "diffuse", 0x1111)

	setup.manager.ScheduleTextureUpload(texture, setup.immediate, false)
	require.Equal(t, StateVidMem, texture.State())
	require.Nil(t, texture.Image())

	// The next request finalizes the pending hand-off and becomes a no-op
	setup.manager.ScheduleTextureUpload(texture, setup.immediate, false)
	require.NotNil(t, texture.Image())
	require.Nil(t, texture.PendingImage())

	setup.manager.ScheduleTextureUpload(texture, setup.immediate, false)
	setup.manager.ScheduleTextureUpload(texture, setup.immediate, true)

	require.Len(t, setup.store.loads(), 1)
	require.Len(t, setup.store.promotes(), 1)

	setup.manager.queueMutex.Lock()
	require.Zero(t, setup.manager.texturesPending)
	setup.manager.queueMutex.Unlock()
}

func TestScheduleTextureUploadPreloadFailureRecovers(t *testing.T) {
	setup := newTestManager(t, nil)
	texture := setup.newTexture(t, "diffuse", 0x1111)
	setup.store.failPromote["diffuse"] = errFakeDevice

	setup.manager.ScheduleTextureUpload(texture, setup.immediate, false)
	require.Equal(t, StateFailed, texture.State())

	setup.manager.queueMutex.Lock()
	require.Zero(t, setup.manager.texturesPending)
	setup.manager.queueMutex.Unlock()

	// A failed texture is eligible for scheduling again once the cause clears
	setup.store.mu.Lock()
	delete(setup.store.failPromote, "diffuse")
	setup.store.mu.Unlock()

	setup.manager.ScheduleTextureUpload(texture, setup.immediate, false)
	require.Equal(t, StateVidMem, texture.State())
}

func TestScheduleTextureUploadLoadFailure(t *testing.T) {
	setup := newTestManager(t, nil)
	texture := setup.newTexture(t, "diffuse", 0x1111)
	setup.store.failLoad["diffuse"] = errFakeDecode

	setup.manager.ScheduleTextureUpload(texture, setup.immediate, false)

	require.Equal(t, StateFailed, texture.State())
	require.Empty(t, setup.store.promotes())
}

func TestScheduleTextureUploadDisableAsyncFlag(t *testing.T) {
	setup := newTestManager(t, func(options *CreateOptions) {
		options.Flags = ManagerCreateDisableAsyncUploads
		options.AsyncPreloadMips = 2
	})
	texture := setup.newTexture(t, "diffuse", 0x1111)

	setup.manager.ScheduleTextureUpload(texture, setup.immediate, true)

	// allowAsync is overridden- the full chain promotes inline
	require.Equal(t, StateVidMem, texture.State())

	promotes := setup.store.promotes()
	require.Len(t, promotes, 1)
	require.Equal(t, 0, promotes[0].largestMipToPreload)

	setup.manager.queueMutex.Lock()
	require.Zero(t, setup.manager.texturesPending)
	setup.manager.queueMutex.Unlock()
}

func TestScheduleTextureUploadNoPreloadMips(t *testing.T) {
	setup := newTestManager(t, func(options *CreateOptions) {
		options.Flags = ManagerCreateAlwaysWaitForUploads
		options.AsyncPreloadMips = AsyncPreloadMipsNone
	})
	texture := setup.newTexture(t, "diffuse", 0x1111)

	setup.manager.ScheduleTextureUpload(texture, setup.immediate, true)

	// Nothing promotes inline- the whole chain streams through the worker
	require.Equal(t, StateQueuedForUpload, texture.State())
	require.Empty(t, setup.store.promotes())

	setup.manager.Start()
	defer func() {
		require.NoError(t, setup.manager.Destroy())
	}()
	setup.manager.Synchronize(false)

	require.Equal(t, StateVidMem, texture.State())
	promotes := setup.store.promotes()
	require.Len(t, promotes, 1)
	require.Equal(t, 0, promotes[0].largestMipToPreload)
}

func TestNewManagerRejectsPreloadMipsBelowNone(t *testing.T) {
	_, err := NewManager(CreateOptions{
		Store:            newFakeStore(),
		WorkerContext:    &fakeContext{},
		Frames:           &fakeFrames{},
		AsyncPreloadMips: AsyncPreloadMipsNone - 1,
	})
	require.Error(t, err)
}

func TestScheduleTextureUploadNilTexture(t *testing.T) {
	setup := newTestManager(t, nil)

	setup.manager.ScheduleTextureUpload(nil, setup.immediate, true)

	require.Empty(t, setup.store.loads())
	require.Empty(t, setup.store.promotes())
}
