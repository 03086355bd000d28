package texres

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"
)

// Manager is the asynchronous texture residency pipeline: it decides which
// mip levels live in host versus device memory, streams data between them on
// a dedicated upload worker without stalling the render thread, and adapts
// its footprint to available memory through the mip-skip budget policy.
//
// Exactly two logical actors touch texture state- the calling thread(s) and
// the single upload worker. The queue, pending counter, flags, and cache map
// share one mutex; contention is low with one producer and one consumer, so
// no finer-grained locking is warranted. State reads on the scheduling fast
// paths happen outside the lock and are tolerated as a soft race- a stale
// read only biases against re-queueing and is corrected on the next call.
type Manager struct {
	logger    *slog.Logger
	store     TextureStore
	workerCtx UploadContext
	frames    FrameSource
	memory    MemoryReporter
	io        IOEngine

	flags                  CreateFlags
	asyncPreloadMips       int
	estimatedAssetSizeMib  int
	pipelineReservationMib int
	hostReservationMib     int

	queueMutex   sync.Mutex
	condOnAdd    sync.Cond
	condOnSync   sync.Cond
	textureQueue []*ManagedTexture
	// texturesPending counts textures between enqueue and worker-side
	// completion. It reaches zero exactly when Synchronize may return.
	texturesPending int
	// textures caches resident instances by content hash- re-requesting a
	// cached hash returns the existing instance, never a duplicate load
	textures *swiss.Map[uint64, *ManagedTexture]

	stopped      atomic.Bool
	kickoff      atomic.Bool
	dropRequests atomic.Bool

	minimumMipLevel atomic.Uint32

	workerDone chan struct{}
	started    bool
}

// Start launches the upload worker. It must be called exactly once before
// scheduling asynchronous uploads.
func (m *Manager) Start() {
	m.queueMutex.Lock()
	defer m.queueMutex.Unlock()

	if m.started {
		panic("texres.Manager was started twice")
	}
	m.started = true
	m.workerDone = make(chan struct{})

	go m.runWorker()
}

// Destroy stops the upload worker and joins it. In-flight work is finished,
// not aborted- use Synchronize with dropRequests first when teardown must not
// wait for real transfers. After Destroy returns it is safe to release the
// device resources the worker context records on.
func (m *Manager) Destroy() error {
	m.logger.Debug("Manager::Destroy")

	m.queueMutex.Lock()
	if !m.started {
		m.queueMutex.Unlock()
		return errors.New("attempted to destroy a texres.Manager that was never started")
	}
	if m.stopped.Load() {
		m.queueMutex.Unlock()
		return errors.New("attempted to destroy a texres.Manager twice")
	}
	m.stopped.Store(true)
	m.queueMutex.Unlock()

	m.condOnAdd.Broadcast()
	<-m.workerDone
	return nil
}

// ScheduleTextureUpload requests that texture become device-resident. When
// allowAsync is set, only the configured preload mips are promoted inline on
// immediateCtx and the remainder streams through the upload worker;
// otherwise the full chain is promoted synchronously before returning.
//
// The call is fire-and-forget: failures are contained, logged, and surface
// only as the texture settling in StateFailed. Callers poll State to decide
// whether the asset is ready to bind, and must tolerate textures that remain
// host-resident indefinitely.
func (m *Manager) ScheduleTextureUpload(texture *ManagedTexture, immediateCtx UploadContext, allowAsync bool) {
	if texture == nil {
		return
	}

	switch texture.State() {
	case StateVidMem:
		if texture.FinalizePendingPromotion() {
			// Texture reached its final destination
			return
		}
	case StateQueuedForUpload:
		if m.io != nil && m.io.IsComplete(texture.CompletionSyncpt()) {
			texture.setState(StateVidMem)
			texture.FinalizePendingPromotion()
		}
		// Already in flight- at most one outstanding promotion per texture
		return
	case StateFailed, StateHostMem:
		// We need to schedule an upload
	}

	mipLevels := texture.futureImageDesc.MipLevels

	preloadMips := mipLevels
	if allowAsync {
		preloadMips = m.calcPreloadMips(mipLevels)
	}
	if m.io != nil && texture.State() == StateVidMem {
		// A VidMem texture under external I/O is already fully resident- the
		// engine manages its own streaming from here
		preloadMips = 0
	}

	if preloadMips > 0 {
		largestMipToPreload := mipLevels - preloadMips
		if largestMipToPreload < texture.numLargeMips && texture.largeMips == nil {
			if err := m.store.LoadTexture(immediateCtx, texture, ApertureHost, MipsToLoadLarge, 0); err != nil {
				texture.setState(StateFailed)
				m.logger.Error("failed to load mip data for VidMem promotion",
					slog.String("texture", texture.assetData.Name()),
					slog.Any("error", err))
				return
			}
		}

		if err := m.store.PromoteHostToVid(immediateCtx, texture, largestMipToPreload); err != nil {
			texture.setState(StateFailed)
			m.logger.Error("failed to create image for VidMem promotion",
				slog.String("texture", texture.assetData.Name()),
				slog.Any("error", err))
			return
		}
		texture.setState(StateVidMem)
	}

	asyncUpload := preloadMips < mipLevels
	if asyncUpload {
		m.queueMutex.Lock()
		m.textureQueue = append(m.textureQueue, texture)
		m.texturesPending++
		texture.setState(StateQueuedForUpload)
		texture.frameQueuedForUpload = m.frames.CurrentFrameID()
		m.queueMutex.Unlock()

		m.condOnAdd.Signal()
	} else {
		// Not queueing for upload- make sure we don't hang on to streamed mip
		// data
		texture.releaseLargeMips()
	}
}

func (m *Manager) calcPreloadMips(mipLevels int) int {
	if m.flags&ManagerCreateDisableAsyncUploads != 0 {
		return mipLevels
	}

	preload := m.asyncPreloadMips
	if preload > mipLevels {
		return mipLevels
	}
	return preload
}

// PreloadTexture returns the cached texture for assetData's hash, or creates
// one and synchronously loads its host mip data. With forceLoad the full
// chain is loaded and the texture is pinned- it will never be demoted.
func (m *Manager) PreloadTexture(assetData AssetData, colorSpace ColorSpace, ctx UploadContext, forceLoad bool) (*ManagedTexture, error) {
	hash := assetData.Hash()

	m.queueMutex.Lock()
	existing, ok := m.textures.Get(hash)
	m.queueMutex.Unlock()
	if ok {
		return existing, nil
	}

	texture, err := m.store.CreateTexture(assetData, colorSpace)
	if err != nil {
		return nil, err
	}

	mips := MipsToLoadSmall
	if forceLoad {
		mips = MipsToLoadAll
	}
	err = m.store.LoadTexture(ctx, texture, ApertureHost, mips, m.MinMipLevel())
	if err != nil {
		return nil, err
	}

	// The content suggested we keep this texture always loaded, never demote
	texture.canDemote = !forceLoad

	m.queueMutex.Lock()
	defer m.queueMutex.Unlock()

	// Another caller may have loaded the same hash while we were decoding
	if existing, ok := m.textures.Get(hash); ok {
		return existing, nil
	}
	m.textures.Put(hash, texture)
	return texture, nil
}

// UnloadTexture demotes texture's device-resident data back to host memory.
func (m *Manager) UnloadTexture(texture *ManagedTexture) {
	texture.Demote()
}

// ReleaseTexture demotes texture and removes it from the cache. The instance
// is destroyed once all render references are gone.
func (m *Manager) ReleaseTexture(texture *ManagedTexture) {
	if texture == nil {
		return
	}

	m.UnloadTexture(texture)

	m.queueMutex.Lock()
	defer m.queueMutex.Unlock()
	m.textures.Delete(texture.assetData.Hash())
}

// DemoteTexturesFromVidmem evicts every cached texture back to host memory-
// the memory-pressure response. Pinned textures are unaffected.
func (m *Manager) DemoteTexturesFromVidmem() {
	m.logger.Debug("Manager::DemoteTexturesFromVidmem")

	m.queueMutex.Lock()
	defer m.queueMutex.Unlock()

	m.textures.Iter(func(hash uint64, texture *ManagedTexture) bool {
		texture.Demote()
		return false
	})
}

// Synchronize blocks until no textures remain between enqueue and worker
// completion. With dropRequests set, queued and in-flight textures are
// degraded to StateFailed instead of uploaded for the duration of the call-
// the force-abort path for shutdown and scene teardown.
func (m *Manager) Synchronize(dropRequests bool) {
	m.logger.Debug("Manager::Synchronize")

	m.queueMutex.Lock()
	defer m.queueMutex.Unlock()

	m.dropRequests.Store(dropRequests)

	for m.texturesPending != 0 {
		m.condOnSync.Wait()
	}

	m.dropRequests.Store(false)
}

// Kickoff hints the worker to flush the external I/O engine eagerly instead
// of waiting for a natural queue event. A latency optimization, not a
// correctness requirement- it no-ops while uploads are pending.
func (m *Manager) Kickoff() {
	m.queueMutex.Lock()
	defer m.queueMutex.Unlock()

	if m.texturesPending == 0 {
		m.kickoff.Store(true)
		m.condOnAdd.Signal()
	}
}
