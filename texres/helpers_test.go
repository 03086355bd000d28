package texres

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// syncBuffer collects log output written from the upload worker goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeAsset struct {
	name string
	hash uint64
}

func (a *fakeAsset) Hash() uint64 {
	return a.hash
}

func (a *fakeAsset) Name() string {
	return a.name
}

type fakeFrames struct {
	frame atomic.Uint64
}

func (f *fakeFrames) CurrentFrameID() uint64 {
	return f.frame.Load()
}

func (f *fakeFrames) Advance() {
	f.frame.Add(1)
}

type fakeContext struct {
	flushes atomic.Int32
}

func (c *fakeContext) FlushCommandList() error {
	c.flushes.Add(1)
	return nil
}

type fakeImage struct {
	size      int
	destroyed atomic.Bool
}

func (i *fakeImage) MipLevels() int {
	return 10
}

func (i *fakeImage) Size() int {
	return i.size
}

func (i *fakeImage) Destroy() {
	i.destroyed.Store(true)
}

type loadCall struct {
	name        string
	mips        MipsToLoad
	minMipLevel int
}

type promoteCall struct {
	name                string
	largestMipToPreload int
}

// fakeStore is an in-memory TextureStore. Every texture it creates shares one
// image description: 512x512, 10 mip levels, 3 of them large.
type fakeStore struct {
	mu           sync.Mutex
	loadCalls    []loadCall
	promoteCalls []promoteCall
	createCount  int

	failLoad    map[string]error
	failPromote map[string]error

	// dispatchSyncpt, when nonzero, makes streamed loads record an external
	// I/O completion token instead of a host payload
	dispatchSyncpt SyncToken

	desc ImageDesc
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		failLoad:    make(map[string]error),
		failPromote: make(map[string]error),
		desc: ImageDesc{
			Width:     512,
			Height:    512,
			MipLevels: 10,
			TexelSize: 4,
		},
	}
}

func (s *fakeStore) CreateTexture(assetData AssetData, colorSpace ColorSpace) (*ManagedTexture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createCount++
	return NewManagedTexture(assetData, colorSpace, s.desc), nil
}

func (s *fakeStore) LoadTexture(ctx UploadContext, texture *ManagedTexture, aperture MemoryAperture, mips MipsToLoad, minMipLevel int) error {
	s.mu.Lock()
	s.loadCalls = append(s.loadCalls, loadCall{
		name:        texture.AssetData().Name(),
		mips:        mips,
		minMipLevel: minMipLevel,
	})
	err := s.failLoad[texture.AssetData().Name()]
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if s.dispatchSyncpt != 0 && mips == MipsToLoadLarge {
		texture.SetCompletionSyncpt(s.dispatchSyncpt)
		return nil
	}

	if (mips == MipsToLoadAll || mips == MipsToLoadLarge) && texture.LargeMips() == nil {
		texture.SetLargeMips(&MipData{
			FirstLevel: 0,
			LevelCount: texture.NumLargeMips(),
			Data:       make([]byte, 4096),
		})
	}
	if (mips == MipsToLoadAll || mips == MipsToLoadSmall) && texture.SmallMips() == nil {
		texture.SetSmallMips(&MipData{
			FirstLevel: texture.NumLargeMips(),
			LevelCount: texture.ImageDesc().MipLevels - texture.NumLargeMips(),
			Data:       make([]byte, 512),
		})
	}
	return nil
}

func (s *fakeStore) PromoteHostToVid(ctx UploadContext, texture *ManagedTexture, largestMipToPreload int) error {
	s.mu.Lock()
	s.promoteCalls = append(s.promoteCalls, promoteCall{
		name:                texture.AssetData().Name(),
		largestMipToPreload: largestMipToPreload,
	})
	err := s.failPromote[texture.AssetData().Name()]
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if texture.PendingImage() == nil {
		texture.AttachPendingImage(&fakeImage{size: 1 << 20})
	}
	return nil
}

func (s *fakeStore) promotes() []promoteCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]promoteCall(nil), s.promoteCalls...)
}

func (s *fakeStore) loads() []loadCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]loadCall(nil), s.loadCalls...)
}

type fakeReporter struct {
	heaps   []HeapBudget
	system  int
	haveSys bool
}

func (r *fakeReporter) HeapBudgets() []HeapBudget {
	return r.heaps
}

func (r *fakeReporter) AvailableSystemMemory() (int, bool) {
	return r.system, r.haveSys
}

type flushCall struct {
	waitForCompletion bool
}

type fakeIO struct {
	mu       sync.Mutex
	complete map[SyncToken]bool
	flushes  []flushCall
	flushed  chan flushCall
}

func newFakeIO() *fakeIO {
	return &fakeIO{
		complete: make(map[SyncToken]bool),
		flushed:  make(chan flushCall, 16),
	}
}

func (e *fakeIO) IsComplete(token SyncToken) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complete[token]
}

func (e *fakeIO) Flush(waitForCompletion bool) {
	e.mu.Lock()
	e.flushes = append(e.flushes, flushCall{waitForCompletion: waitForCompletion})
	e.mu.Unlock()
	e.flushed <- flushCall{waitForCompletion: waitForCompletion}
}

func (e *fakeIO) markComplete(token SyncToken) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.complete[token] = true
}

var errFakeDevice = errors.Mark(errors.New("out of device memory"), DeviceResourceError)
var errFakeDecode = errors.Mark(errors.New("corrupt asset bytes"), DecodeError)

type managerSetup struct {
	store     *fakeStore
	frames    *fakeFrames
	immediate *fakeContext
	worker    *fakeContext
	manager   *Manager
}

func newTestManager(t *testing.T, mutate func(options *CreateOptions)) *managerSetup {
	setup := &managerSetup{
		store:     newFakeStore(),
		frames:    &fakeFrames{},
		immediate: &fakeContext{},
		worker:    &fakeContext{},
	}

	options := CreateOptions{
		Store:         setup.store,
		WorkerContext: setup.worker,
		Frames:        setup.frames,
	}
	if mutate != nil {
		mutate(&options)
	}

	manager, err := NewManager(options)
	require.NoError(t, err)
	setup.manager = manager
	return setup
}

func (s *managerSetup) newTexture(t *testing.T, name string, hash uint64) *ManagedTexture {
	texture, err := s.store.CreateTexture(&fakeAsset{name: name, hash: hash}, ColorSpaceAuto)
	require.NoError(t, err)
	return texture
}
