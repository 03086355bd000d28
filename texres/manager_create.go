package texres

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific manager behaviors to activate or deactivate
type CreateFlags int32

var managerCreateFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	managerCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return managerCreateFlagsMapping.FlagsToString(f)
}

const (
	// ManagerCreateDisableAsyncUploads forces every schedule request to
	// promote the full mip chain synchronously on the calling thread,
	// regardless of the allowAsync argument. The upload worker is then only
	// exercised by drop and kickoff handling.
	ManagerCreateDisableAsyncUploads CreateFlags = 1 << iota

	// ManagerCreateAlwaysWaitForUploads disables the worker's same-frame
	// throttle. Intended for consumers that block on Synchronize every frame
	// and therefore gain nothing from deferring uploads to the next frame.
	ManagerCreateAlwaysWaitForUploads
)

func init() {
	ManagerCreateDisableAsyncUploads.Register("ManagerCreateDisableAsyncUploads")
	ManagerCreateAlwaysWaitForUploads.Register("ManagerCreateAlwaysWaitForUploads")
}

// AsyncPreloadMipsNone requests no synchronous preload at all- every level of
// an asynchronously scheduled texture streams through the upload worker.
const AsyncPreloadMipsNone = -1

const (
	// defaultAsyncPreloadMips is the number of top mip levels promoted
	// synchronously on schedule when asynchronous streaming is allowed and no
	// value is provided via CreateOptions. The remainder streams through the
	// worker.
	defaultAsyncPreloadMips = 8

	// defaultPipelineReservationMib is the device memory reservation assumed
	// for raytracing buffers and other non-texture resources before they have
	// been created.
	defaultPipelineReservationMib = 2 * 1024

	// defaultHostReservationMib is the system memory margin kept free for the
	// host application's own working set.
	defaultHostReservationMib = 2 * 1024
)

// CreateOptions contains settings for creating a Manager
type CreateOptions struct {
	// Flags indicates specific manager behaviors to activate or deactivate
	Flags CreateFlags

	// Store performs decode, image creation, and promotion work on behalf of
	// the manager. Required.
	Store TextureStore

	// WorkerContext is the command-recording context the upload worker will
	// exclusively own. It must not be the context the render thread records
	// on. Required.
	WorkerContext UploadContext

	// Frames reports the render loop's frame counter. Required.
	Frames FrameSource

	// Memory supplies device heap budgets and system memory availability to
	// the budget policy. When nil, UpdateMipSkipLevel keeps the skip level
	// at zero.
	Memory MemoryReporter

	// IO is an optional external streaming engine. When set, the worker
	// delegates transfers to it for textures past the preload stage.
	IO IOEngine

	// AsyncPreloadMips overrides the number of top mip levels promoted
	// synchronously when asynchronous streaming is allowed. Values are
	// clamped to each texture's mip count at schedule time. Zero selects the
	// default; pass AsyncPreloadMipsNone to disable the preload entirely.
	AsyncPreloadMips int

	// EstimatedAssetSizeMib is the estimated total footprint of the texture
	// asset set, driving the mip-skip budget policy. Zero disables skipping.
	EstimatedAssetSizeMib int

	// PipelineReservationMib overrides the device memory reservation for
	// non-texture GPU resources.
	PipelineReservationMib int

	// HostReservationMib overrides the system memory margin reserved for the
	// host application.
	HostReservationMib int

	// Logger receives this manager's log output. When nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// NewManager creates a texture residency manager. The upload worker does not
// run until Start is called.
func NewManager(options CreateOptions) (*Manager, error) {
	if options.Store == nil {
		return nil, errors.New("texres.CreateOptions.Store is required")
	}
	if options.WorkerContext == nil {
		return nil, errors.New("texres.CreateOptions.WorkerContext is required")
	}
	if options.Frames == nil {
		return nil, errors.New("texres.CreateOptions.Frames is required")
	}
	if options.AsyncPreloadMips < AsyncPreloadMipsNone {
		return nil, errors.Newf("texres.CreateOptions.AsyncPreloadMips is %d, but it cannot be below AsyncPreloadMipsNone", options.AsyncPreloadMips)
	}
	if options.EstimatedAssetSizeMib < 0 {
		return nil, errors.Newf("texres.CreateOptions.EstimatedAssetSizeMib is %d, but it cannot be negative", options.EstimatedAssetSizeMib)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	asyncPreloadMips := options.AsyncPreloadMips
	switch asyncPreloadMips {
	case 0:
		asyncPreloadMips = defaultAsyncPreloadMips
	case AsyncPreloadMipsNone:
		asyncPreloadMips = 0
	}
	pipelineReservationMib := options.PipelineReservationMib
	if pipelineReservationMib == 0 {
		pipelineReservationMib = defaultPipelineReservationMib
	}
	hostReservationMib := options.HostReservationMib
	if hostReservationMib == 0 {
		hostReservationMib = defaultHostReservationMib
	}

	m := &Manager{
		logger:    logger,
		store:     options.Store,
		workerCtx: options.WorkerContext,
		frames:    options.Frames,
		memory:    options.Memory,
		io:        options.IO,

		flags:                  options.Flags,
		asyncPreloadMips:       asyncPreloadMips,
		estimatedAssetSizeMib:  options.EstimatedAssetSizeMib,
		pipelineReservationMib: pipelineReservationMib,
		hostReservationMib:     hostReservationMib,

		textures: swiss.NewMap[uint64, *ManagedTexture](42),
	}
	m.condOnAdd.L = &m.queueMutex
	m.condOnSync.L = &m.queueMutex

	return m, nil
}
