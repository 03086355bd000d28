package texres

// MemoryAperture selects which memory the store should materialize mip data
// into.
type MemoryAperture uint32

const (
	// ApertureHost decodes into host-memory mip payloads
	ApertureHost MemoryAperture = iota
	// ApertureVid decodes directly into device-visible memory, when the store
	// supports it (external I/O offload)
	ApertureVid
)

var memoryApertureMapping = make(map[MemoryAperture]string)

func (a MemoryAperture) String() string {
	return memoryApertureMapping[a]
}

func init() {
	memoryApertureMapping[ApertureHost] = "ApertureHost"
	memoryApertureMapping[ApertureVid] = "ApertureVid"
}

// MipsToLoad selects which portion of a texture's mip chain LoadTexture
// should materialize.
type MipsToLoad uint32

const (
	// MipsToLoadAll loads the full mip chain
	MipsToLoadAll MipsToLoad = iota
	// MipsToLoadSmall loads only the retained tail mips
	MipsToLoadSmall
	// MipsToLoadLarge loads only the streamed top mips
	MipsToLoadLarge
)

var mipsToLoadMapping = make(map[MipsToLoad]string)

func (m MipsToLoad) String() string {
	return mipsToLoadMapping[m]
}

func init() {
	mipsToLoadMapping[MipsToLoadAll] = "MipsToLoadAll"
	mipsToLoadMapping[MipsToLoadSmall] = "MipsToLoadSmall"
	mipsToLoadMapping[MipsToLoadLarge] = "MipsToLoadLarge"
}

// UploadContext is a command-recording handle for device transfers. The
// upload worker exclusively owns one instance, and callers pass a separate
// immediate instance into scheduling operations, so command recording state
// never needs a lock.
type UploadContext interface {
	// FlushCommandList submits recorded transfer commands to the device
	FlushCommandList() error
}

// TextureStore performs the stateless texture operations the residency
// pipeline invokes: decoding host mip data, creating device images, and
// copying host mips into device memory. Implementations must be safe for
// concurrent use from the scheduling thread and the upload worker, provided
// each uses its own UploadContext.
type TextureStore interface {
	// CreateTexture constructs a fresh ManagedTexture shell from raw asset
	// bytes plus a color-space tag. Failures carry DecodeError.
	CreateTexture(assetData AssetData, colorSpace ColorSpace) (*ManagedTexture, error)

	// LoadTexture decodes and attaches host mip payloads for the requested
	// portion of the chain. Levels above minMipLevel are not materialized.
	// When an external I/O engine owns the transfer, implementations dispatch
	// the streamed range to it and record a completion syncpt on the texture
	// instead of populating host payloads. Failures carry DecodeError.
	LoadTexture(ctx UploadContext, texture *ManagedTexture, aperture MemoryAperture, mips MipsToLoad, minMipLevel int) error

	// PromoteHostToVid allocates or updates the device image and copies host
	// mip bytes into it, beginning at largestMipToPreload. The promoted image
	// is attached as the texture's pending image. Failures carry
	// DeviceResourceError.
	PromoteHostToVid(ctx UploadContext, texture *ManagedTexture, largestMipToPreload int) error
}

// FrameSource reports the render loop's monotonically increasing frame
// counter. The upload worker uses it to push uploads out of the frame that
// requested them.
type FrameSource interface {
	CurrentFrameID() uint64
}
