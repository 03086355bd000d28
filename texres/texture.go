package texres

import (
	"sync/atomic"

	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/restex/mipmem"
)

// State is the residency state of a ManagedTexture.
type State uint32

const (
	// StateHostMem indicates mip data is resident in host memory only- there is
	// no device image yet, or the device image is stale
	StateHostMem State = iota
	// StateQueuedForUpload indicates the texture is awaiting or undergoing
	// promotion, either on the upload worker or through an external I/O engine
	StateQueuedForUpload
	// StateVidMem indicates the device image is current and bindable
	StateVidMem
	// StateFailed indicates the last promotion attempt failed or the request
	// was dropped- recoverable through a new schedule request
	StateFailed
)

var stateMapping = make(map[State]string)

func (s State) String() string {
	return stateMapping[s]
}

func init() {
	stateMapping[StateHostMem] = "StateHostMem"
	stateMapping[StateQueuedForUpload] = "StateQueuedForUpload"
	stateMapping[StateVidMem] = "StateVidMem"
	stateMapping[StateFailed] = "StateFailed"
}

// ImageDesc is the target device-image description for a texture, decided at
// creation time independently of the texture's current residency.
type ImageDesc struct {
	Width  int
	Height int
	Depth  int

	MipLevels   int
	ArrayLayers int
	Format      core1_0.Format

	// TexelSize is the byte size of one texel of tightly-packed linear data
	TexelSize int
}

// DeviceImage is a device-resident image created by a TextureStore. The
// manager only tracks its lifetime- creation and population are store
// concerns.
type DeviceImage interface {
	// MipLevels returns the number of mip levels the image was created with
	MipLevels() int
	// Size returns the device memory footprint of the image in bytes
	Size() int
	// Destroy releases the image and its device memory
	Destroy()
}

// MipData is a host-memory byte payload covering a contiguous mip range of a
// texture's image pyramid.
type MipData struct {
	// FirstLevel is the smallest (largest-resolution) mip index covered
	FirstLevel int
	// LevelCount is the number of consecutive levels covered
	LevelCount int
	// Data holds the tightly-packed linear texel bytes, largest level first
	Data []byte
}

// largeMipLargestDim is the threshold separating "large" mips, which are
// streamed on demand and freed after promotion, from "small" tail mips, which
// are retained in host memory for fallback use.
const largeMipLargestDim = 64

// ManagedTexture is the residency state machine for one texture asset. It
// owns host-memory mip payloads and a handle to device image data, and
// transitions between states as scheduling and upload work completes.
//
// Payload validity is state-dependent: largeMips is only populated while an
// upload that needs it is being prepared or is in flight, smallMips persists
// from the first host load onward, and image is only current in StateVidMem.
type ManagedTexture struct {
	assetData  AssetData
	colorSpace ColorSpace

	futureImageDesc ImageDesc

	// numLargeMips counts the top (largest) mip levels that are streamed
	// rather than always preloaded
	numLargeMips int

	state atomic.Uint32

	largeMips *MipData
	smallMips *MipData

	// image is the current bindable device image; pendingImage is a promoted
	// image whose hand-off has not been finalized by the render thread yet
	image        DeviceImage
	pendingImage DeviceImage

	// frameQueuedForUpload is the frame counter value at enqueue time, used by
	// the worker to avoid same-frame uploads
	frameQueuedForUpload uint64

	// completionSyncpt identifies completion when an external I/O engine owns
	// the transfer
	completionSyncpt SyncToken

	// canDemote is false for forced-always-loaded content
	canDemote bool
}

// NewManagedTexture constructs a texture shell in StateHostMem with no host or
// device payloads. Store implementations call this from CreateTexture.
func NewManagedTexture(assetData AssetData, colorSpace ColorSpace, desc ImageDesc) *ManagedTexture {
	t := &ManagedTexture{
		assetData:       assetData,
		colorSpace:      colorSpace,
		futureImageDesc: desc,
		canDemote:       true,
	}
	t.numLargeMips = countLargeMips(desc)
	t.state.Store(uint32(StateHostMem))
	return t
}

func countLargeMips(desc ImageDesc) int {
	largest := desc.Width
	if desc.Height > largest {
		largest = desc.Height
	}

	count := 0
	for level := 0; level < desc.MipLevels; level++ {
		if mipmem.MipLevelDim(largest, level) <= largeMipLargestDim {
			break
		}
		count++
	}
	return count
}

func (t *ManagedTexture) State() State {
	return State(t.state.Load())
}

func (t *ManagedTexture) setState(state State) {
	t.state.Store(uint32(state))
}

func (t *ManagedTexture) AssetData() AssetData {
	return t.assetData
}

func (t *ManagedTexture) ColorSpace() ColorSpace {
	return t.colorSpace
}

func (t *ManagedTexture) ImageDesc() ImageDesc {
	return t.futureImageDesc
}

func (t *ManagedTexture) NumLargeMips() int {
	return t.numLargeMips
}

func (t *ManagedTexture) CanDemote() bool {
	return t.canDemote
}

func (t *ManagedTexture) CompletionSyncpt() SyncToken {
	return t.completionSyncpt
}

// SetCompletionSyncpt records the external I/O completion token for an upload
// dispatched to an offload engine. Called by TextureStore implementations.
func (t *ManagedTexture) SetCompletionSyncpt(token SyncToken) {
	t.completionSyncpt = token
}

func (t *ManagedTexture) LargeMips() *MipData {
	return t.largeMips
}

func (t *ManagedTexture) SmallMips() *MipData {
	return t.smallMips
}

// SetLargeMips attaches the streamed top-mip host payload. Called by
// TextureStore implementations from LoadTexture.
func (t *ManagedTexture) SetLargeMips(data *MipData) {
	t.largeMips = data
}

// SetSmallMips attaches the retained tail-mip host payload. Called by
// TextureStore implementations from LoadTexture.
func (t *ManagedTexture) SetSmallMips(data *MipData) {
	t.smallMips = data
}

// Image returns the current bindable device image, nil outside StateVidMem.
func (t *ManagedTexture) Image() DeviceImage {
	return t.image
}

// PendingImage returns a promoted device image whose hand-off has not been
// finalized yet, or nil.
func (t *ManagedTexture) PendingImage() DeviceImage {
	return t.pendingImage
}

// AttachPendingImage hands a freshly promoted device image to the texture.
// The image becomes current once FinalizePendingPromotion runs on the render
// thread. Called by TextureStore implementations from PromoteHostToVid.
func (t *ManagedTexture) AttachPendingImage(image DeviceImage) {
	if t.pendingImage != nil && t.pendingImage != image {
		t.pendingImage.Destroy()
	}
	t.pendingImage = image
}

// FinalizePendingPromotion completes the bookkeeping of a finished promotion:
// the pending image becomes the current one and the stale image is released.
// It returns true if the texture has reached its final destination and needs
// no further scheduling.
func (t *ManagedTexture) FinalizePendingPromotion() bool {
	if t.State() != StateVidMem {
		return false
	}

	if t.pendingImage != nil {
		if t.image != nil {
			t.image.Destroy()
		}
		t.image = t.pendingImage
		t.pendingImage = nil
	}

	return t.image != nil
}

// releaseLargeMips frees the streamed host payload once it is no longer
// needed, bounding host memory use.
func (t *ManagedTexture) releaseLargeMips() {
	t.largeMips = nil
}

// Demote releases device-resident image data, keeping small host mips for
// fallback. It no-ops for forced-always-loaded content. A texture in
// StateFailed stays failed- demotion only downgrades VidMem to HostMem.
func (t *ManagedTexture) Demote() {
	if !t.canDemote {
		return
	}

	if t.pendingImage != nil {
		t.pendingImage.Destroy()
		t.pendingImage = nil
	}
	if t.image != nil {
		t.image.Destroy()
		t.image = nil
	}
	t.largeMips = nil

	if t.State() == StateVidMem {
		t.setState(StateHostMem)
	}
}

// hostBytes reports the current host payload footprint.
func (t *ManagedTexture) hostBytes() int {
	var total int
	if t.largeMips != nil {
		total += len(t.largeMips.Data)
	}
	if t.smallMips != nil {
		total += len(t.smallMips.Data)
	}
	return total
}

// deviceBytes reports the current device image footprint.
func (t *ManagedTexture) deviceBytes() int {
	var total int
	if t.image != nil {
		total += t.image.Size()
	}
	if t.pendingImage != nil {
		total += t.pendingImage.Size()
	}
	return total
}
