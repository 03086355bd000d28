package texres

import (
	"github.com/cespare/xxhash/v2"
)

// ColorSpace tags how an asset's texel data should be interpreted when the
// device image is created.
type ColorSpace uint32

const (
	ColorSpaceAuto ColorSpace = iota
	ColorSpaceSRGB
	ColorSpaceLinear
)

var colorSpaceMapping = make(map[ColorSpace]string)

func (c ColorSpace) String() string {
	return colorSpaceMapping[c]
}

func init() {
	colorSpaceMapping[ColorSpaceAuto] = "ColorSpaceAuto"
	colorSpaceMapping[ColorSpaceSRGB] = "ColorSpaceSRGB"
	colorSpaceMapping[ColorSpaceLinear] = "ColorSpaceLinear"
}

// AssetData is the backing data of one texture asset. The hash is a stable
// content hash- the same asset bytes always produce the same hash, across
// reloads, and it is the identity under which the texture is cached.
type AssetData interface {
	// Hash returns the 64-bit content hash of the backing asset bytes
	Hash() uint64
	// Name returns a human-readable identifier for logs and stats dumps
	Name() string
}

// ImageSource is implemented by assets that can describe and decode
// themselves. TextureStore implementations that perform real decoding require
// their AssetData to satisfy this interface.
type ImageSource interface {
	AssetData

	// ImageDesc returns the target device-image description for this asset
	ImageDesc() (ImageDesc, error)
	// DecodeMipRange decodes levelCount consecutive mip levels starting at
	// firstLevel into a tightly-packed linear byte payload
	DecodeMipRange(firstLevel, levelCount int) ([]byte, error)
}

// RawAssetData is a byte-slice AssetData whose hash is computed once at
// construction time.
type RawAssetData struct {
	name string
	data []byte
	hash uint64
}

func NewRawAssetData(name string, data []byte) *RawAssetData {
	return &RawAssetData{
		name: name,
		data: data,
		hash: xxhash.Sum64(data),
	}
}

func (a *RawAssetData) Hash() uint64 {
	return a.hash
}

func (a *RawAssetData) Name() string {
	return a.name
}

func (a *RawAssetData) Data() []byte {
	return a.data
}
