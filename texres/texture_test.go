package texres

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testImageDesc(width, height, mipLevels int) ImageDesc {
	return ImageDesc{
		Width:     width,
		Height:    height,
		MipLevels: mipLevels,
		TexelSize: 4,
	}
}

func TestNewManagedTextureLargeMipCount(t *testing.T) {
	tests := []struct {
		name     string
		desc     ImageDesc
		expected int
	}{
		{"512 square", testImageDesc(512, 512, 10), 3},
		{"wide", testImageDesc(1024, 64, 11), 4},
		{"tall", testImageDesc(64, 1024, 11), 4},
		{"at threshold", testImageDesc(64, 64, 7), 0},
		{"below threshold", testImageDesc(16, 16, 5), 0},
		{"single level", testImageDesc(4096, 4096, 1), 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			texture := NewManagedTexture(&fakeAsset{name: test.name}, ColorSpaceAuto, test.desc)
			require.Equal(t, test.expected, texture.NumLargeMips())
			require.Equal(t, StateHostMem, texture.State())
			require.True(t, texture.CanDemote())
		})
	}
}

func TestFinalizePendingPromotion(t *testing.T) {
	texture := NewManagedTexture(&fakeAsset{name: "albedo"}, ColorSpaceAuto, testImageDesc(512, 512, 10))

	// Nothing to finalize outside VidMem
	require.False(t, texture.FinalizePendingPromotion())

	pending := &fakeImage{size: 1 << 20}
	texture.AttachPendingImage(pending)
	require.False(t, texture.FinalizePendingPromotion())
	require.Nil(t, texture.Image())

	texture.setState(StateVidMem)
	require.True(t, texture.FinalizePendingPromotion())
	require.Same(t, DeviceImage(pending), texture.Image())
	require.Nil(t, texture.PendingImage())

	// Finalizing again keeps the current image
	require.True(t, texture.FinalizePendingPromotion())
	require.Same(t, DeviceImage(pending), texture.Image())
}

func TestFinalizePendingPromotionReleasesStaleImage(t *testing.T) {
	texture := NewManagedTexture(&fakeAsset{name: "albedo"}, ColorSpaceAuto, testImageDesc(512, 512, 10))
	texture.setState(StateVidMem)

	stale := &fakeImage{size: 1 << 18}
	texture.AttachPendingImage(stale)
	require.True(t, texture.FinalizePendingPromotion())

	fresh := &fakeImage{size: 1 << 20}
	texture.AttachPendingImage(fresh)
	require.True(t, texture.FinalizePendingPromotion())

	require.Same(t, DeviceImage(fresh), texture.Image())
	require.True(t, stale.destroyed.Load())
	require.False(t, fresh.destroyed.Load())
}

func TestAttachPendingImageReplacesUnfinalized(t *testing.T) {
	texture := NewManagedTexture(&fakeAsset{name: "albedo"}, ColorSpaceAuto, testImageDesc(512, 512, 10))

	first := &fakeImage{size: 1 << 20}
	second := &fakeImage{size: 1 << 20}
	texture.AttachPendingImage(first)
	texture.AttachPendingImage(second)

	require.True(t, first.destroyed.Load())
	require.Same(t, DeviceImage(second), texture.PendingImage())
}

func TestDemoteReleasesDeviceData(t *testing.T) {
	texture := NewManagedTexture(&fakeAsset{name: "albedo"}, ColorSpaceAuto, testImageDesc(512, 512, 10))
	texture.SetLargeMips(&MipData{LevelCount: 3, Data: make([]byte, 4096)})
	texture.SetSmallMips(&MipData{FirstLevel: 3, LevelCount: 7, Data: make([]byte, 512)})

	image := &fakeImage{size: 1 << 20}
	texture.AttachPendingImage(image)
	texture.setState(StateVidMem)
	require.True(t, texture.FinalizePendingPromotion())

	texture.Demote()

	require.Equal(t, StateHostMem, texture.State())
	require.Nil(t, texture.Image())
	require.Nil(t, texture.LargeMips())
	require.NotNil(t, texture.SmallMips())
	require.True(t, image.destroyed.Load())
}

func TestDemotePreservesFailed(t *testing.T) {
	texture := NewManagedTexture(&fakeAsset{name: "albedo"}, ColorSpaceAuto, testImageDesc(512, 512, 10))
	texture.setState(StateFailed)

	texture.Demote()

	require.Equal(t, StateFailed, texture.State())
}

func TestStateStrings(t *testing.T) {
	require.Equal(t, "StateHostMem", StateHostMem.String())
	require.Equal(t, "StateQueuedForUpload", StateQueuedForUpload.String())
	require.Equal(t, "StateVidMem", StateVidMem.String())
	require.Equal(t, "StateFailed", StateFailed.String())
}
