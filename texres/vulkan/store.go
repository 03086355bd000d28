package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/restex/mipmem"
	"github.com/vkngwrapper/restex/texres"
	"golang.org/x/exp/slog"
)

// StoreCreateOptions contains settings for creating a Store
type StoreCreateOptions struct {
	// Device and PhysicalDevice identify the device texture images are
	// created on. Required.
	Device         core1_0.Device
	PhysicalDevice core1_0.PhysicalDevice

	// AllocationCallbacks is an optional set of callbacks that will be
	// executed from Vulkan on memory created by this store
	AllocationCallbacks *driver.AllocationCallbacks

	// Logger receives this store's log output. When nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Store implements texres.TextureStore on a Vulkan device through
// vkngwrapper. Decoding is delegated to the asset- assets passed to
// CreateTexture must implement texres.ImageSource.
type Store struct {
	logger *slog.Logger

	device              core1_0.Device
	physicalDevice      core1_0.PhysicalDevice
	allocationCallbacks *driver.AllocationCallbacks

	memoryProperties *core1_0.PhysicalDeviceMemoryProperties

	// copyAlignment is the device's buffer copy offset alignment, applied to
	// every mip level staged for transfer
	copyAlignment uint
}

func NewStore(options StoreCreateOptions) (*Store, error) {
	if options.Device == nil {
		return nil, errors.New("vulkan.StoreCreateOptions.Device is required")
	}
	if options.PhysicalDevice == nil {
		return nil, errors.New("vulkan.StoreCreateOptions.PhysicalDevice is required")
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	properties, err := options.PhysicalDevice.Properties()
	if err != nil {
		return nil, errors.Wrap(err, "failed to query physical device properties")
	}

	copyAlignment := uint(properties.Limits.OptimalBufferCopyOffsetAlignment)
	if copyAlignment < 4 {
		// Texel transfers require 4-byte offsets even on devices that report a
		// looser optimal alignment
		copyAlignment = 4
	}
	err = mipmem.CheckPow2(copyAlignment, "device optimalBufferCopyOffsetAlignment")
	if err != nil {
		return nil, err
	}

	return &Store{
		logger:              logger,
		device:              options.Device,
		physicalDevice:      options.PhysicalDevice,
		allocationCallbacks: options.AllocationCallbacks,
		memoryProperties:    options.PhysicalDevice.MemoryProperties(),
		copyAlignment:       copyAlignment,
	}, nil
}

func (s *Store) CreateTexture(assetData texres.AssetData, colorSpace texres.ColorSpace) (*texres.ManagedTexture, error) {
	s.logger.Debug("Store::CreateTexture")

	source, ok := assetData.(texres.ImageSource)
	if !ok {
		return nil, errors.Mark(
			errors.Newf("asset %s cannot describe itself as an image", assetData.Name()),
			texres.DecodeError)
	}

	desc, err := source.ImageDesc()
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to read image description for asset %s", assetData.Name()), texres.DecodeError)
	}

	maxLevels := mipmem.MipChainLevels(desc.Width, desc.Height)
	if desc.MipLevels < 1 || desc.MipLevels > maxLevels {
		return nil, errors.Mark(
			errors.Newf("asset %s declares %d mip levels, but its extent supports between 1 and %d", assetData.Name(), desc.MipLevels, maxLevels),
			texres.DecodeError)
	}

	return texres.NewManagedTexture(assetData, colorSpace, desc), nil
}

func (s *Store) LoadTexture(ctx texres.UploadContext, texture *texres.ManagedTexture, aperture texres.MemoryAperture, mips texres.MipsToLoad, minMipLevel int) error {
	s.logger.Debug("Store::LoadTexture")

	if aperture != texres.ApertureHost {
		return errors.Mark(
			errors.Newf("aperture %s is not supported by this store", aperture.String()),
			texres.DecodeError)
	}

	source, ok := texture.AssetData().(texres.ImageSource)
	if !ok {
		return errors.Mark(
			errors.Newf("asset %s cannot decode itself", texture.AssetData().Name()),
			texres.DecodeError)
	}

	desc := texture.ImageDesc()
	numLargeMips := texture.NumLargeMips()

	loadLarge := mips == texres.MipsToLoadAll || mips == texres.MipsToLoadLarge
	loadSmall := mips == texres.MipsToLoadAll || mips == texres.MipsToLoadSmall

	if loadLarge && texture.LargeMips() == nil && numLargeMips > 0 {
		firstLevel := minMipLevel
		if firstLevel > numLargeMips {
			firstLevel = numLargeMips
		}
		levelCount := numLargeMips - firstLevel
		if levelCount > 0 {
			data, err := source.DecodeMipRange(firstLevel, levelCount)
			if err != nil {
				return errors.Mark(errors.Wrapf(err, "failed to decode large mips for asset %s", texture.AssetData().Name()), texres.DecodeError)
			}
			texture.SetLargeMips(&texres.MipData{
				FirstLevel: firstLevel,
				LevelCount: levelCount,
				Data:       data,
			})
		}
	}

	if loadSmall && texture.SmallMips() == nil {
		levelCount := desc.MipLevels - numLargeMips
		if levelCount > 0 {
			data, err := source.DecodeMipRange(numLargeMips, levelCount)
			if err != nil {
				return errors.Mark(errors.Wrapf(err, "failed to decode small mips for asset %s", texture.AssetData().Name()), texres.DecodeError)
			}
			texture.SetSmallMips(&texres.MipData{
				FirstLevel: numLargeMips,
				LevelCount: levelCount,
				Data:       data,
			})
		}
	}

	return nil
}

// deviceImage implements texres.DeviceImage for an image this store created
// with its backing memory.
type deviceImage struct {
	image  core1_0.Image
	memory core1_0.DeviceMemory
	size   int

	mipLevels int

	allocationCallbacks *driver.AllocationCallbacks
}

func (i *deviceImage) MipLevels() int {
	return i.mipLevels
}

func (i *deviceImage) Size() int {
	return i.size
}

func (i *deviceImage) Destroy() {
	i.image.Destroy(i.allocationCallbacks)
	i.memory.Free(i.allocationCallbacks)
}

func (s *Store) PromoteHostToVid(ctx texres.UploadContext, texture *texres.ManagedTexture, largestMipToPreload int) error {
	s.logger.Debug("Store::PromoteHostToVid")

	vkCtx, ok := ctx.(*Context)
	if !ok {
		return errors.Mark(errors.New("this store requires a vulkan.Context upload context"), texres.DeviceResourceError)
	}

	desc := texture.ImageDesc()

	image, err := s.imageForPromotion(texture, desc)
	if err != nil {
		return err
	}

	err = s.uploadMips(vkCtx, texture, image, desc, largestMipToPreload)
	if err != nil {
		return err
	}

	return nil
}

// imageForPromotion returns the texture's pending device image, creating and
// attaching one sized for the full future mip chain when none exists yet.
func (s *Store) imageForPromotion(texture *texres.ManagedTexture, desc texres.ImageDesc) (*deviceImage, error) {
	if pending, ok := texturePendingImage(texture); ok {
		return pending, nil
	}

	depth := desc.Depth
	if depth < 1 {
		depth = 1
	}
	arrayLayers := desc.ArrayLayers
	if arrayLayers < 1 {
		arrayLayers = 1
	}

	vkImage, _, err := s.device.CreateImage(s.allocationCallbacks, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Format:    desc.Format,
		Extent: core1_0.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  depth,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   arrayLayers,
		Samples:       core1_0.Samples1,
		Tiling:        core1_0.ImageTilingOptimal,
		Usage:         core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		InitialLayout: core1_0.ImageLayoutUndefined,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to create device image"), texres.DeviceResourceError)
	}

	memReqs := vkImage.MemoryRequirements()
	memoryTypeIndex, err := s.findMemoryType(memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		vkImage.Destroy(s.allocationCallbacks)
		return nil, err
	}

	memory, _, err := s.device.AllocateMemory(s.allocationCallbacks, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		vkImage.Destroy(s.allocationCallbacks)
		return nil, errors.Mark(errors.Wrap(err, "failed to allocate device image memory"), texres.DeviceResourceError)
	}

	_, err = vkImage.BindImageMemory(memory, 0)
	if err != nil {
		vkImage.Destroy(s.allocationCallbacks)
		memory.Free(s.allocationCallbacks)
		return nil, errors.Mark(errors.Wrap(err, "failed to bind device image memory"), texres.DeviceResourceError)
	}

	image := &deviceImage{
		image:               vkImage,
		memory:              memory,
		size:                memReqs.Size,
		mipLevels:           desc.MipLevels,
		allocationCallbacks: s.allocationCallbacks,
	}
	texture.AttachPendingImage(image)
	return image, nil
}

func texturePendingImage(texture *texres.ManagedTexture) (*deviceImage, bool) {
	// Demotion destroys both image slots, so any live handle here is one this
	// store created
	if img := texture.PendingImage(); img != nil {
		if pending, ok := img.(*deviceImage); ok {
			return pending, true
		}
	}
	if img := texture.Image(); img != nil {
		if current, ok := img.(*deviceImage); ok {
			return current, true
		}
	}
	return nil, false
}

// uploadMips stages every host-resident mip level at or below
// largestMipToPreload into the device image through a mapped staging buffer.
func (s *Store) uploadMips(ctx *Context, texture *texres.ManagedTexture, image *deviceImage, desc texres.ImageDesc, largestMipToPreload int) error {
	payloads := make([]*texres.MipData, 0, 2)
	if texture.LargeMips() != nil {
		payloads = append(payloads, texture.LargeMips())
	}
	if texture.SmallMips() != nil {
		payloads = append(payloads, texture.SmallMips())
	}

	var copies []mipCopy
	var stagingSize int
	for _, payload := range payloads {
		payloadOffset := 0
		for level := payload.FirstLevel; level < payload.FirstLevel+payload.LevelCount; level++ {
			levelBytes := mipmem.MipLevelBytes(desc.Width, desc.Height, level, desc.TexelSize)
			if level >= largestMipToPreload {
				copies = append(copies, mipCopy{
					level:         level,
					payload:       payload,
					payloadOffset: payloadOffset,
					byteSize:      levelBytes,
				})
				stagingSize += mipmem.AlignUp(levelBytes, s.copyAlignment)
			}
			payloadOffset += levelBytes
		}
	}

	if len(copies) == 0 {
		return nil
	}

	buffer, memory, mapped, err := s.createStagingBuffer(stagingSize)
	if err != nil {
		return err
	}
	ctx.holdStaging(buffer, memory)

	commandBuffer, err := ctx.beginRecording()
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to begin transfer recording"), texres.DeviceResourceError)
	}

	regions := make([]core1_0.BufferImageCopy, 0, len(copies))
	stagingOffset := 0
	for _, c := range copies {
		copy(mapped[stagingOffset:stagingOffset+c.byteSize], c.payload.Data[c.payloadOffset:c.payloadOffset+c.byteSize])

		regions = append(regions, core1_0.BufferImageCopy{
			BufferOffset: stagingOffset,
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       c.level,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageExtent: core1_0.Extent3D{
				Width:  mipmem.MipLevelDim(desc.Width, c.level),
				Height: mipmem.MipLevelDim(desc.Height, c.level),
				Depth:  1,
			},
		})

		stagingOffset += mipmem.AlignUp(c.byteSize, s.copyAlignment)
	}

	err = s.recordUpload(commandBuffer, image.image, buffer, regions, desc.MipLevels)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to record mip upload"), texres.DeviceResourceError)
	}

	return nil
}

type mipCopy struct {
	level         int
	payload       *texres.MipData
	payloadOffset int
	byteSize      int
}

func (s *Store) createStagingBuffer(size int) (core1_0.Buffer, core1_0.DeviceMemory, []byte, error) {
	buffer, _, err := s.device.CreateBuffer(s.allocationCallbacks, core1_0.BufferCreateInfo{
		Size:  size,
		Usage: core1_0.BufferUsageTransferSrc,
	})
	if err != nil {
		return nil, nil, nil, errors.Mark(errors.Wrap(err, "failed to create staging buffer"), texres.DeviceResourceError)
	}

	memReqs := buffer.MemoryRequirements()
	memoryTypeIndex, err := s.findMemoryType(memReqs.MemoryTypeBits,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		buffer.Destroy(s.allocationCallbacks)
		return nil, nil, nil, err
	}

	memory, _, err := s.device.AllocateMemory(s.allocationCallbacks, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		buffer.Destroy(s.allocationCallbacks)
		return nil, nil, nil, errors.Mark(errors.Wrap(err, "failed to allocate staging memory"), texres.DeviceResourceError)
	}

	_, err = buffer.BindBufferMemory(memory, 0)
	if err != nil {
		buffer.Destroy(s.allocationCallbacks)
		memory.Free(s.allocationCallbacks)
		return nil, nil, nil, errors.Mark(errors.Wrap(err, "failed to bind staging memory"), texres.DeviceResourceError)
	}

	ptr, _, err := memory.Map(0, memReqs.Size, 0)
	if err != nil {
		buffer.Destroy(s.allocationCallbacks)
		memory.Free(s.allocationCallbacks)
		return nil, nil, nil, errors.Mark(errors.Wrap(err, "failed to map staging memory"), texres.DeviceResourceError)
	}

	mapped := unsafe.Slice((*byte)(ptr), memReqs.Size)
	return buffer, memory, mapped, nil
}

func (s *Store) recordUpload(commandBuffer core1_0.CommandBuffer, image core1_0.Image, buffer core1_0.Buffer, regions []core1_0.BufferImageCopy, mipLevels int) error {
	subresourceRange := core1_0.ImageSubresourceRange{
		AspectMask:     core1_0.ImageAspectColor,
		BaseMipLevel:   0,
		LevelCount:     mipLevels,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}

	err := commandBuffer.CmdPipelineBarrier(
		core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageTransfer, 0,
		nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				SrcAccessMask:       0,
				DstAccessMask:       core1_0.AccessTransferWrite,
				OldLayout:           core1_0.ImageLayoutUndefined,
				NewLayout:           core1_0.ImageLayoutTransferDstOptimal,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				Image:               image,
				SubresourceRange:    subresourceRange,
			},
		})
	if err != nil {
		return err
	}

	err = commandBuffer.CmdCopyBufferToImage(buffer, image, core1_0.ImageLayoutTransferDstOptimal, regions)
	if err != nil {
		return err
	}

	return commandBuffer.CmdPipelineBarrier(
		core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader, 0,
		nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				SrcAccessMask:       core1_0.AccessTransferWrite,
				DstAccessMask:       core1_0.AccessShaderRead,
				OldLayout:           core1_0.ImageLayoutTransferDstOptimal,
				NewLayout:           core1_0.ImageLayoutShaderReadOnlyOptimal,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				Image:               image,
				SubresourceRange:    subresourceRange,
			},
		})
}

func (s *Store) findMemoryType(typeBits uint32, required core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range s.memoryProperties.MemoryTypes {
		if typeBits&(1<<uint(i)) == 0 {
			continue
		}
		if memoryType.PropertyFlags&required == required {
			return i, nil
		}
	}

	return 0, errors.Mark(
		errors.Newf("no memory type satisfies flags %s", required.String()),
		texres.DeviceResourceError)
}
