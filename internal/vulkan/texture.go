package vulkan

import (
	"image"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const textureFormat = core1_0.FormatR8G8B8A8SRGB

type texture struct {
	allocatedImage
	sampler   core1_0.Sampler
	mipLevels int
}

func (c *Context) destroyTexture(t *texture) {
	if t.sampler.Initialized() {
		c.deviceDriver.DestroySampler(t.sampler, nil)
	}
	c.destroyImage(t.allocatedImage)
}

// createTexture uploads pixels, builds the full mip chain on the GPU and
// creates an anisotropic sampler over it.
func (c *Context) createTexture(pixels *image.RGBA) (*texture, error) {
	width, height := pixels.Rect.Dx(), pixels.Rect.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("empty texture")
	}

	properties := c.instanceDriver.GetPhysicalDeviceFormatProperties(c.physicalDevice, textureFormat)
	if (properties.OptimalTilingFeatures & core1_0.FormatFeatureSampledImageFilterLinear) == 0 {
		return nil, errors.Newf("texture format %v does not support linear blitting", textureFormat)
	}

	t := &texture{mipLevels: mipLevels(width, height)}
	pixelData := packRows(pixels)

	staging, err := c.createBuffer(len(pixelData), core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}
	defer c.destroyBuffer(staging)

	if err := writeData(c.deviceDriver, staging.memory, 0, pixelData); err != nil {
		return nil, errors.Wrap(err, "fill staging buffer")
	}

	t.allocatedImage, err = c.createImage(width, height, t.mipLevels, textureFormat,
		core1_0.ImageUsageTransferSrc|core1_0.ImageUsageTransferDst|core1_0.ImageUsageSampled)
	if err != nil {
		return nil, errors.Wrap(err, "create texture image")
	}

	err = c.uploadTexture(staging.buffer, t.image, width, height, t.mipLevels)
	if err != nil {
		c.destroyTexture(t)
		return nil, err
	}

	t.view, err = c.createImageView(t.image, textureFormat, core1_0.ImageAspectColor, t.mipLevels)
	if err != nil {
		c.destroyTexture(t)
		return nil, errors.Wrap(err, "create texture view")
	}

	t.sampler, _, err = c.deviceDriver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: true,
		MaxAnisotropy:    c.properties.Limits.MaxSamplerAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     float32(t.mipLevels),
	})
	if err != nil {
		c.destroyTexture(t)
		return nil, errors.Wrap(err, "create sampler")
	}

	return t, nil
}

// packRows returns the pixel bytes without any row padding.
func packRows(img *image.RGBA) []byte {
	width, height := img.Rect.Dx(), img.Rect.Dy()
	rowBytes := width * 4
	if img.Stride == rowBytes {
		return img.Pix[:rowBytes*height]
	}

	out := make([]byte, 0, rowBytes*height)
	for y := 0; y < height; y++ {
		start := y * img.Stride
		out = append(out, img.Pix[start:start+rowBytes]...)
	}
	return out
}

// uploadTexture records the copy and the mip chain into one command buffer.
// Every level ends in SHADER_READ_ONLY_OPTIMAL.
func (c *Context) uploadTexture(staging core1_0.Buffer, img core1_0.Image, width, height, levels int) error {
	commandBuffer, err := c.beginSingleTimeCommands()
	if err != nil {
		return err
	}
	if err := c.recordTextureUpload(commandBuffer, staging, img, width, height, levels); err != nil {
		c.deviceDriver.FreeCommandBuffers(commandBuffer)
		return err
	}
	return c.endSingleTimeCommands(commandBuffer)
}

func (c *Context) recordTextureUpload(commandBuffer core1_0.CommandBuffer, staging core1_0.Buffer, img core1_0.Image, width, height, levels int) error {
	barrier := core1_0.ImageMemoryBarrier{
		Image:               img,
		SrcQueueFamilyIndex: -1,
		DstQueueFamilyIndex: -1,
		OldLayout:           core1_0.ImageLayoutUndefined,
		NewLayout:           core1_0.ImageLayoutTransferDstOptimal,
		SrcAccessMask:       0,
		DstAccessMask:       core1_0.AccessTransferWrite,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     levels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	err := c.deviceDriver.CmdPipelineBarrier(commandBuffer, core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageTransfer, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
	if err != nil {
		return err
	}

	err = c.deviceDriver.CmdCopyBufferToImage(commandBuffer, staging, img, core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: width, Height: height, Depth: 1},
		},
	)
	if err != nil {
		return err
	}

	barrier.SubresourceRange.LevelCount = 1
	mipWidth := width
	mipHeight := height
	for i := 1; i < levels; i++ {
		barrier.SubresourceRange.BaseMipLevel = i - 1
		barrier.OldLayout = core1_0.ImageLayoutTransferDstOptimal
		barrier.NewLayout = core1_0.ImageLayoutTransferSrcOptimal
		barrier.SrcAccessMask = core1_0.AccessTransferWrite
		barrier.DstAccessMask = core1_0.AccessTransferRead

		err = c.deviceDriver.CmdPipelineBarrier(commandBuffer, core1_0.PipelineStageTransfer, core1_0.PipelineStageTransfer, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
		if err != nil {
			return err
		}

		nextMipWidth := max(mipWidth/2, 1)
		nextMipHeight := max(mipHeight/2, 1)

		err = c.deviceDriver.CmdBlitImage(commandBuffer, img, core1_0.ImageLayoutTransferSrcOptimal, img, core1_0.ImageLayoutTransferDstOptimal, []core1_0.ImageBlit{
			{
				SrcSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       i - 1,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				SrcOffsets: [2]core1_0.Offset3D{
					{X: 0, Y: 0, Z: 0},
					{X: mipWidth, Y: mipHeight, Z: 1},
				},
				DstSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       i,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				DstOffsets: [2]core1_0.Offset3D{
					{X: 0, Y: 0, Z: 0},
					{X: nextMipWidth, Y: nextMipHeight, Z: 1},
				},
			},
		}, core1_0.FilterLinear)
		if err != nil {
			return err
		}

		barrier.OldLayout = core1_0.ImageLayoutTransferSrcOptimal
		barrier.NewLayout = core1_0.ImageLayoutShaderReadOnlyOptimal
		barrier.SrcAccessMask = core1_0.AccessTransferRead
		barrier.DstAccessMask = core1_0.AccessShaderRead
		err = c.deviceDriver.CmdPipelineBarrier(commandBuffer, core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
		if err != nil {
			return err
		}

		mipWidth = nextMipWidth
		mipHeight = nextMipHeight
	}

	barrier.SubresourceRange.BaseMipLevel = levels - 1
	barrier.OldLayout = core1_0.ImageLayoutTransferDstOptimal
	barrier.NewLayout = core1_0.ImageLayoutShaderReadOnlyOptimal
	barrier.SrcAccessMask = core1_0.AccessTransferWrite
	barrier.DstAccessMask = core1_0.AccessShaderRead

	return c.deviceDriver.CmdPipelineBarrier(
		commandBuffer,
		core1_0.PipelineStageTransfer,
		core1_0.PipelineStageFragmentShader,
		0, nil, nil,
		[]core1_0.ImageMemoryBarrier{barrier})
}
