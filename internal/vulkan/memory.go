package vulkan

import (
	"bytes"
	"encoding/binary"
	"math/bits"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// memoryTypeIndex returns the first memory type allowed by typeFilter that has
// all of the requested properties.
func memoryTypeIndex(types []core1_0.MemoryType, typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range types {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}
	return 0, errors.Newf("no memory type matches filter %#x with properties %v", typeFilter, properties)
}

func (c *Context) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := c.instanceDriver.GetPhysicalDeviceMemoryProperties(c.physicalDevice)
	return memoryTypeIndex(memProperties.MemoryTypes, typeFilter, properties)
}

// writeData copies data into host-visible memory. data must be encodable by
// encoding/binary.
func writeData(driver core1_0.DeviceDriver, memory core1_0.DeviceMemory, offset int, data any) error {
	bufferSize := binary.Size(data)
	if bufferSize < 0 {
		return errors.Newf("cannot encode %T", data)
	}

	memoryPtr, _, err := driver.MapMemory(memory, offset, bufferSize, 0)
	if err != nil {
		return err
	}
	defer driver.UnmapMemory(memory)

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), bufferSize)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return err
	}

	copy(dataBuffer, buf.Bytes())
	return nil
}

type allocatedBuffer struct {
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
	size   int
}

func (c *Context) createBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (allocatedBuffer, error) {
	handle, _, err := c.deviceDriver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return allocatedBuffer{}, err
	}
	b := allocatedBuffer{buffer: handle, size: size}

	memRequirements := c.deviceDriver.GetBufferMemoryRequirements(handle)
	typeIndex, err := c.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		c.destroyBuffer(b)
		return allocatedBuffer{}, err
	}

	b.memory, _, err = c.deviceDriver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: typeIndex,
	})
	if err != nil {
		c.destroyBuffer(b)
		return allocatedBuffer{}, err
	}

	if _, err = c.deviceDriver.BindBufferMemory(handle, b.memory, 0); err != nil {
		c.destroyBuffer(b)
		return allocatedBuffer{}, err
	}
	return b, nil
}

func (c *Context) destroyBuffer(b allocatedBuffer) {
	if b.buffer.Initialized() {
		c.deviceDriver.DestroyBuffer(b.buffer, nil)
	}
	if b.memory.Initialized() {
		c.deviceDriver.FreeMemory(b.memory, nil)
	}
}

// createDeviceLocalBuffer uploads data through a staging buffer into
// device-local memory.
func (c *Context) createDeviceLocalBuffer(data any, usage core1_0.BufferUsageFlags) (allocatedBuffer, error) {
	bufferSize := binary.Size(data)
	if bufferSize <= 0 {
		return allocatedBuffer{}, errors.Newf("cannot upload %T", data)
	}

	staging, err := c.createBuffer(bufferSize, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return allocatedBuffer{}, errors.Wrap(err, "create staging buffer")
	}
	defer c.destroyBuffer(staging)

	if err := writeData(c.deviceDriver, staging.memory, 0, data); err != nil {
		return allocatedBuffer{}, errors.Wrap(err, "fill staging buffer")
	}

	dst, err := c.createBuffer(bufferSize, core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return allocatedBuffer{}, err
	}

	if err := c.copyBuffer(staging.buffer, dst.buffer, bufferSize); err != nil {
		c.destroyBuffer(dst)
		return allocatedBuffer{}, errors.Wrap(err, "copy staging buffer")
	}
	return dst, nil
}

func (c *Context) beginSingleTimeCommands() (core1_0.CommandBuffer, error) {
	buffers, _, err := c.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        c.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return core1_0.CommandBuffer{}, err
	}

	buffer := buffers[0]
	_, err = c.deviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		c.deviceDriver.FreeCommandBuffers(buffer)
		return core1_0.CommandBuffer{}, err
	}
	return buffer, nil
}

func (c *Context) endSingleTimeCommands(buffer core1_0.CommandBuffer) error {
	defer c.deviceDriver.FreeCommandBuffers(buffer)

	if _, err := c.deviceDriver.EndCommandBuffer(buffer); err != nil {
		return err
	}

	_, err := c.deviceDriver.QueueSubmit(c.graphicsQueue, nil,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	)
	if err != nil {
		return err
	}

	_, err = c.deviceDriver.QueueWaitIdle(c.graphicsQueue)
	return err
}

func (c *Context) copyBuffer(srcBuffer core1_0.Buffer, dstBuffer core1_0.Buffer, size int) error {
	buffer, err := c.beginSingleTimeCommands()
	if err != nil {
		return err
	}

	err = c.deviceDriver.CmdCopyBuffer(buffer, srcBuffer, dstBuffer,
		core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	)
	if err != nil {
		c.deviceDriver.FreeCommandBuffers(buffer)
		return err
	}

	return c.endSingleTimeCommands(buffer)
}

type allocatedImage struct {
	image  core1_0.Image
	memory core1_0.DeviceMemory
	view   core1_0.ImageView
}

func (c *Context) destroyImage(img allocatedImage) {
	if img.view.Initialized() {
		c.deviceDriver.DestroyImageView(img.view, nil)
	}
	if img.image.Initialized() {
		c.deviceDriver.DestroyImage(img.image, nil)
	}
	if img.memory.Initialized() {
		c.deviceDriver.FreeMemory(img.memory, nil)
	}
}

func (c *Context) createImage(width, height int, mipLevels int, format core1_0.Format, usage core1_0.ImageUsageFlags) (allocatedImage, error) {
	handle, _, err := c.deviceDriver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     mipLevels,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return allocatedImage{}, err
	}
	img := allocatedImage{image: handle}

	memReqs := c.deviceDriver.GetImageMemoryRequirements(handle)
	memoryIndex, err := c.findMemoryType(memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		c.destroyImage(img)
		return allocatedImage{}, err
	}

	img.memory, _, err = c.deviceDriver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		c.destroyImage(img)
		return allocatedImage{}, err
	}

	if _, err = c.deviceDriver.BindImageMemory(handle, img.memory, 0); err != nil {
		c.destroyImage(img)
		return allocatedImage{}, err
	}
	return img, nil
}

func (c *Context) createImageView(img core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags, mipLevels int) (core1_0.ImageView, error) {
	imageView, _, err := c.deviceDriver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    img,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	return imageView, err
}

func (c *Context) findSupportedFormat(formats []core1_0.Format, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range formats {
		props := c.instanceDriver.GetPhysicalDeviceFormatProperties(c.physicalDevice, format)
		if (props.OptimalTilingFeatures & features) == features {
			return format, nil
		}
	}
	return 0, errors.Newf("no supported format for optimal tiling with features %v", features)
}

func (c *Context) findDepthFormat() (core1_0.Format, error) {
	return c.findSupportedFormat([]core1_0.Format{
		core1_0.FormatD32SignedFloat,
		core1_0.FormatD32SignedFloatS8UnsignedInt,
		core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
	}, core1_0.FormatFeatureDepthStencilAttachment)
}

// mipLevels is the length of the full mip chain down to 1x1.
func mipLevels(width, height int) int {
	largest := max(width, height, 1)
	return bits.Len(uint(largest))
}
