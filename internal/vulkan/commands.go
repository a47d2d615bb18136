package vulkan

import (
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkrender/internal/render"
)

func (ch *chain) createCommandBuffers() error {
	buffers, _, err := ch.ctx.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        ch.ctx.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: len(ch.images),
	})
	if err != nil {
		return err
	}
	for i := range ch.images {
		ch.images[i].commands = buffers[i]
	}

	for i := range ch.images {
		if err := ch.recordCommandBuffer(i); err != nil {
			return err
		}
	}
	return nil
}

func (ch *chain) freeCommandBuffers() {
	var buffers []core1_0.CommandBuffer
	for i := range ch.images {
		if ch.images[i].commands.Initialized() {
			buffers = append(buffers, ch.images[i].commands)
			ch.images[i].commands = core1_0.CommandBuffer{}
		}
	}
	if len(buffers) > 0 {
		ch.ctx.deviceDriver.FreeCommandBuffers(buffers...)
	}
}

// recordCommandBuffer records the whole scene into the image's command buffer:
// one render pass clearing colour and depth, then every pipeline's mesh.
func (ch *chain) recordCommandBuffer(imageIndex int) error {
	driver := ch.ctx.deviceDriver
	res := &ch.images[imageIndex]
	buffer := res.commands

	_, err := driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return render.RecordingError(err, "begin command buffer")
	}

	err = driver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  ch.renderPass,
			Framebuffer: res.framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: ch.extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat{0, 0, 0, 1},
				core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
			},
		})
	if err != nil {
		return render.RecordingError(err, "begin render pass")
	}

	for p, pipeline := range ch.ctx.scene.pipelines {
		driver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, ch.pipelines[p])
		driver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{pipeline.vertices.buffer}, []int{0})
		driver.CmdBindIndexBuffer(buffer, pipeline.indices.buffer, 0, core1_0.IndexTypeUInt32)
		if pipeline.spec.hasDescriptors() {
			driver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, pipeline.layout, 0, []core1_0.DescriptorSet{
				res.sets[p],
			}, nil)
		}
		driver.CmdDrawIndexed(buffer, pipeline.indexCount, 1, 0, 0, 0)
	}
	driver.CmdEndRenderPass(buffer)

	_, err = driver.EndCommandBuffer(buffer)
	if err != nil {
		return render.RecordingError(err, "end command buffer")
	}
	return nil
}
