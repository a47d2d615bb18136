package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/vkrender/internal/lifecycle"
	"github.com/vkngwrapper/vkrender/internal/render"
)

// imageResources are the objects that exist once per swapchain image.
type imageResources struct {
	image       core1_0.Image
	view        core1_0.ImageView
	framebuffer core1_0.Framebuffer
	commands    core1_0.CommandBuffer
	// uniforms and sets are indexed like sceneResources.pipelines. Entries for
	// pipelines without a uniform or descriptor set are left zero.
	uniforms []allocatedBuffer
	sets     []core1_0.DescriptorSet
}

// chain is one swapchain generation: the swapchain and every object sized or
// counted by it.
type chain struct {
	ctx  *Context
	plan *lifecycle.Plan

	swapchain   khr_swapchain.Swapchain
	format      khr_surface.SurfaceFormat
	presentMode khr_surface.PresentMode
	extent      core1_0.Extent2D

	renderPass     core1_0.RenderPass
	pipelines      []core1_0.Pipeline
	depthFormat    core1_0.Format
	depth          allocatedImage
	descriptorPool core1_0.DescriptorPool
	images         []imageResources
}

var _ render.Chain = (*chain)(nil)

// stage wraps a create step so that a partial failure releases whatever the
// step created before failing. Every destroy function tolerates
// uninitialised handles.
func stage(name string, create func() error, destroy func(), after ...string) lifecycle.Stage {
	return lifecycle.Stage{
		Name:  name,
		After: after,
		Create: func() error {
			if err := create(); err != nil {
				destroy()
				return err
			}
			return nil
		},
		Destroy: destroy,
	}
}

// stages lists the swapchain-dependent objects in creation order. Teardown runs
// the list backwards, so every object is destroyed before the ones it was
// built from.
func (ch *chain) stages() []lifecycle.Stage {
	return []lifecycle.Stage{
		stage("swapchain", ch.createSwapchain, ch.destroySwapchain),
		stage("image-views", ch.createImageViews, ch.destroyImageViews, "swapchain"),
		stage("render-pass", ch.createRenderPass, ch.destroyRenderPass, "swapchain"),
		stage("pipelines", ch.createPipelines, ch.destroyPipelines, "render-pass"),
		stage("depth", ch.createDepthResources, ch.destroyDepthResources, "swapchain"),
		stage("framebuffers", ch.createFramebuffers, ch.destroyFramebuffers, "image-views", "render-pass", "depth"),
		stage("uniform-buffers", ch.createUniformBuffers, ch.destroyUniformBuffers, "swapchain"),
		stage("descriptors", ch.createDescriptorSets, ch.destroyDescriptorPool, "uniform-buffers"),
		stage("command-buffers", ch.createCommandBuffers, ch.freeCommandBuffers, "framebuffers", "pipelines", "descriptors"),
	}
}

func newChain(c *Context) (*chain, error) {
	ch := &chain{ctx: c}

	plan, err := lifecycle.NewPlan(ch.stages()...)
	if err != nil {
		return nil, err
	}
	ch.plan = plan

	if err := plan.Build(); err != nil {
		return nil, err
	}

	c.log.Info("swapchain created",
		"format", ch.format.Format,
		"color_space", ch.format.ColorSpace,
		"present_mode", ch.presentMode,
		"extent", ch.Extent().String(),
		"images", len(ch.images),
	)
	c.log.Debug("swapchain stages", "order", plan.Names())
	return ch, nil
}

func (ch *chain) Extent() render.Extent {
	return render.Extent{Width: ch.extent.Width, Height: ch.extent.Height}
}

func (ch *chain) ImageCount() int {
	return len(ch.images)
}

func (ch *chain) Destroy() {
	if !ch.plan.Built() {
		return
	}
	ch.ctx.log.Debug("destroying swapchain", "order", ch.plan.TeardownOrder())
	ch.plan.Teardown()
}

func (ch *chain) createSwapchain() error {
	c := ch.ctx
	support, err := c.querySwapchainSupport(c.physicalDevice)
	if err != nil {
		return err
	}

	ch.format, err = chooseSurfaceFormat(support.formats)
	if err != nil {
		return err
	}
	ch.presentMode = choosePresentMode(support.presentModes, c.opts.PresentMode)

	width, height := c.window.DrawableSize()
	ch.extent = chooseExtent(support.capabilities, width, height)
	if ch.extent.Width <= 0 || ch.extent.Height <= 0 {
		return errors.Newf("surface has no area (%dx%d)", ch.extent.Width, ch.extent.Height)
	}

	sharing, queueFamilyIndices := sharingMode(c.families)

	ch.swapchain, _, err = c.swapchainExtension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: c.surface,

		MinImageCount:    chooseImageCount(support.capabilities),
		ImageFormat:      ch.format.Format,
		ImageColorSpace:  ch.format.ColorSpace,
		ImageExtent:      ch.extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharing,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   support.capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    ch.presentMode,
		Clipped:        true,
	})
	return err
}

func (ch *chain) destroySwapchain() {
	if ch.swapchain.Initialized() {
		ch.ctx.swapchainExtension.DestroySwapchain(ch.swapchain, nil)
		ch.swapchain = khr_swapchain.Swapchain{}
	}
	ch.images = nil
}

func (ch *chain) createImageViews() error {
	images, _, err := ch.ctx.swapchainExtension.GetSwapchainImages(ch.swapchain)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return errors.New("swapchain has no images")
	}

	ch.images = make([]imageResources, len(images))
	for i, img := range images {
		ch.images[i].image = img
		ch.images[i].view, err = ch.ctx.createImageView(img, ch.format.Format, core1_0.ImageAspectColor, 1)
		if err != nil {
			return err
		}
	}
	return nil
}

func (ch *chain) destroyImageViews() {
	for i := range ch.images {
		if ch.images[i].view.Initialized() {
			ch.ctx.deviceDriver.DestroyImageView(ch.images[i].view, nil)
			ch.images[i].view = core1_0.ImageView{}
		}
	}
}

func (ch *chain) createRenderPass() error {
	var err error
	ch.depthFormat, err = ch.ctx.findDepthFormat()
	if err != nil {
		return err
	}

	ch.renderPass, _, err = ch.ctx.deviceDriver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         ch.format.Format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
			{
				Format:         ch.depthFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	return err
}

func (ch *chain) destroyRenderPass() {
	if ch.renderPass.Initialized() {
		ch.ctx.deviceDriver.DestroyRenderPass(ch.renderPass, nil)
		ch.renderPass = core1_0.RenderPass{}
	}
}

func (ch *chain) createPipelines() error {
	for _, p := range ch.ctx.scene.pipelines {
		pipeline, err := ch.ctx.createGraphicsPipeline(p, ch.renderPass, ch.extent)
		if err != nil {
			return err
		}
		ch.pipelines = append(ch.pipelines, pipeline)
	}
	return nil
}

func (ch *chain) destroyPipelines() {
	for _, pipeline := range ch.pipelines {
		ch.ctx.deviceDriver.DestroyPipeline(pipeline, nil)
	}
	ch.pipelines = nil
}

func (ch *chain) createDepthResources() error {
	var err error
	ch.depth, err = ch.ctx.createImage(ch.extent.Width, ch.extent.Height, 1, ch.depthFormat, core1_0.ImageUsageDepthStencilAttachment)
	if err != nil {
		return err
	}
	ch.depth.view, err = ch.ctx.createImageView(ch.depth.image, ch.depthFormat, core1_0.ImageAspectDepth, 1)
	return err
}

func (ch *chain) destroyDepthResources() {
	ch.ctx.destroyImage(ch.depth)
	ch.depth = allocatedImage{}
}

func (ch *chain) createFramebuffers() error {
	for i := range ch.images {
		framebuffer, _, err := ch.ctx.deviceDriver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass: ch.renderPass,
			Layers:     1,
			Attachments: []core1_0.ImageView{
				ch.images[i].view,
				ch.depth.view,
			},
			Width:  ch.extent.Width,
			Height: ch.extent.Height,
		})
		if err != nil {
			return err
		}
		ch.images[i].framebuffer = framebuffer
	}
	return nil
}

func (ch *chain) destroyFramebuffers() {
	for i := range ch.images {
		if ch.images[i].framebuffer.Initialized() {
			ch.ctx.deviceDriver.DestroyFramebuffer(ch.images[i].framebuffer, nil)
			ch.images[i].framebuffer = core1_0.Framebuffer{}
		}
	}
}

func (ch *chain) createUniformBuffers() error {
	pipelines := ch.ctx.scene.pipelines
	for i := range ch.images {
		ch.images[i].uniforms = make([]allocatedBuffer, len(pipelines))
		for p, pipeline := range pipelines {
			if pipeline.uniformSize == 0 {
				continue
			}
			buffer, err := ch.ctx.createBuffer(pipeline.uniformSize, core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
			if err != nil {
				return err
			}
			ch.images[i].uniforms[p] = buffer
		}
	}
	return nil
}

func (ch *chain) destroyUniformBuffers() {
	for i := range ch.images {
		for _, buffer := range ch.images[i].uniforms {
			ch.ctx.destroyBuffer(buffer)
		}
		ch.images[i].uniforms = nil
	}
}

// descriptorCounts sizes the pool for every image of this generation.
func descriptorCounts(pipelines []*scenePipeline, images int) (sets, uniforms, samplers int) {
	for _, p := range pipelines {
		if p.spec.hasDescriptors() {
			sets += images
		}
		if p.spec.Uniform != nil {
			uniforms += images
		}
		if p.spec.Textured {
			samplers += images
		}
	}
	return sets, uniforms, samplers
}

func (ch *chain) createDescriptorSets() error {
	pipelines := ch.ctx.scene.pipelines
	sets, uniforms, samplers := descriptorCounts(pipelines, len(ch.images))
	if sets == 0 {
		return nil
	}

	var poolSizes []core1_0.DescriptorPoolSize
	if uniforms > 0 {
		poolSizes = append(poolSizes, core1_0.DescriptorPoolSize{
			Type:            core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: uniforms,
		})
	}
	if samplers > 0 {
		poolSizes = append(poolSizes, core1_0.DescriptorPoolSize{
			Type:            core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: samplers,
		})
	}

	var err error
	ch.descriptorPool, _, err = ch.ctx.deviceDriver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   sets,
		PoolSizes: poolSizes,
	})
	if err != nil {
		return err
	}

	for i := range ch.images {
		ch.images[i].sets = make([]core1_0.DescriptorSet, len(pipelines))
		for p, pipeline := range pipelines {
			if !pipeline.spec.hasDescriptors() {
				continue
			}

			allocated, _, err := ch.ctx.deviceDriver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
				DescriptorPool: ch.descriptorPool,
				SetLayouts:     []core1_0.DescriptorSetLayout{pipeline.setLayout},
			})
			if err != nil {
				return err
			}
			ch.images[i].sets[p] = allocated[0]

			err = ch.ctx.deviceDriver.UpdateDescriptorSets(ch.descriptorWrites(i, p), nil)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (ch *chain) descriptorWrites(imageIndex, pipelineIndex int) []core1_0.WriteDescriptorSet {
	pipeline := ch.ctx.scene.pipelines[pipelineIndex]
	set := ch.images[imageIndex].sets[pipelineIndex]

	var writes []core1_0.WriteDescriptorSet
	if pipeline.spec.Uniform != nil {
		writes = append(writes, core1_0.WriteDescriptorSet{
			DstSet:          set,
			DstBinding:      0,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeUniformBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: ch.images[imageIndex].uniforms[pipelineIndex].buffer,
					Offset: 0,
					Range:  pipeline.uniformSize,
				},
			},
		})
	}
	if pipeline.spec.Textured {
		texture := ch.ctx.scene.texture
		writes = append(writes, core1_0.WriteDescriptorSet{
			DstSet:          set,
			DstBinding:      1,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   texture.view,
					Sampler:     texture.sampler,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		})
	}
	return writes
}

// destroyDescriptorPool frees every set allocated from the pool with it.
func (ch *chain) destroyDescriptorPool() {
	if ch.descriptorPool.Initialized() {
		ch.ctx.deviceDriver.DestroyDescriptorPool(ch.descriptorPool, nil)
		ch.descriptorPool = core1_0.DescriptorPool{}
	}
	for i := range ch.images {
		ch.images[i].sets = nil
	}
}

func semaphoreHandle(s render.Semaphore) (core1_0.Semaphore, error) {
	sem, ok := s.(*semaphore)
	if !ok {
		return core1_0.Semaphore{}, errors.Newf("semaphore %T was not created by this device", s)
	}
	return sem.handle, nil
}

func fenceHandle(f render.Fence) (core1_0.Fence, error) {
	fen, ok := f.(*fence)
	if !ok {
		return core1_0.Fence{}, errors.Newf("fence %T was not created by this device", f)
	}
	return fen.handle, nil
}

func (ch *chain) AcquireNextImage(timeout time.Duration, signal render.Semaphore) (int, render.Status, error) {
	sem, err := semaphoreHandle(signal)
	if err != nil {
		return 0, render.StatusSuccess, err
	}

	imageIndex, res, err := ch.ctx.swapchainExtension.AcquireNextImage(ch.swapchain, waitTimeout(timeout), &sem, nil)
	if timedOut(res) {
		return 0, render.StatusSuccess, render.FenceTimeoutError(timeout)
	}
	status, err := checkResult(res, err)
	return imageIndex, status, err
}

func (ch *chain) UpdateUniforms(imageIndex int, frame render.FrameInfo) error {
	for p, pipeline := range ch.ctx.scene.pipelines {
		if pipeline.spec.Uniform == nil {
			continue
		}
		memory := ch.images[imageIndex].uniforms[p].memory
		if err := writeData(ch.ctx.deviceDriver, memory, 0, pipeline.spec.Uniform(frame)); err != nil {
			return errors.Wrapf(err, "pipeline %s", pipeline.spec.Name)
		}
	}
	return nil
}

func (ch *chain) Submit(imageIndex int, wait, signal render.Semaphore, f render.Fence) error {
	waitSem, err := semaphoreHandle(wait)
	if err != nil {
		return err
	}
	signalSem, err := semaphoreHandle(signal)
	if err != nil {
		return err
	}
	inFlight, err := fenceHandle(f)
	if err != nil {
		return err
	}

	_, err = ch.ctx.deviceDriver.QueueSubmit(ch.ctx.graphicsQueue, &inFlight,
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{waitSem},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{ch.images[imageIndex].commands},
			SignalSemaphores: []core1_0.Semaphore{signalSem},
		},
	)
	return err
}

func (ch *chain) Present(imageIndex int, wait render.Semaphore) (render.Status, error) {
	waitSem, err := semaphoreHandle(wait)
	if err != nil {
		return render.StatusSuccess, err
	}

	return checkResult(ch.ctx.swapchainExtension.QueuePresent(ch.ctx.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{waitSem},
		Swapchains:     []khr_swapchain.Swapchain{ch.swapchain},
		ImageIndices:   []int{imageIndex},
	}))
}
