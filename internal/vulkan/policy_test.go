package vulkan

import (
	"image"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/vkrender/internal/assets"
	"github.com/vkngwrapper/vkrender/internal/config"
	"github.com/vkngwrapper/vkrender/internal/render"
)

func TestChooseSurfaceFormat(t *testing.T) {
	_, err := chooseSurfaceFormat(nil)
	require.Error(t, err)

	linear := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	srgb := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

	format, err := chooseSurfaceFormat([]khr_surface.SurfaceFormat{linear, srgb})
	require.NoError(t, err)
	assert.Equal(t, srgb, format)

	format, err = chooseSurfaceFormat([]khr_surface.SurfaceFormat{linear})
	require.NoError(t, err)
	assert.Equal(t, linear, format)
}

func TestChoosePresentMode(t *testing.T) {
	available := []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox}

	assert.Equal(t, khr_surface.PresentModeMailbox, choosePresentMode(available, khr_surface.PresentModeMailbox))
	assert.Equal(t, khr_surface.PresentModeFIFO, choosePresentMode(available, khr_surface.PresentModeImmediate))
	assert.Equal(t, khr_surface.PresentModeFIFO, choosePresentMode(nil, khr_surface.PresentModeMailbox))
}

func TestChooseExtent(t *testing.T) {
	fixed := &khr_surface.SurfaceCapabilities{
		CurrentExtent: core1_0.Extent2D{Width: 800, Height: 600},
	}
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, chooseExtent(fixed, 1024, 768))

	free := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 100, Height: 100},
		MaxImageExtent: core1_0.Extent2D{Width: 1920, Height: 1080},
	}
	assert.Equal(t, core1_0.Extent2D{Width: 1024, Height: 768}, chooseExtent(free, 1024, 768))
	assert.Equal(t, core1_0.Extent2D{Width: 1920, Height: 100}, chooseExtent(free, 4000, 10))
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, 3, chooseImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2}))
	assert.Equal(t, 3, chooseImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}))
	assert.Equal(t, 2, chooseImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
}

func TestSelectQueueFamilies(t *testing.T) {
	families, ok := selectQueueFamilies([]bool{true, true}, []bool{false, true})
	require.True(t, ok)
	assert.Equal(t, queueFamilies{graphics: 1, present: 1}, families)
	assert.Equal(t, []int{1}, families.unique())

	families, ok = selectQueueFamilies([]bool{true, false}, []bool{false, true})
	require.True(t, ok)
	assert.Equal(t, queueFamilies{graphics: 0, present: 1}, families)
	assert.Equal(t, []int{0, 1}, families.unique())

	_, ok = selectQueueFamilies([]bool{false, false}, []bool{true, true})
	assert.False(t, ok)

	_, ok = selectQueueFamilies([]bool{true}, []bool{false})
	assert.False(t, ok)
}

func TestSharingMode(t *testing.T) {
	mode, indices := sharingMode(queueFamilies{graphics: 0, present: 0})
	assert.Equal(t, core1_0.SharingModeExclusive, mode)
	assert.Empty(t, indices)

	mode, indices = sharingMode(queueFamilies{graphics: 0, present: 2})
	assert.Equal(t, core1_0.SharingModeConcurrent, mode)
	assert.Equal(t, []int{0, 2}, indices)
}

func TestScoreDevice(t *testing.T) {
	discrete := scoreDevice(true, core1_0.PhysicalDeviceTypeDiscreteGPU)
	integrated := scoreDevice(true, core1_0.PhysicalDeviceTypeIntegratedGPU)
	other := scoreDevice(true, core1_0.PhysicalDeviceTypeCPU)

	assert.Greater(t, discrete, integrated)
	assert.Greater(t, integrated, other)
	assert.Greater(t, other, 0)
	assert.Zero(t, scoreDevice(false, core1_0.PhysicalDeviceTypeDiscreteGPU))
}

func TestMipLevels(t *testing.T) {
	assert.Equal(t, 1, mipLevels(1, 1))
	assert.Equal(t, 9, mipLevels(256, 256))
	assert.Equal(t, 10, mipLevels(512, 300))
	assert.Equal(t, 1, mipLevels(0, 0))
}

func TestMemoryTypeIndex(t *testing.T) {
	types := []core1_0.MemoryType{
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
	}

	index, err := memoryTypeIndex(types, 0b111, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	require.NoError(t, err)
	assert.Equal(t, 2, index)

	index, err = memoryTypeIndex(types, 0b110, core1_0.MemoryPropertyHostVisible)
	require.NoError(t, err)
	assert.Equal(t, 1, index)

	_, err = memoryTypeIndex(types, 0b110, core1_0.MemoryPropertyDeviceLocal)
	require.Error(t, err)
}

func TestCheckResult(t *testing.T) {
	status, err := checkResult(core1_0.VKSuccess, nil)
	require.NoError(t, err)
	assert.Equal(t, render.StatusSuccess, status)

	status, err = checkResult(khr_swapchain.VKSuboptimal, nil)
	require.NoError(t, err)
	assert.Equal(t, render.StatusSuboptimal, status)

	status, err = checkResult(khr_swapchain.VKErrorOutOfDate, errors.New("out of date"))
	require.NoError(t, err)
	assert.Equal(t, render.StatusOutOfDate, status)

	lost := errors.New("device lost")
	_, err = checkResult(core1_0.VKErrorDeviceLost, lost)
	assert.Same(t, lost, err)
}

func TestWaitTimeout(t *testing.T) {
	assert.Equal(t, common.NoTimeout, waitTimeout(0))
	assert.Equal(t, common.NoTimeout, waitTimeout(-time.Second))
	assert.Equal(t, time.Second, waitTimeout(time.Second))
}

func TestDebugLevel(t *testing.T) {
	assert.Equal(t, slog.LevelError, debugLevel(ext_debug_utils.SeverityError))
	assert.Equal(t, slog.LevelWarn, debugLevel(ext_debug_utils.SeverityWarning))
	assert.Equal(t, slog.LevelInfo, debugLevel(ext_debug_utils.SeverityInfo))
	assert.Equal(t, slog.LevelDebug, debugLevel(ext_debug_utils.SeverityVerbose))
}

func TestPresentModeFromConfig(t *testing.T) {
	assert.Equal(t, khr_surface.PresentModeMailbox, PresentMode(config.PresentModeMailbox))
	assert.Equal(t, khr_surface.PresentModeFIFO, PresentMode(config.PresentModeFIFO))
	assert.Equal(t, khr_surface.PresentModeFIFORelaxed, PresentMode(config.PresentModeFIFORelaxed))
	assert.Equal(t, khr_surface.PresentModeImmediate, PresentMode(config.PresentModeImmediate))
}

type testUniform struct {
	Model [16]float32
}

func validSpec() PipelineSpec {
	return PipelineSpec{
		Name:           "square",
		VertexShader:   "rotating.vert.spv",
		FragmentShader: "colored.frag.spv",
		Mesh:           "square.obj",
		Layout:         ColoredVertex,
		Topology:       core1_0.PrimitiveTopologyTriangleList,
		Uniform: func(render.FrameInfo) any {
			return &testUniform{}
		},
	}
}

func TestPipelineSpecValidate(t *testing.T) {
	require.NoError(t, validSpec().Validate())

	broken := map[string]func(*PipelineSpec){
		"no name":          func(s *PipelineSpec) { s.Name = "" },
		"no vertex shader": func(s *PipelineSpec) { s.VertexShader = "" },
		"no mesh":          func(s *PipelineSpec) { s.Mesh = "" },
		"empty layout":     func(s *PipelineSpec) { s.Layout = VertexLayout{} },
		"offset past stride": func(s *PipelineSpec) {
			s.Layout = VertexLayout{Stride: 8, Attributes: []VertexAttribute{{Offset: 8}}}
		},
		"unencodable uniform": func(s *PipelineSpec) {
			s.Uniform = func(render.FrameInfo) any { return []string{"x"} }
		},
	}
	for name, breakSpec := range broken {
		t.Run(name, func(t *testing.T) {
			spec := validSpec()
			breakSpec(&spec)
			assert.Error(t, spec.Validate())
		})
	}
}

func TestPipelineSpecDescriptors(t *testing.T) {
	spec := validSpec()
	assert.Equal(t, 64, spec.uniformSize())
	assert.True(t, spec.hasDescriptors())
	require.Len(t, spec.descriptorBindings(), 1)
	assert.Equal(t, core1_0.DescriptorTypeUniformBuffer, spec.descriptorBindings()[0].DescriptorType)

	spec.Textured = true
	bindings := spec.descriptorBindings()
	require.Len(t, bindings, 2)
	assert.Equal(t, 1, bindings[1].Binding)
	assert.Equal(t, core1_0.StageFragment, bindings[1].StageFlags)

	spec.Uniform = nil
	spec.Textured = false
	assert.Zero(t, spec.uniformSize())
	assert.False(t, spec.hasDescriptors())
	assert.Empty(t, spec.descriptorBindings())
}

func TestVertexLayouts(t *testing.T) {
	assert.Equal(t, 28, ColoredVertex.Stride)
	assert.Equal(t, 0, ColoredVertex.Attributes[0].Offset)
	assert.Equal(t, 8, ColoredVertex.Attributes[1].Offset)
	assert.Equal(t, 20, TexturedVertex.Attributes[1].Offset)

	attrs := TexturedVertex.attributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, 1, attrs[1].Location)
	assert.Equal(t, core1_0.FormatR32G32SignedFloat, attrs[1].Format)
}

func TestDescriptorCounts(t *testing.T) {
	colored := validSpec()
	colored.Uniform = nil
	rotating := validSpec()
	textured := validSpec()
	textured.Textured = true

	pipelines := []*scenePipeline{{spec: colored}, {spec: rotating}, {spec: textured}}
	sets, uniforms, samplers := descriptorCounts(pipelines, 3)
	assert.Equal(t, 6, sets)
	assert.Equal(t, 6, uniforms)
	assert.Equal(t, 3, samplers)

	sets, _, _ = descriptorCounts(pipelines[:1], 3)
	assert.Zero(t, sets)
}

func TestCheckScene(t *testing.T) {
	set := &assets.Set{
		Shaders: map[string][]uint32{"rotating.vert.spv": {1}, "colored.frag.spv": {1}},
		Meshes:  map[string]assets.Mesh{"square.obj": {}},
	}
	require.NoError(t, checkScene([]PipelineSpec{validSpec()}, set))

	assert.Error(t, checkScene([]PipelineSpec{validSpec()}, nil))
	assert.Error(t, checkScene([]PipelineSpec{validSpec(), validSpec()}, set))

	missing := validSpec()
	missing.Mesh = "cube.obj"
	assert.Error(t, checkScene([]PipelineSpec{missing}, set))

	textured := validSpec()
	textured.Textured = true
	assert.Error(t, checkScene([]PipelineSpec{textured}, set))

	set.Texture = image.NewRGBA(image.Rect(0, 0, 1, 1))
	assert.NoError(t, checkScene([]PipelineSpec{textured}, set))
}

func TestAssetRequest(t *testing.T) {
	req := AssetRequest([]PipelineSpec{validSpec(), validSpec()}, "", 512)
	assert.Equal(t, []string{"rotating.vert.spv", "colored.frag.spv", "rotating.vert.spv", "colored.frag.spv"}, req.Shaders)
	assert.Equal(t, []string{"square.obj", "square.obj"}, req.Meshes)
	assert.Equal(t, 512, req.MaxTextureSize)
}

func TestPackRows(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	assert.Equal(t, img.Pix, packRows(img))

	sub := img.SubImage(image.Rect(1, 0, 2, 2)).(*image.RGBA)
	assert.Equal(t, []byte{4, 5, 6, 7, 12, 13, 14, 15}, packRows(sub))
}
