package vulkan

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkrender/internal/assets"
	"github.com/vkngwrapper/vkrender/internal/render"
)

// VertexAttribute is one shader input read from the vertex buffer.
type VertexAttribute struct {
	Location int
	Format   core1_0.Format
	Offset   int
}

// VertexLayout describes how a vertex buffer is laid out for one pipeline.
type VertexLayout struct {
	Stride     int
	Attributes []VertexAttribute
}

func (l VertexLayout) bindings() []core1_0.VertexInputBindingDescription {
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    l.Stride,
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func (l VertexLayout) attributes() []core1_0.VertexInputAttributeDescription {
	descriptions := make([]core1_0.VertexInputAttributeDescription, 0, len(l.Attributes))
	for _, attr := range l.Attributes {
		descriptions = append(descriptions, core1_0.VertexInputAttributeDescription{
			Binding:  0,
			Location: attr.Location,
			Format:   attr.Format,
			Offset:   attr.Offset,
		})
	}
	return descriptions
}

var vertex assets.Vertex

// ColoredVertex feeds position to location 0 and colour to location 1.
var ColoredVertex = VertexLayout{
	Stride: int(unsafe.Sizeof(vertex)),
	Attributes: []VertexAttribute{
		{Location: 0, Format: core1_0.FormatR32G32SignedFloat, Offset: int(unsafe.Offsetof(vertex.Position))},
		{Location: 1, Format: core1_0.FormatR32G32B32SignedFloat, Offset: int(unsafe.Offsetof(vertex.Color))},
	},
}

// TexturedVertex feeds position to location 0 and texture coordinates to
// location 1.
var TexturedVertex = VertexLayout{
	Stride: int(unsafe.Sizeof(vertex)),
	Attributes: []VertexAttribute{
		{Location: 0, Format: core1_0.FormatR32G32SignedFloat, Offset: int(unsafe.Offsetof(vertex.Position))},
		{Location: 1, Format: core1_0.FormatR32G32SignedFloat, Offset: int(unsafe.Offsetof(vertex.TexCoord))},
	},
}

// UniformFunc produces the uniform block for one frame. The returned value is
// written with encoding/binary, so it must have a fixed size that does not
// depend on the frame.
type UniformFunc func(frame render.FrameInfo) any

// PipelineSpec describes one draw: a pipeline and the mesh it renders.
type PipelineSpec struct {
	Name           string
	VertexShader   string
	FragmentShader string
	Mesh           string
	// Palette recolours the mesh vertices in order, repeating as needed.
	Palette  [][3]float32
	Layout   VertexLayout
	Topology core1_0.PrimitiveTopology
	// Uniform, if set, is bound at binding 0 for the vertex stage.
	Uniform UniformFunc
	// Textured binds the scene texture at binding 1 for the fragment stage.
	Textured bool
}

func (s PipelineSpec) Validate() error {
	if s.Name == "" {
		return errors.New("pipeline has no name")
	}
	if s.VertexShader == "" || s.FragmentShader == "" {
		return errors.Newf("pipeline %s: vertex and fragment shaders are required", s.Name)
	}
	if s.Mesh == "" {
		return errors.Newf("pipeline %s: no mesh", s.Name)
	}
	if s.Layout.Stride <= 0 || len(s.Layout.Attributes) == 0 {
		return errors.Newf("pipeline %s: empty vertex layout", s.Name)
	}
	for _, attr := range s.Layout.Attributes {
		if attr.Offset < 0 || attr.Offset >= s.Layout.Stride {
			return errors.Newf("pipeline %s: attribute %d offset %d outside stride %d", s.Name, attr.Location, attr.Offset, s.Layout.Stride)
		}
	}
	if s.Uniform != nil {
		if size := binary.Size(s.Uniform(render.FrameInfo{Extent: render.Extent{Width: 1, Height: 1}})); size <= 0 {
			return errors.Newf("pipeline %s: uniform block cannot be encoded", s.Name)
		}
	}
	return nil
}

func (s PipelineSpec) uniformSize() int {
	if s.Uniform == nil {
		return 0
	}
	return binary.Size(s.Uniform(render.FrameInfo{Extent: render.Extent{Width: 1, Height: 1}}))
}

func (s PipelineSpec) hasDescriptors() bool {
	return s.Uniform != nil || s.Textured
}

// AssetRequest lists every shader and mesh the pipelines need.
func AssetRequest(specs []PipelineSpec, texture string, maxTextureSize int) assets.Request {
	req := assets.Request{Texture: texture, MaxTextureSize: maxTextureSize}
	for _, spec := range specs {
		req.Shaders = append(req.Shaders, spec.VertexShader, spec.FragmentShader)
		req.Meshes = append(req.Meshes, spec.Mesh)
	}
	return req
}

func (s PipelineSpec) descriptorBindings() []core1_0.DescriptorSetLayoutBinding {
	var bindings []core1_0.DescriptorSetLayoutBinding
	if s.Uniform != nil {
		bindings = append(bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         0,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,

			StageFlags: core1_0.StageVertex,
		})
	}
	if s.Textured {
		bindings = append(bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         1,
			DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,

			StageFlags: core1_0.StageFragment,
		})
	}
	return bindings
}

// createGraphicsPipeline builds the pipeline for one scene entry against the
// chain's render pass. Viewport and scissor are baked in from extent.
func (c *Context) createGraphicsPipeline(p *scenePipeline, renderPass core1_0.RenderPass, extent core1_0.Extent2D) (core1_0.Pipeline, error) {
	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   p.spec.Layout.bindings(),
		VertexAttributeDescriptions: p.spec.Layout.attributes(),
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               p.spec.Topology,
		PrimitiveRestartEnable: false,
	}

	vertStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageVertex,
		Module: c.scene.shaders[p.spec.VertexShader],
		Name:   "main",
	}

	fragStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageFragment,
		Module: c.scene.shaders[p.spec.FragmentShader],
		Name:   "main",
	}

	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(extent.Width),
				Height:   float32(extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: extent,
			},
		},
	}

	// The rotating squares show both faces.
	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeNone,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  true,
		DepthWriteEnable: true,
		DepthCompareOp:   core1_0.CompareOpLess,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   false,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	pipelines, _, err := c.deviceDriver.CreateGraphicsPipelines(&c.scene.cache, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				vertStage,
				fragStage,
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			Layout:             p.layout,
			RenderPass:         renderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return core1_0.Pipeline{}, errors.Wrapf(err, "pipeline %s", p.spec.Name)
	}
	return pipelines[0], nil
}
