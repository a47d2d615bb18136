package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkrender/internal/assets"
	"github.com/vkngwrapper/vkrender/internal/lifecycle"
	"github.com/vkngwrapper/vkrender/internal/render"
)

// scenePipeline is the swapchain-independent half of one draw.
type scenePipeline struct {
	spec        PipelineSpec
	vertices    allocatedBuffer
	indices     allocatedBuffer
	indexCount  int
	uniformSize int
	setLayout   core1_0.DescriptorSetLayout
	layout      core1_0.PipelineLayout
}

// sceneResources outlive every swapchain generation. They are destroyed when
// the context closes.
type sceneResources struct {
	stack lifecycle.Stack

	// cache speeds up rebuilding the pipelines for each swapchain generation.
	cache     core1_0.PipelineCache
	shaders   map[string]core1_0.ShaderModule
	pipelines []*scenePipeline
	texture   *texture
}

// LoadScene uploads the meshes, shaders and texture the pipelines use. It must
// be called once, before the first BuildChain.
func (c *Context) LoadScene(specs []PipelineSpec, set *assets.Set) error {
	if c.scene != nil {
		return errors.New("scene already loaded")
	}
	if len(specs) == 0 {
		return errors.New("scene has no pipelines")
	}
	if err := checkScene(specs, set); err != nil {
		return render.ResourceLoadError(err, "load scene")
	}

	scene := &sceneResources{shaders: make(map[string]core1_0.ShaderModule)}
	if err := c.buildScene(scene, specs, set); err != nil {
		scene.stack.Unwind()
		return render.DeviceError(err, "load scene")
	}
	c.scene = scene

	c.log.Info("scene loaded",
		"pipelines", len(scene.pipelines),
		"shaders", len(scene.shaders),
		"textured", scene.texture != nil,
	)
	return nil
}

// checkScene reports specs that reference assets missing from set.
func checkScene(specs []PipelineSpec, set *assets.Set) error {
	if set == nil {
		return errors.New("no assets")
	}
	names := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return err
		}
		if names[spec.Name] {
			return errors.Newf("duplicate pipeline %s", spec.Name)
		}
		names[spec.Name] = true

		for _, shader := range []string{spec.VertexShader, spec.FragmentShader} {
			if _, ok := set.Shaders[shader]; !ok {
				return errors.Newf("pipeline %s: shader %s not loaded", spec.Name, shader)
			}
		}
		if _, ok := set.Meshes[spec.Mesh]; !ok {
			return errors.Newf("pipeline %s: mesh %s not loaded", spec.Name, spec.Mesh)
		}
		if spec.Textured && set.Texture == nil {
			return errors.Newf("pipeline %s: no texture loaded", spec.Name)
		}
	}
	return nil
}

func (c *Context) buildScene(scene *sceneResources, specs []PipelineSpec, set *assets.Set) error {
	cache, _, err := c.deviceDriver.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{})
	if err != nil {
		return errors.Wrap(err, "pipeline cache")
	}
	scene.cache = cache
	scene.stack.Push("pipeline cache", func() { c.deviceDriver.DestroyPipelineCache(cache, nil) })

	for _, spec := range specs {
		for _, name := range []string{spec.VertexShader, spec.FragmentShader} {
			if _, ok := scene.shaders[name]; ok {
				continue
			}
			module, _, err := c.deviceDriver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
				Code: set.Shaders[name],
			})
			if err != nil {
				return errors.Wrapf(err, "shader module %s", name)
			}
			scene.shaders[name] = module
			scene.stack.Push("shader "+name, func() { c.deviceDriver.DestroyShaderModule(module, nil) })
		}
	}

	for _, spec := range specs {
		if !spec.Textured || scene.texture != nil {
			continue
		}
		tex, err := c.createTexture(set.Texture)
		if err != nil {
			return errors.Wrap(err, "texture")
		}
		scene.texture = tex
		scene.stack.Push("texture", func() { c.destroyTexture(tex) })
		c.log.Debug("texture uploaded",
			"size", set.Texture.Bounds().Size().String(),
			"mip_levels", tex.mipLevels,
		)
	}

	for _, spec := range specs {
		p := &scenePipeline{spec: spec, uniformSize: spec.uniformSize()}
		if err := c.createSceneGeometry(scene, p, set.Meshes[spec.Mesh].Colorize(spec.Palette...)); err != nil {
			return errors.Wrapf(err, "pipeline %s", spec.Name)
		}
		if err := c.createPipelineLayout(scene, p); err != nil {
			return errors.Wrapf(err, "pipeline %s", spec.Name)
		}
		scene.pipelines = append(scene.pipelines, p)
	}
	return nil
}

func (c *Context) createSceneGeometry(scene *sceneResources, p *scenePipeline, mesh assets.Mesh) error {
	var err error
	p.vertices, err = c.createDeviceLocalBuffer(mesh.Vertices, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrap(err, "vertex buffer")
	}
	vertices := p.vertices
	scene.stack.Push("vertex buffer "+p.spec.Name, func() { c.destroyBuffer(vertices) })

	p.indices, err = c.createDeviceLocalBuffer(mesh.Indices, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return errors.Wrap(err, "index buffer")
	}
	indices := p.indices
	scene.stack.Push("index buffer "+p.spec.Name, func() { c.destroyBuffer(indices) })

	p.indexCount = len(mesh.Indices)
	return nil
}

func (c *Context) createPipelineLayout(scene *sceneResources, p *scenePipeline) error {
	var setLayouts []core1_0.DescriptorSetLayout
	if p.spec.hasDescriptors() {
		setLayout, _, err := c.deviceDriver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
			Bindings: p.spec.descriptorBindings(),
		})
		if err != nil {
			return errors.Wrap(err, "descriptor set layout")
		}
		p.setLayout = setLayout
		scene.stack.Push("descriptor set layout "+p.spec.Name, func() {
			c.deviceDriver.DestroyDescriptorSetLayout(setLayout, nil)
		})
		setLayouts = append(setLayouts, setLayout)
	}

	layout, _, err := c.deviceDriver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: setLayouts,
	})
	if err != nil {
		return errors.Wrap(err, "pipeline layout")
	}
	p.layout = layout
	scene.stack.Push("pipeline layout "+p.spec.Name, func() { c.deviceDriver.DestroyPipelineLayout(layout, nil) })
	return nil
}
