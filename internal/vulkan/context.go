// Package vulkan implements the renderer's device and swapchain interfaces on
// top of vkngwrapper.
package vulkan

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/vkngwrapper/vkrender/internal/lifecycle"
	"github.com/vkngwrapper/vkrender/internal/logging"
	"github.com/vkngwrapper/vkrender/internal/render"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

// Window is the host window the context creates its surface for.
type Window interface {
	render.Window
	SDLWindow() *sdl.Window
}

type Options struct {
	AppName string
	// Validation enables the Khronos validation layer and routes its messages
	// into the logger.
	Validation bool
	// PresentMode is used when the surface supports it; FIFO otherwise.
	PresentMode khr_surface.PresentMode
	Logger      *slog.Logger
}

// Context owns the instance, surface and logical device. It implements
// render.Device.
type Context struct {
	opts   Options
	log    *slog.Logger
	window Window
	stack  lifecycle.Stack

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver        ext_debug_utils.ExtensionDriver
	debugMessenger     ext_debug_utils.DebugUtilsMessenger
	surfaceExtension   khr_surface.ExtensionDriver
	surface            khr_surface.Surface
	swapchainExtension khr_swapchain.ExtensionDriver

	physicalDevice core1_0.PhysicalDevice
	properties     *core1_0.PhysicalDeviceProperties
	families       queueFamilies

	graphicsQueue core1_0.Queue
	presentQueue  core1_0.Queue
	commandPool   core1_0.CommandPool

	scene *sceneResources
}

var _ render.Device = (*Context)(nil)

// NewContext brings up Vulkan for window. On failure everything created so far
// is released.
func NewContext(window Window, opts Options) (*Context, error) {
	if opts.AppName == "" {
		opts.AppName = "vkrender"
	}
	c := &Context{
		opts:   opts,
		log:    logging.OrDiscard(opts.Logger),
		window: window,
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"create instance", c.createInstance},
		{"set up debug messenger", c.setupDebugMessenger},
		{"create surface", c.createSurface},
		{"pick physical device", c.pickPhysicalDevice},
		{"create logical device", c.createLogicalDevice},
		{"create command pool", c.createCommandPool},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			c.stack.Unwind()
			return nil, render.DeviceError(err, step.name)
		}
	}
	return c, nil
}

func (c *Context) createInstance() error {
	var err error
	c.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return err
	}

	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    c.opts.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "vkrender",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := c.window.SDLWindow().VulkanGetInstanceExtensions()
	extensions, _, err := c.globalDriver.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range sdlExtensions {
		if _, hasExt := extensions[ext]; !hasExt {
			return errors.Newf("missing instance extension %s required by the window", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if c.opts.Validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	if _, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]; enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if c.opts.Validation {
		layers, _, err := c.globalDriver.AvailableLayers()
		if err != nil {
			return err
		}

		for _, layer := range validationLayers {
			if _, hasValidation := layers[layer]; !hasValidation {
				return errors.Newf("validation layer %s not available, install the Vulkan SDK or disable validation", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		// Covers messages emitted while the instance itself is created.
		instanceOptions.Next = c.debugMessengerOptions()
	}

	c.instanceDriver, _, err = c.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return err
	}
	c.stack.Push("instance", func() { c.instanceDriver.DestroyInstance(nil) })

	c.log.Debug("instance created",
		"extensions", instanceOptions.EnabledExtensionNames,
		"layers", instanceOptions.EnabledLayerNames,
	)
	return nil
}

func (c *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	severity := ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning
	if c.log.Enabled(context.Background(), slog.LevelDebug) {
		severity |= ext_debug_utils.SeverityInfo | ext_debug_utils.SeverityVerbose
	}
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: severity,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    c.logDebug,
	}
}

func (c *Context) setupDebugMessenger() error {
	if !c.opts.Validation {
		return nil
	}

	var err error
	c.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(c.instanceDriver)
	c.debugMessenger, _, err = c.debugDriver.CreateDebugUtilsMessenger(nil, c.debugMessengerOptions())
	if err != nil {
		return err
	}
	c.stack.Push("debug-messenger", func() {
		c.debugDriver.DestroyDebugUtilsMessenger(c.debugMessenger, nil)
	})
	return nil
}

func (c *Context) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	c.log.Log(context.Background(), debugLevel(severity), data.Message,
		"source", "vulkan",
		"type", msgType,
	)
	return false
}

func (c *Context) createSurface() error {
	c.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(c.instanceDriver)
	surface, err := vkng_sdl2.CreateSurface(c.instanceDriver.Instance(), c.surfaceExtension, c.window.SDLWindow())
	if err != nil {
		return err
	}

	c.surface = surface
	c.stack.Push("surface", func() { c.surfaceExtension.DestroySurface(c.surface, nil) })
	return nil
}

func (c *Context) pickPhysicalDevice() error {
	physicalDevices, _, err := c.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	bestScore := 0
	for _, device := range physicalDevices {
		properties, err := c.instanceDriver.GetPhysicalDeviceProperties(device)
		if err != nil {
			return err
		}

		families, suitable := c.isDeviceSuitable(device)
		score := scoreDevice(suitable, properties.DriverType)
		c.log.Debug("physical device candidate",
			"name", properties.DriverName,
			"type", properties.DriverType,
			"score", score,
		)

		if score > bestScore {
			bestScore = score
			c.physicalDevice = device
			c.properties = properties
			c.families = families
		}
	}

	if bestScore == 0 {
		return errors.New("failed to find a suitable GPU")
	}

	c.log.Info("physical device selected",
		"name", c.properties.DriverName,
		"type", c.properties.DriverType,
		"api_version", c.properties.APIVersion,
		"pipeline_cache_uuid", c.properties.PipelineCacheUUID.String(),
		"graphics_family", c.families.graphics,
		"present_family", c.families.present,
	)
	return nil
}

func (c *Context) createLogicalDevice() error {
	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range c.families.unique() {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	// Required by portability implementations such as MoltenVK.
	extensions, _, err := c.instanceDriver.EnumerateDeviceExtensionProperties(c.physicalDevice)
	if err != nil {
		return err
	}
	if _, supported := extensions[khr_portability_subset.ExtensionName]; supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	c.deviceDriver, _, err = c.instanceDriver.CreateDevice(c.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return err
	}
	c.stack.Push("device", func() { c.deviceDriver.DestroyDevice(nil) })

	c.graphicsQueue = c.deviceDriver.GetQueue(c.families.graphics, 0)
	c.presentQueue = c.deviceDriver.GetQueue(c.families.present, 0)
	c.swapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver(c.deviceDriver)
	return nil
}

func (c *Context) createCommandPool() error {
	pool, _, err := c.deviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: c.families.graphics,
	})
	if err != nil {
		return err
	}

	c.commandPool = pool
	c.stack.Push("command-pool", func() { c.deviceDriver.DestroyCommandPool(c.commandPool, nil) })
	return nil
}

func (c *Context) CreateFence(signaled bool) (render.Fence, error) {
	info := core1_0.FenceCreateInfo{}
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}

	handle, _, err := c.deviceDriver.CreateFence(nil, info)
	if err != nil {
		return nil, err
	}
	return &fence{driver: c.deviceDriver, handle: handle}, nil
}

func (c *Context) CreateSemaphore() (render.Semaphore, error) {
	handle, _, err := c.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, err
	}
	return &semaphore{driver: c.deviceDriver, handle: handle}, nil
}

func (c *Context) WaitIdle() error {
	_, err := c.deviceDriver.DeviceWaitIdle()
	return err
}

// BuildChain creates a swapchain generation for the current window size.
// LoadScene must have been called first.
func (c *Context) BuildChain() (render.Chain, error) {
	if c.scene == nil {
		return nil, errors.New("no scene loaded")
	}
	return newChain(c)
}

// Close waits for the device and destroys the scene resources, the device,
// the surface and the instance, in that order.
func (c *Context) Close() error {
	var err error
	if c.deviceDriver != nil {
		err = c.WaitIdle()
	}
	if c.scene != nil {
		c.scene.stack.Unwind()
		c.scene = nil
	}
	c.log.Debug("releasing device objects", "created", c.stack.Names())
	c.stack.Unwind()
	return render.DeviceError(err, "wait for device idle")
}
