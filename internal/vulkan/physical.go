package vulkan

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

type queueFamilies struct {
	graphics int
	present  int
}

// unique lists the distinct family indices, graphics first.
func (f queueFamilies) unique() []int {
	if f.graphics == f.present {
		return []int{f.graphics}
	}
	return []int{f.graphics, f.present}
}

// selectQueueFamilies prefers one family that can both draw and present, and
// otherwise takes the first family of each kind.
func selectQueueFamilies(graphics, present []bool) (queueFamilies, bool) {
	families := queueFamilies{graphics: -1, present: -1}
	for i := range graphics {
		if graphics[i] && i < len(present) && present[i] {
			return queueFamilies{graphics: i, present: i}, true
		}
		if graphics[i] && families.graphics < 0 {
			families.graphics = i
		}
		if i < len(present) && present[i] && families.present < 0 {
			families.present = i
		}
	}
	return families, families.graphics >= 0 && families.present >= 0
}

// sharingMode is concurrent only when the swapchain images cross queue
// families.
func sharingMode(families queueFamilies) (core1_0.SharingMode, []int) {
	if families.graphics != families.present {
		return core1_0.SharingModeConcurrent, []int{families.graphics, families.present}
	}
	return core1_0.SharingModeExclusive, nil
}

const (
	scoreDiscrete   = 1000
	scoreIntegrated = 100
	scoreOther      = 10
)

// scoreDevice ranks physical devices. Zero means the device cannot be used.
func scoreDevice(suitable bool, deviceType core1_0.PhysicalDeviceType) int {
	if !suitable {
		return 0
	}
	switch deviceType {
	case core1_0.PhysicalDeviceTypeDiscreteGPU:
		return scoreDiscrete
	case core1_0.PhysicalDeviceTypeIntegratedGPU:
		return scoreIntegrated
	default:
		return scoreOther
	}
}

func (c *Context) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilies, bool, error) {
	properties := c.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device)
	graphics := make([]bool, len(properties))
	present := make([]bool, len(properties))

	for i, queueFamily := range properties {
		graphics[i] = (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0

		supported, _, err := c.surfaceExtension.GetPhysicalDeviceSurfaceSupport(c.surface, device, i)
		if err != nil {
			return queueFamilies{}, false, err
		}
		present[i] = supported
	}

	families, ok := selectQueueFamilies(graphics, present)
	return families, ok, nil
}

func (c *Context) checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := c.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		if _, hasExtension := extensions[extension]; !hasExtension {
			return false
		}
	}
	return true
}

type swapchainSupport struct {
	capabilities *khr_surface.SurfaceCapabilities
	formats      []khr_surface.SurfaceFormat
	presentModes []khr_surface.PresentMode
}

func (c *Context) querySwapchainSupport(device core1_0.PhysicalDevice) (swapchainSupport, error) {
	var details swapchainSupport
	var err error

	details.capabilities, _, err = c.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(c.surface, device)
	if err != nil {
		return details, err
	}

	details.formats, _, err = c.surfaceExtension.GetPhysicalDeviceSurfaceFormats(c.surface, device)
	if err != nil {
		return details, err
	}

	details.presentModes, _, err = c.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(c.surface, device)
	return details, err
}

// isDeviceSuitable requires graphics and present queues, the swapchain
// extension with at least one format and present mode, and anisotropic
// sampling.
func (c *Context) isDeviceSuitable(device core1_0.PhysicalDevice) (queueFamilies, bool) {
	families, complete, err := c.findQueueFamilies(device)
	if err != nil || !complete {
		return families, false
	}

	if !c.checkDeviceExtensionSupport(device) {
		return families, false
	}

	support, err := c.querySwapchainSupport(device)
	if err != nil || len(support.formats) == 0 || len(support.presentModes) == 0 {
		return families, false
	}

	features := c.instanceDriver.GetPhysicalDeviceFeatures(device)
	return families, features.SamplerAnisotropy
}
