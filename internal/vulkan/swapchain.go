package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/vkrender/internal/config"
)

// chooseSurfaceFormat prefers 8-bit BGRA sRGB and falls back to the first
// format the surface offers.
func chooseSurfaceFormat(available []khr_surface.SurfaceFormat) (khr_surface.SurfaceFormat, error) {
	if len(available) == 0 {
		return khr_surface.SurfaceFormat{}, errors.New("surface reports no formats")
	}
	for _, format := range available {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format, nil
		}
	}
	return available[0], nil
}

// choosePresentMode returns preferred if the surface supports it. FIFO is
// always available.
func choosePresentMode(available []khr_surface.PresentMode, preferred khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range available {
		if presentMode == preferred {
			return presentMode
		}
	}
	return khr_surface.PresentModeFIFO
}

// chooseExtent uses the surface's current extent unless the surface leaves it
// to the application, in which case the drawable size is clamped to the
// supported range.
func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	return core1_0.Extent2D{
		Width:  clamp(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// chooseImageCount asks for one image more than the minimum, capped by the
// maximum when the surface has one.
func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

// PresentMode maps a configured present mode onto the Vulkan enum.
func PresentMode(mode config.PresentMode) khr_surface.PresentMode {
	switch mode {
	case config.PresentModeImmediate:
		return khr_surface.PresentModeImmediate
	case config.PresentModeFIFORelaxed:
		return khr_surface.PresentModeFIFORelaxed
	case config.PresentModeFIFO:
		return khr_surface.PresentModeFIFO
	default:
		return khr_surface.PresentModeMailbox
	}
}
