// Package render drives the per-frame loop: it throttles the CPU on frame
// fences, acquires swapchain images, submits prerecorded command buffers,
// presents, and rebuilds the swapchain when the surface changes.
//
// The GPU itself is reached only through the Device and Chain interfaces, so
// the ordering rules of the loop can be exercised without a Vulkan driver.
package render

import (
	"fmt"
	"time"
)

// Extent is a size in pixels.
type Extent struct {
	Width  int
	Height int
}

func (e Extent) Empty() bool {
	return e.Width <= 0 || e.Height <= 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Status is the non-error outcome of an acquire or present call.
type Status int

const (
	StatusSuccess Status = iota
	// StatusSuboptimal means the image was acquired or presented, but the
	// swapchain no longer matches the surface exactly.
	StatusSuboptimal
	// StatusOutOfDate means the swapchain can no longer be used with the
	// surface.
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Window is the host window the renderer draws into.
type Window interface {
	// DrawableSize reports the framebuffer size in pixels. It is 0x0 while the
	// window is minimized.
	DrawableSize() (width, height int)
	// Resized reports whether the host saw a resize since the last ClearResized.
	Resized() bool
	ClearResized()
	// PollEvents processes pending events without blocking.
	PollEvents()
	// WaitEvents blocks until at least one event has been processed.
	WaitEvents()
	ShouldClose() bool
}

// Fence is signalled by the GPU and observed by the CPU.
type Fence interface {
	// Wait blocks until the fence is signalled. A timeout of zero or less
	// waits forever; an expired timeout returns an error marked with
	// ErrFenceTimeout.
	Wait(timeout time.Duration) error
	Reset() error
	Destroy()
}

// Semaphore orders work on the GPU. The CPU never waits on it.
type Semaphore interface {
	Destroy()
}

// Device is the logical GPU device as seen by the frame loop.
type Device interface {
	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	// WaitIdle blocks until every queue of the device has finished its work.
	WaitIdle() error
	// BuildChain creates a swapchain sized to the window and everything that
	// depends on it, with one recorded command buffer per image.
	BuildChain() (Chain, error)
}

// FrameInfo describes the frame being prepared when uniforms are written.
type FrameInfo struct {
	// Elapsed is the time since the loop started, in seconds.
	Elapsed float64
	Frame   uint64
	Slot    int
	Extent  Extent
}

// Chain is one generation of swapchain-dependent objects.
type Chain interface {
	Extent() Extent
	ImageCount() int
	// AcquireNextImage returns the index of the next presentable image. signal
	// is signalled once the image can be written.
	AcquireNextImage(timeout time.Duration, signal Semaphore) (int, Status, error)
	// UpdateUniforms writes the per-frame uniform data for one image.
	UpdateUniforms(imageIndex int, frame FrameInfo) error
	// Submit queues the image's command buffer on the graphics queue.
	Submit(imageIndex int, wait, signal Semaphore, fence Fence) error
	// Present queues the image for presentation once wait is signalled.
	Present(imageIndex int, wait Semaphore) (Status, error)
	Destroy()
}
