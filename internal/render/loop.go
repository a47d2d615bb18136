package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/vkrender/internal/lifecycle"
	"github.com/vkngwrapper/vkrender/internal/logging"
)

const DefaultFramesInFlight = 2

type Options struct {
	// FramesInFlight is the number of frame slots. Defaults to 2.
	FramesInFlight int
	// FenceTimeout bounds each fence wait. Zero waits forever.
	FenceTimeout  time.Duration
	StatsInterval time.Duration
	Clock         Clock
	Logger        *slog.Logger
}

// FrameResult reports what one call to DrawFrame did.
type FrameResult struct {
	ImageIndex int
	// Presented is true when the image was handed to the present queue, even
	// if the swapchain was rebuilt afterwards.
	Presented bool
	// Recreated is true when the swapchain was rebuilt during the call.
	Recreated bool
}

// Loop owns the frame slots and the current swapchain generation. It is not
// safe for concurrent use; one goroutine drives it.
type Loop struct {
	device Device
	window Window
	opts   Options
	log    *slog.Logger
	timer  *frameTimer

	stack  lifecycle.Stack
	slots  []FrameSlot
	chain  Chain
	images []imageState

	currentFrame int
	stats        Stats
}

// New creates the frame slots and the first swapchain generation.
func New(device Device, window Window, opts Options) (*Loop, error) {
	if opts.FramesInFlight == 0 {
		opts.FramesInFlight = DefaultFramesInFlight
	}
	if opts.FramesInFlight < 0 {
		return nil, errors.Newf("render: invalid frames in flight %d", opts.FramesInFlight)
	}

	l := &Loop{
		device: device,
		window: window,
		opts:   opts,
		log:    logging.OrDiscard(opts.Logger),
	}

	slots, err := newFrameSlots(device, opts.FramesInFlight, &l.stack)
	if err != nil {
		l.stack.Unwind()
		return nil, err
	}
	l.slots = slots

	if err := l.buildChain(); err != nil {
		l.stack.Unwind()
		return nil, err
	}

	l.timer = newFrameTimer(opts.Clock, opts.StatsInterval, l.log)
	return l, nil
}

func (l *Loop) CurrentFrame() int {
	return l.currentFrame
}

func (l *Loop) Stats() Stats {
	return l.stats
}

// Extent is the size of the current swapchain.
func (l *Loop) Extent() Extent {
	if l.chain == nil {
		return Extent{}
	}
	return l.chain.Extent()
}

func (l *Loop) waitFence(fence Fence, what string) error {
	return DeviceError(fence.Wait(l.opts.FenceTimeout), what)
}

// DrawFrame runs one iteration of the loop: throttle, acquire, guard the image
// against an older frame, update uniforms, submit, present and advance.
func (l *Loop) DrawFrame() (FrameResult, error) {
	slot := l.slots[l.currentFrame]
	result := FrameResult{ImageIndex: -1}

	// At most len(slots) frames are queued: this slot's previous frame must
	// be finished before its resources are reused.
	if err := l.waitFence(slot.InFlight, "wait for in-flight fence"); err != nil {
		return result, err
	}

	imageIndex, status, err := l.chain.AcquireNextImage(l.opts.FenceTimeout, slot.ImageAvailable)
	if errors.Is(err, ErrSurfaceStale) {
		status, err = StatusOutOfDate, nil
	}
	if err != nil {
		return result, DeviceError(err, "acquire next image")
	}
	if status == StatusOutOfDate {
		l.stats.Skipped++
		l.log.Debug("swapchain out of date on acquire", "frame", l.currentFrame)
		rebuilt, err := l.Recreate()
		if err != nil {
			return result, err
		}
		result.Recreated = rebuilt
		return result, nil
	}
	if imageIndex < 0 || imageIndex >= len(l.images) {
		return result, DeviceErrorf("acquired image index %d out of range [0,%d)", imageIndex, len(l.images))
	}
	result.ImageIndex = imageIndex
	recreate := status == StatusSuboptimal

	// With fewer slots than images, or out-of-order acquisition, the image may
	// still belong to a frame queued from another slot.
	image := &l.images[imageIndex]
	if image.owner != noOwner && image.owner != l.currentFrame {
		if err := l.waitFence(l.slots[image.owner].InFlight, "wait for image fence"); err != nil {
			return result, err
		}
	}
	image.owner = l.currentFrame

	err = l.chain.UpdateUniforms(imageIndex, FrameInfo{
		Elapsed: l.timer.elapsed(),
		Frame:   l.stats.Frames,
		Slot:    l.currentFrame,
		Extent:  l.chain.Extent(),
	})
	if err != nil {
		return result, DeviceError(err, "update uniform buffers")
	}

	if err := slot.InFlight.Reset(); err != nil {
		return result, DeviceError(err, "reset in-flight fence")
	}
	err = l.chain.Submit(imageIndex, slot.ImageAvailable, slot.RenderFinished, slot.InFlight)
	if err != nil {
		return result, SubmissionError(err, "submit draw command buffer")
	}
	l.stats.Frames++

	status, err = l.chain.Present(imageIndex, slot.RenderFinished)
	if errors.Is(err, ErrSurfaceStale) {
		status, err = StatusOutOfDate, nil
	}
	if err != nil {
		return result, SubmissionError(err, "present")
	}
	if status != StatusOutOfDate {
		result.Presented = true
		l.stats.Presented++
		l.timer.presented(l.stats)
	}
	if status != StatusSuccess || l.window.Resized() {
		l.window.ClearResized()
		recreate = true
	}

	l.currentFrame = (l.currentFrame + 1) % len(l.slots)

	if recreate {
		l.log.Debug("swapchain needs rebuilding after present", "status", status)
		rebuilt, err := l.Recreate()
		if err != nil {
			return result, err
		}
		result.Recreated = rebuilt
	}
	return result, nil
}

// Recreate rebuilds the swapchain and everything that depends on it. While the
// window is minimized it blocks on window events. It reports false, keeping
// the current swapchain, if the window is closed while minimized.
func (l *Loop) Recreate() (bool, error) {
	for {
		width, height := l.window.DrawableSize()
		if width > 0 && height > 0 {
			break
		}
		if l.window.ShouldClose() {
			return false, nil
		}
		l.window.WaitEvents()
	}

	// In-flight command buffers reference the objects destroyed below.
	if err := l.device.WaitIdle(); err != nil {
		return false, DeviceError(err, "wait for device idle before recreation")
	}

	old := l.chain.Extent()
	l.chain.Destroy()
	l.chain = nil

	if err := l.buildChain(); err != nil {
		return false, err
	}
	l.stats.Recreations++
	l.log.Info("swapchain recreated",
		"old_extent", old.String(),
		"extent", l.chain.Extent().String(),
		"images", l.chain.ImageCount(),
	)
	return true, nil
}

func (l *Loop) buildChain() error {
	chain, err := l.device.BuildChain()
	if err != nil {
		return DeviceError(err, "build swapchain")
	}
	l.chain = chain
	l.images = newImageStates(chain.ImageCount())
	return nil
}

// Run draws frames until the window asks to close, ctx is cancelled, or
// maxFrames frames have been presented (when maxFrames is positive). It always
// waits for the device to go idle before returning.
func (l *Loop) Run(ctx context.Context, maxFrames int) error {
	var runErr error
	for ctx.Err() == nil {
		l.window.PollEvents()
		if l.window.ShouldClose() {
			break
		}

		if _, err := l.DrawFrame(); err != nil {
			runErr = err
			break
		}
		if maxFrames > 0 && l.stats.Presented >= uint64(maxFrames) {
			break
		}
	}

	idleErr := DeviceError(l.device.WaitIdle(), "wait for device idle")
	if runErr != nil {
		return runErr
	}
	return idleErr
}

// Close waits for the device, then destroys the swapchain generation and the
// frame slots.
func (l *Loop) Close() error {
	err := DeviceError(l.device.WaitIdle(), "wait for device idle")
	if l.chain != nil {
		l.chain.Destroy()
		l.chain = nil
	}
	l.stack.Unwind()
	return err
}
