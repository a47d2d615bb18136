package render

import (
	"strconv"

	"github.com/vkngwrapper/vkrender/internal/lifecycle"
)

// FrameSlot is one of the rotating synchronization bundles. At most one frame
// per slot is queued on the GPU at any time.
type FrameSlot struct {
	ImageAvailable Semaphore
	RenderFinished Semaphore
	InFlight       Fence
}

// newFrameSlots creates count slots. Fences start signalled so the first wait
// on each slot returns immediately. Destructors are pushed onto stack.
func newFrameSlots(device Device, count int, stack *lifecycle.Stack) ([]FrameSlot, error) {
	slots := make([]FrameSlot, count)
	for i := range slots {
		suffix := strconv.Itoa(i)

		available, err := device.CreateSemaphore()
		if err != nil {
			return nil, DeviceError(err, "create image-available semaphore")
		}
		stack.Push("image-available-"+suffix, available.Destroy)

		finished, err := device.CreateSemaphore()
		if err != nil {
			return nil, DeviceError(err, "create render-finished semaphore")
		}
		stack.Push("render-finished-"+suffix, finished.Destroy)

		fence, err := device.CreateFence(true)
		if err != nil {
			return nil, DeviceError(err, "create in-flight fence")
		}
		stack.Push("in-flight-"+suffix, fence.Destroy)

		slots[i] = FrameSlot{
			ImageAvailable: available,
			RenderFinished: finished,
			InFlight:       fence,
		}
	}
	return slots, nil
}

const noOwner = -1

// imageState is the loop's per-image bookkeeping.
type imageState struct {
	// owner is the frame slot whose fence guards the last submission that
	// wrote this image, or noOwner.
	owner int
}

func newImageStates(count int) []imageState {
	images := make([]imageState, count)
	for i := range images {
		images[i].owner = noOwner
	}
	return images
}
