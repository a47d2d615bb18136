package vulkan

import (
	"time"

	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkrender/internal/render"
)

type fence struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.Fence
}

func (f *fence) Wait(timeout time.Duration) error {
	res, err := f.driver.WaitForFences(true, waitTimeout(timeout), f.handle)
	if err != nil {
		return err
	}
	if timedOut(res) {
		return render.FenceTimeoutError(timeout)
	}
	return nil
}

func (f *fence) Reset() error {
	_, err := f.driver.ResetFences(f.handle)
	return err
}

func (f *fence) Destroy() {
	f.driver.DestroyFence(f.handle, nil)
}

type semaphore struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.Semaphore
}

func (s *semaphore) Destroy() {
	s.driver.DestroySemaphore(s.handle, nil)
}
