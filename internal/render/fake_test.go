package render

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// fakeGPU simulates a single in-order queue. Submitted work completes only
// when the CPU waits on a fence (or the device), which makes the number of
// unfinished submissions directly observable.
type fakeGPU struct {
	imageCount int

	events     []string
	violations []string

	pending     []submission
	maxInFlight int
	idle        bool

	fences     []*fakeFence
	semaphores []*fakeSemaphore
	chains     []*fakeChain

	window *fakeWindow

	createFenceErr error
	buildErr       error
	// configure is applied to every chain as it is built.
	configure func(*fakeChain)
}

type submission struct {
	fence *fakeFence
	chain *fakeChain
	image int
}

func newFakeGPU(imageCount int) *fakeGPU {
	return &fakeGPU{imageCount: imageCount, idle: true}
}

func (g *fakeGPU) record(format string, args ...any) {
	g.events = append(g.events, fmt.Sprintf(format, args...))
}

func (g *fakeGPU) violate(format string, args ...any) {
	g.violations = append(g.violations, fmt.Sprintf(format, args...))
}

// completeThrough retires queued submissions in order until fence is signalled.
func (g *fakeGPU) completeThrough(fence *fakeFence) bool {
	for i, sub := range g.pending {
		if sub.fence != fence {
			continue
		}
		for _, done := range g.pending[:i+1] {
			done.fence.signaled = true
		}
		g.pending = g.pending[i+1:]
		return true
	}
	return false
}

func (g *fakeGPU) CreateFence(signaled bool) (Fence, error) {
	if g.createFenceErr != nil {
		return nil, g.createFenceErr
	}
	f := &fakeFence{gpu: g, id: len(g.fences), signaled: signaled}
	g.fences = append(g.fences, f)
	return f, nil
}

func (g *fakeGPU) CreateSemaphore() (Semaphore, error) {
	s := &fakeSemaphore{id: len(g.semaphores)}
	g.semaphores = append(g.semaphores, s)
	return s, nil
}

func (g *fakeGPU) WaitIdle() error {
	g.record("wait idle")
	for _, sub := range g.pending {
		sub.fence.signaled = true
	}
	g.pending = nil
	g.idle = true
	return nil
}

func (g *fakeGPU) BuildChain() (Chain, error) {
	id := len(g.chains)
	g.record("build chain%d", id)
	width, height := g.window.DrawableSize()
	if width == 0 || height == 0 {
		g.violate("chain %d built for a %dx%d window", id, width, height)
	}
	if g.buildErr != nil {
		return nil, g.buildErr
	}

	c := &fakeChain{
		gpu:    g,
		id:     id,
		extent: Extent{Width: width, Height: height},
		images: g.imageCount,
	}
	if g.configure != nil {
		g.configure(c)
	}
	g.chains = append(g.chains, c)
	return c, nil
}

type fakeFence struct {
	gpu       *fakeGPU
	id        int
	signaled  bool
	hang      bool
	waits     int
	destroyed bool
}

func (f *fakeFence) Wait(time.Duration) error {
	f.waits++
	f.gpu.record("wait fence%d", f.id)
	if f.signaled {
		return nil
	}
	if f.hang {
		return FenceTimeoutError(time.Second)
	}
	if !f.gpu.completeThrough(f) {
		return errors.Newf("fence %d waited on but never submitted", f.id)
	}
	return nil
}

func (f *fakeFence) Reset() error {
	f.gpu.record("reset fence%d", f.id)
	f.signaled = false
	return nil
}

func (f *fakeFence) Destroy() {
	f.destroyed = true
}

type fakeSemaphore struct {
	id        int
	destroyed bool
}

func (s *fakeSemaphore) Destroy() {
	s.destroyed = true
}

type acquireStep struct {
	index  int
	status Status
	err    error
}

type fakeChain struct {
	gpu    *fakeGPU
	id     int
	extent Extent
	images int

	acquire    []acquireStep
	next       int
	present    []Status
	presentErr error
	submitErr  error

	acquireCalls int
	presentCalls int
	frames       []FrameInfo
	destroyed    bool
}

func (c *fakeChain) Extent() Extent  { return c.extent }
func (c *fakeChain) ImageCount() int { return c.images }

func (c *fakeChain) AcquireNextImage(_ time.Duration, _ Semaphore) (int, Status, error) {
	c.acquireCalls++
	c.gpu.record("acquire chain%d", c.id)
	if c.destroyed {
		c.gpu.violate("acquire on destroyed chain %d", c.id)
	}
	if len(c.acquire) > 0 {
		step := c.acquire[0]
		c.acquire = c.acquire[1:]
		return step.index, step.status, step.err
	}
	index := c.next
	c.next = (c.next + 1) % c.images
	return index, StatusSuccess, nil
}

func (c *fakeChain) UpdateUniforms(imageIndex int, frame FrameInfo) error {
	c.gpu.record("uniforms chain%d image%d", c.id, imageIndex)
	for _, sub := range c.gpu.pending {
		if sub.chain == c && sub.image == imageIndex {
			c.gpu.violate("uniform buffer for image %d rewritten while fence %d is pending", imageIndex, sub.fence.id)
		}
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeChain) Submit(imageIndex int, _, _ Semaphore, fence Fence) error {
	f := fence.(*fakeFence)
	c.gpu.record("submit chain%d image%d fence%d", c.id, imageIndex, f.id)
	if c.submitErr != nil {
		return c.submitErr
	}
	if f.signaled {
		c.gpu.violate("fence %d submitted while still signalled", f.id)
	}
	c.gpu.pending = append(c.gpu.pending, submission{fence: f, chain: c, image: imageIndex})
	c.gpu.idle = false
	if len(c.gpu.pending) > c.gpu.maxInFlight {
		c.gpu.maxInFlight = len(c.gpu.pending)
	}
	return nil
}

func (c *fakeChain) Present(imageIndex int, _ Semaphore) (Status, error) {
	c.presentCalls++
	c.gpu.record("present chain%d image%d", c.id, imageIndex)
	if c.presentErr != nil {
		return StatusSuccess, c.presentErr
	}
	if len(c.present) > 0 {
		status := c.present[0]
		c.present = c.present[1:]
		return status, nil
	}
	return StatusSuccess, nil
}

func (c *fakeChain) Destroy() {
	c.gpu.record("destroy chain%d", c.id)
	if !c.gpu.idle || len(c.gpu.pending) > 0 {
		c.gpu.violate("chain %d destroyed with %d submissions in flight", c.id, len(c.gpu.pending))
	}
	c.destroyed = true
}

type fakeWindow struct {
	gpu *fakeGPU

	width, height int
	resized       bool
	closed        bool

	polls           int
	closeAfterPolls int
	// waitSizes is the drawable size after each WaitEvents call. When it runs
	// out the window closes so a test can never block forever.
	waitSizes []Extent
}

func newFakeWindow(gpu *fakeGPU, width, height int) *fakeWindow {
	w := &fakeWindow{gpu: gpu, width: width, height: height}
	gpu.window = w
	return w
}

func (w *fakeWindow) DrawableSize() (int, int) { return w.width, w.height }
func (w *fakeWindow) Resized() bool             { return w.resized }
func (w *fakeWindow) ClearResized()             { w.resized = false }
func (w *fakeWindow) ShouldClose() bool         { return w.closed }

func (w *fakeWindow) PollEvents() {
	w.polls++
	if w.closeAfterPolls > 0 && w.polls >= w.closeAfterPolls {
		w.closed = true
	}
}

func (w *fakeWindow) WaitEvents() {
	w.gpu.record("wait events")
	if len(w.waitSizes) == 0 {
		w.closed = true
		return
	}
	size := w.waitSizes[0]
	w.waitSizes = w.waitSizes[1:]
	w.width, w.height = size.Width, size.Height
}

// fakeClock advances 16ms on every reading.
func fakeClock() Clock {
	var now time.Duration
	return func() time.Duration {
		now += 16 * time.Millisecond
		return now
	}
}
