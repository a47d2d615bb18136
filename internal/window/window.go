// Package window hosts the renderer in an SDL2 window.
package window

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/vkrender/internal/logging"
)

type Options struct {
	Title     string
	Width     int
	Height    int
	Resizable bool
	Logger    *slog.Logger
}

// Window is a Vulkan-capable SDL window. It must be used from the thread that
// opened it.
type Window struct {
	window *sdl.Window
	log    *slog.Logger

	resized   bool
	minimized bool
	closed    bool
}

// Open initialises SDL video and creates the window.
func Open(opts Options) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "initialize SDL video")
	}

	flags := uint32(sdl.WINDOW_SHOWN | sdl.WINDOW_VULKAN)
	if opts.Resizable {
		flags |= sdl.WINDOW_RESIZABLE
	}

	window, err := sdl.CreateWindow(opts.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(opts.Width), int32(opts.Height), flags)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	w := &Window{window: window, log: logging.OrDiscard(opts.Logger)}
	width, height := w.DrawableSize()
	w.log.Info("window opened",
		"title", opts.Title,
		"drawable_width", width,
		"drawable_height", height,
		"resizable", opts.Resizable,
	)
	return w, nil
}

// SDLWindow exposes the native window for surface creation.
func (w *Window) SDLWindow() *sdl.Window {
	return w.window
}

// DrawableSize is the framebuffer size in pixels, 0x0 while minimized.
func (w *Window) DrawableSize() (int, int) {
	if w.minimized || w.window == nil {
		return 0, 0
	}
	if (w.window.GetFlags() & sdl.WINDOW_MINIMIZED) != 0 {
		return 0, 0
	}
	width, height := w.window.VulkanGetDrawableSize()
	return int(width), int(height)
}

func (w *Window) Resized() bool {
	return w.resized
}

func (w *Window) ClearResized() {
	w.resized = false
}

func (w *Window) Minimized() bool {
	return w.minimized
}

func (w *Window) ShouldClose() bool {
	return w.closed
}

func (w *Window) PollEvents() {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		w.handle(event)
	}
}

// WaitEvents blocks for one event, then drains whatever else is queued.
func (w *Window) WaitEvents() {
	if event := sdl.WaitEvent(); event != nil {
		w.handle(event)
	}
	w.PollEvents()
}

func (w *Window) handle(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		w.closed = true
	case *sdl.KeyboardEvent:
		if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
			w.closed = true
		}
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_CLOSE:
			w.closed = true
		case sdl.WINDOWEVENT_MINIMIZED:
			w.minimized = true
			w.log.Debug("window minimized")
		case sdl.WINDOWEVENT_RESTORED, sdl.WINDOWEVENT_MAXIMIZED:
			if w.minimized {
				w.log.Debug("window restored")
			}
			w.minimized = false
			w.resized = true
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			w.resized = true
			w.log.Debug("window resized", "width", e.Data1, "height", e.Data2)
		}
	}
}

// Close destroys the window and shuts SDL down.
func (w *Window) Close() error {
	var err error
	if w.window != nil {
		err = w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
	return errors.Wrap(err, "destroy window")
}
