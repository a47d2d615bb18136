// Package config holds the runtime options for the renderer. Everything that
// used to be a compile-time switch (validation layers, frames in flight, window
// size) is a field here and can be set from the command line.
package config

import (
	"flag"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// PresentMode names the presentation mode the swapchain should prefer. FIFO is
// always the fallback when the preferred mode is not supported by the surface.
type PresentMode string

const (
	PresentModeMailbox     PresentMode = "mailbox"
	PresentModeFIFO        PresentMode = "fifo"
	PresentModeFIFORelaxed PresentMode = "fifo-relaxed"
	PresentModeImmediate   PresentMode = "immediate"
)

// ValidationEnv turns on validation layers when set to a true-ish value.
const ValidationEnv = "VKRENDER_VALIDATION"

const (
	MinFramesInFlight = 1
	MaxFramesInFlight = 4
)

type Config struct {
	Title     string
	Width     int
	Height    int
	Resizable bool

	// Validation enables VK_LAYER_KHRONOS_validation and the debug messenger.
	Validation bool

	LogLevel  string
	LogFormat string

	FramesInFlight int
	// FenceTimeout bounds every CPU wait on a fence. Zero waits forever.
	FenceTimeout time.Duration
	PresentMode  PresentMode

	AssetDir       string
	TexturePath    string
	MaxTextureSize int

	StatsInterval time.Duration
	// MaxFrames stops the main loop after this many presented frames. Zero
	// runs until the window is closed.
	MaxFrames int
}

func Default() Config {
	return Config{
		Title:          "vkrender",
		Width:          800,
		Height:         600,
		Resizable:      true,
		LogLevel:       "info",
		LogFormat:      "text",
		FramesInFlight: 2,
		FenceTimeout:   10 * time.Second,
		PresentMode:    PresentModeMailbox,
		MaxTextureSize: 2048,
		StatsInterval:  5 * time.Second,
	}
}

// RegisterFlags binds every option to fs, using the current field values as
// defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Title, "title", c.Title, "window title")
	fs.IntVar(&c.Width, "width", c.Width, "initial window width in pixels")
	fs.IntVar(&c.Height, "height", c.Height, "initial window height in pixels")
	fs.BoolVar(&c.Resizable, "resizable", c.Resizable, "allow the window to be resized")
	fs.BoolVar(&c.Validation, "validation", c.Validation, "enable Vulkan validation layers (also "+ValidationEnv+"=1)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json")
	fs.IntVar(&c.FramesInFlight, "frames-in-flight", c.FramesInFlight, "number of frames the CPU may queue ahead of the GPU")
	fs.DurationVar(&c.FenceTimeout, "fence-timeout", c.FenceTimeout, "maximum wait on a GPU fence before giving up (0 waits forever)")
	fs.Func("present-mode", "preferred present mode: mailbox, fifo, fifo-relaxed, immediate (default "+string(c.PresentMode)+")", func(s string) error {
		mode, err := ParsePresentMode(s)
		if err != nil {
			return err
		}
		c.PresentMode = mode
		return nil
	})
	fs.StringVar(&c.AssetDir, "assets", c.AssetDir, "asset directory whose shaders subdirectory overrides the built-in compiled shaders")
	fs.StringVar(&c.TexturePath, "texture", c.TexturePath, "texture image for the textured square (empty uses a checkerboard)")
	fs.IntVar(&c.MaxTextureSize, "max-texture-size", c.MaxTextureSize, "textures larger than this are downscaled")
	fs.DurationVar(&c.StatsInterval, "stats-interval", c.StatsInterval, "how often frame statistics are logged (0 disables)")
	fs.IntVar(&c.MaxFrames, "max-frames", c.MaxFrames, "exit after this many frames (0 runs until closed)")
}

// ApplyEnv folds environment overrides into the config. lookup is usually
// os.Getenv.
func (c *Config) ApplyEnv(lookup func(string) string) {
	switch strings.ToLower(strings.TrimSpace(lookup(ValidationEnv))) {
	case "1", "true", "yes", "on":
		c.Validation = true
	}
}

func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Newf("window size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.FramesInFlight < MinFramesInFlight || c.FramesInFlight > MaxFramesInFlight {
		return errors.Newf("frames in flight must be between %d and %d, got %d",
			MinFramesInFlight, MaxFramesInFlight, c.FramesInFlight)
	}
	if c.FenceTimeout < 0 {
		return errors.Newf("fence timeout cannot be negative, got %s", c.FenceTimeout)
	}
	if _, err := ParsePresentMode(string(c.PresentMode)); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.Newf("unknown log format %q", c.LogFormat)
	}
	if c.MaxTextureSize <= 0 {
		return errors.Newf("max texture size must be positive, got %d", c.MaxTextureSize)
	}
	if c.StatsInterval < 0 {
		return errors.Newf("stats interval cannot be negative, got %s", c.StatsInterval)
	}
	if c.MaxFrames < 0 {
		return errors.Newf("max frames cannot be negative, got %d", c.MaxFrames)
	}
	return nil
}

func ParsePresentMode(s string) (PresentMode, error) {
	switch mode := PresentMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case PresentModeMailbox, PresentModeFIFO, PresentModeFIFORelaxed, PresentModeImmediate:
		return mode, nil
	default:
		return "", errors.Newf("unknown present mode %q", s)
	}
}
