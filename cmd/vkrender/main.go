// Command vkrender opens a window and draws a small animated scene with Vulkan
// until the window is closed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/vkrender/internal/assets"
	"github.com/vkngwrapper/vkrender/internal/config"
	"github.com/vkngwrapper/vkrender/internal/logging"
	"github.com/vkngwrapper/vkrender/internal/render"
	"github.com/vkngwrapper/vkrender/internal/scene"
	"github.com/vkngwrapper/vkrender/internal/vulkan"
	"github.com/vkngwrapper/vkrender/internal/window"
)

type application struct {
	cfg config.Config
	log *slog.Logger

	window *window.Window
	device *vulkan.Context
	loop   *render.Loop
}

func (app *application) Run(ctx context.Context) (err error) {
	defer func() {
		cleanupErr := render.InPhase(render.PhaseCleanup, app.cleanup())
		if err == nil {
			err = cleanupErr
		}
	}()

	if err := app.initWindow(); err != nil {
		return render.InPhase(render.PhaseWindow, err)
	}

	if err := app.initVulkan(ctx); err != nil {
		return render.InPhase(render.PhaseInit, err)
	}

	if err := app.mainLoop(ctx); err != nil {
		return render.InPhase(render.PhaseLoop, err)
	}
	return nil
}

func (app *application) initWindow() error {
	var err error
	app.window, err = window.Open(window.Options{
		Title:     app.cfg.Title,
		Width:     app.cfg.Width,
		Height:    app.cfg.Height,
		Resizable: app.cfg.Resizable,
		Logger:    app.log,
	})
	return err
}

func (app *application) initVulkan(ctx context.Context) error {
	var err error
	app.device, err = vulkan.NewContext(app.window, vulkan.Options{
		AppName:     app.cfg.Title,
		Validation:  app.cfg.Validation,
		PresentMode: vulkan.PresentMode(app.cfg.PresentMode),
		Logger:      app.log,
	})
	if err != nil {
		return err
	}

	specs := scene.Default(true)
	sources, texture := assetSources(app.cfg)
	set, err := assets.Load(ctx, sources, vulkan.AssetRequest(specs, texture, app.cfg.MaxTextureSize), app.log)
	if err != nil {
		return err
	}

	if err := app.device.LoadScene(specs, set); err != nil {
		return err
	}

	app.loop, err = render.New(app.device, app.window, render.Options{
		FramesInFlight: app.cfg.FramesInFlight,
		FenceTimeout:   app.cfg.FenceTimeout,
		StatsInterval:  app.cfg.StatsInterval,
		Logger:         app.log,
	})
	return err
}

// assetSources roots shaders under the asset directory, if one is set, and the
// texture, if any, at its own directory. Everything else comes from the binary.
func assetSources(cfg config.Config) (assets.Sources, string) {
	var sources assets.Sources
	if cfg.AssetDir != "" {
		sources.Shaders = os.DirFS(filepath.Join(cfg.AssetDir, "shaders"))
	}
	if cfg.TexturePath == "" {
		return sources, ""
	}
	sources.Textures = os.DirFS(filepath.Dir(cfg.TexturePath))
	return sources, filepath.Base(cfg.TexturePath)
}

func (app *application) mainLoop(ctx context.Context) error {
	err := app.loop.Run(ctx, app.cfg.MaxFrames)

	stats := app.loop.Stats()
	app.log.Info("main loop finished",
		"frames", stats.Frames,
		"presented", stats.Presented,
		"skipped", stats.Skipped,
		"recreations", stats.Recreations,
		"cancelled", ctx.Err() != nil,
	)
	return err
}

// cleanup releases the loop, the device and the window, newest first. It is
// safe after a partial start.
func (app *application) cleanup() error {
	var err error
	if app.loop != nil {
		err = errors.CombineErrors(err, app.loop.Close())
		app.loop = nil
	}
	if app.device != nil {
		err = errors.CombineErrors(err, app.device.Close())
		app.device = nil
	}
	if app.window != nil {
		err = errors.CombineErrors(err, app.window.Close())
		app.window = nil
	}
	return err
}

func run(args []string) error {
	cfg := config.Default()
	flags := flag.NewFlagSet("vkrender", flag.ContinueOnError)
	cfg.RegisterFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &application{cfg: cfg, log: logger}
	return app.Run(ctx)
}

func main() {
	// SDL and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
