// Package assets loads the CPU-side data the renderer uploads at startup:
// SPIR-V shaders, OBJ meshes and the sampled texture.
package assets

import (
	"context"
	"image"
	"io/fs"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/vkrender/internal/logging"
	"github.com/vkngwrapper/vkrender/internal/render"
)

const (
	checkerboardSize  = 256
	checkerboardCells = 8
)

// Sources are the file systems each kind of asset is read from. A nil Shaders
// or Meshes uses the ones built into the binary.
type Sources struct {
	Shaders  fs.FS
	Meshes   fs.FS
	Textures fs.FS
}

// Request names everything a scene needs. An empty Texture selects the
// procedural checkerboard.
type Request struct {
	Shaders        []string
	Meshes         []string
	Texture        string
	MaxTextureSize int
}

// Set holds decoded assets keyed by the names they were requested with.
type Set struct {
	Shaders map[string][]uint32
	Meshes  map[string]Mesh
	Texture *image.RGBA
}

// Load reads every requested asset concurrently. The first failure cancels the
// rest and is returned marked with render.ErrResourceLoad.
func Load(ctx context.Context, src Sources, req Request, log *slog.Logger) (*Set, error) {
	log = logging.OrDiscard(log)
	if src.Shaders == nil {
		src.Shaders = BuiltinShaders()
	}
	if src.Meshes == nil {
		src.Meshes = Builtin()
	}

	set := &Set{
		Shaders: make(map[string][]uint32),
		Meshes:  make(map[string]Mesh),
	}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range dedupe(req.Shaders) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			code, err := LoadShader(src.Shaders, name)
			if err != nil {
				return err
			}
			mu.Lock()
			set.Shaders[name] = code
			mu.Unlock()
			return nil
		})
	}

	for _, name := range dedupe(req.Meshes) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			mesh, err := LoadMesh(src.Meshes, name)
			if err != nil {
				return err
			}
			mu.Lock()
			set.Meshes[name] = mesh
			mu.Unlock()
			return nil
		})
	}

	g.Go(func() error {
		if req.Texture == "" {
			set.Texture = Checkerboard(checkerboardSize, checkerboardCells)
			return nil
		}
		texture, err := LoadTexture(src.Textures, req.Texture, req.MaxTextureSize)
		if err != nil {
			return err
		}
		set.Texture = texture
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, render.ResourceLoadError(err, "load assets")
	}

	log.Debug("assets loaded",
		"shaders", len(set.Shaders),
		"meshes", len(set.Meshes),
		"texture", set.Texture.Bounds().Size().String(),
	)
	return set, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
