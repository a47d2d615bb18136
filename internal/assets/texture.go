package assets

import (
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"

	"github.com/vkngwrapper/vkrender/internal/render"
)

// LoadTexture decodes a PNG or JPEG image into tightly packed RGBA. Images
// larger than maxSize on either side are scaled down, keeping the aspect
// ratio. A maxSize of zero disables scaling.
func LoadTexture(fsys fs.FS, name string, maxSize int) (*image.RGBA, error) {
	file, err := fsys.Open(name)
	if err != nil {
		return nil, render.ResourceLoadError(err, "open texture")
	}
	defer file.Close()

	decoded, format, err := image.Decode(file)
	if err != nil {
		return nil, render.ResourceLoadError(errors.Wrapf(err, "decode %s", name), "load texture")
	}
	if decoded.Bounds().Empty() {
		return nil, render.ResourceLoadError(errors.Newf("%s: empty %s image", name, format), "load texture")
	}

	return ToRGBA(decoded, maxSize), nil
}

// ToRGBA copies img into an RGBA image with origin (0,0), scaling it to fit
// within maxSize when needed.
func ToRGBA(img image.Image, maxSize int) *image.RGBA {
	bounds := img.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), maxSize)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
		return dst
	}

	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

func fitWithin(width, height, maxSize int) (int, int) {
	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		return width, height
	}
	if width >= height {
		return maxSize, max(1, height*maxSize/width)
	}
	return max(1, width*maxSize/height), maxSize
}

// Checkerboard generates a size x size texture of cells x cells squares, used
// when no texture file is configured.
func Checkerboard(size, cells int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	light := image.NewUniform(color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff})
	dark := image.NewUniform(color.RGBA{R: 0x30, G: 0x30, B: 0x80, A: 0xff})

	cell := max(1, size/max(1, cells))
	for y := 0; y < size; y += cell {
		for x := 0; x < size; x += cell {
			src := light
			if (x/cell+y/cell)%2 == 1 {
				src = dark
			}
			draw.Draw(img, image.Rect(x, y, x+cell, y+cell), src, image.Point{}, draw.Src)
		}
	}
	return img
}
