// Package scene defines what vkrender draws.
package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkrender/internal/render"
	"github.com/vkngwrapper/vkrender/internal/vulkan"
)

// Shader file names, relative to the asset directory.
const (
	ColoredVert  = "colored.vert.spv"
	ColoredFrag  = "colored.frag.spv"
	RotatingVert = "rotating.vert.spv"
	TexturedVert = "textured.vert.spv"
	TexturedFrag = "textured.frag.spv"
)

const (
	TriangleMesh = "triangle.obj"
	SquareMesh   = "square.obj"
)

var (
	red   = [3]float32{1, 0, 0}
	green = [3]float32{0, 1, 0}
	blue  = [3]float32{0, 0, 1}
	white = [3]float32{1, 1, 1}
)

// MVP is the uniform block read by the rotating and textured vertex shaders.
type MVP struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

var (
	eye    = mgl32.Vec3{2, 2, 2}
	center = mgl32.Vec3{0, 0, 0}
	up     = mgl32.Vec3{0, 0, 1}
)

const (
	fovy = 45.0
	near = 0.1
	far  = 10.0
)

// Grid positions in the view plane. Draws sharing a mesh must not share a
// position or their depths tie and the later one loses the depth test.
var (
	topLeft     = mgl32.Vec3{0, -0.7, 0.5}
	topRight    = mgl32.Vec3{-0.7, 0, 0.5}
	bottomLeft  = mgl32.Vec3{0.7, 0, -0.5}
	bottomRight = mgl32.Vec3{0, 0.7, -0.5}
)

// Rotating returns a uniform function that spins the model about axis at a
// quarter turn per second, then moves it to offset, seen from (2,2,2) looking
// at the origin.
func Rotating(axis, offset mgl32.Vec3) vulkan.UniformFunc {
	return func(frame render.FrameInfo) any {
		return NewMVP(axis, offset, frame.Elapsed, frame.Extent)
	}
}

func NewMVP(axis, offset mgl32.Vec3, elapsed float64, extent render.Extent) *MVP {
	angle := float32(math.Mod(elapsed, 4.0) * math.Pi / 2.0)

	aspect := float32(1)
	if !extent.Empty() {
		aspect = float32(extent.Width) / float32(extent.Height)
	}

	proj := mgl32.Perspective(mgl32.DegToRad(fovy), aspect, near, far)
	// Vulkan clip space has Y pointing down.
	proj.Set(1, 1, -proj.At(1, 1))

	return &MVP{
		Model: mgl32.Translate3D(offset.X(), offset.Y(), offset.Z()).Mul4(mgl32.HomogRotate3D(angle, axis.Normalize())),
		View:  mgl32.LookAtV(eye, center, up),
		Proj:  proj,
	}
}

// Default is the draw set: a coloured backdrop triangle, three coloured squares
// spinning about Z, Y and X, and optionally a textured square, one per grid
// position.
func Default(textured bool) []vulkan.PipelineSpec {
	specs := []vulkan.PipelineSpec{
		{
			Name:           "triangle",
			VertexShader:   ColoredVert,
			FragmentShader: ColoredFrag,
			Mesh:           TriangleMesh,
			Palette:        [][3]float32{red, green, blue},
			Layout:         vulkan.ColoredVertex,
			Topology:       core1_0.PrimitiveTopologyTriangleList,
		},
		square("square-z", mgl32.Vec3{0, 0, 1}, topLeft),
		square("square-y", mgl32.Vec3{0, 1, 0}, topRight),
		square("square-x", mgl32.Vec3{1, 0, 0}, bottomLeft),
	}

	if textured {
		specs = append(specs, vulkan.PipelineSpec{
			Name:           "textured-square",
			VertexShader:   TexturedVert,
			FragmentShader: TexturedFrag,
			Mesh:           SquareMesh,
			Layout:         vulkan.TexturedVertex,
			Topology:       core1_0.PrimitiveTopologyTriangleList,
			Uniform:        Rotating(mgl32.Vec3{0, 0, 1}, bottomRight),
			Textured:       true,
		})
	}
	return specs
}

func square(name string, axis, offset mgl32.Vec3) vulkan.PipelineSpec {
	return vulkan.PipelineSpec{
		Name:           name,
		VertexShader:   RotatingVert,
		FragmentShader: ColoredFrag,
		Mesh:           SquareMesh,
		Palette:        [][3]float32{red, green, blue, white},
		Layout:         vulkan.ColoredVertex,
		Topology:       core1_0.PrimitiveTopologyTriangleList,
		Uniform:        Rotating(axis, offset),
	}
}
