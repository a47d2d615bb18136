package scene

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/vkrender/internal/assets"
	"github.com/vkngwrapper/vkrender/internal/render"
	"github.com/vkngwrapper/vkrender/internal/vulkan"
)

const epsilon = 1e-5

func TestDefaultScene(t *testing.T) {
	specs := Default(false)
	require.Len(t, specs, 4)
	for _, spec := range specs {
		assert.NoError(t, spec.Validate(), spec.Name)
		assert.False(t, spec.Textured, spec.Name)
	}
	assert.Nil(t, specs[0].Uniform, "the triangle is drawn in clip space")
	assert.Equal(t, TriangleMesh, specs[0].Mesh)

	for _, spec := range specs[1:] {
		assert.Equal(t, SquareMesh, spec.Mesh)
		assert.NotNil(t, spec.Uniform, spec.Name)
	}

	specs = Default(true)
	require.Len(t, specs, 5)
	textured := specs[4]
	assert.True(t, textured.Textured)
	assert.Equal(t, vulkan.TexturedVertex, textured.Layout)
	assert.NoError(t, textured.Validate())
}

func TestDefaultSceneAssets(t *testing.T) {
	req := vulkan.AssetRequest(Default(true), "", 0)
	assert.ElementsMatch(t, []string{TriangleMesh, SquareMesh}, dedupe(req.Meshes))
	assert.ElementsMatch(t, []string{ColoredVert, ColoredFrag, RotatingVert, TexturedVert, TexturedFrag}, dedupe(req.Shaders))
}

func TestDefaultSceneLoadsFromBuiltinAssets(t *testing.T) {
	specs := Default(true)
	set, err := assets.Load(context.Background(), assets.Sources{}, vulkan.AssetRequest(specs, "", 0), nil)
	require.NoError(t, err)
	for _, spec := range specs {
		assert.Contains(t, set.Shaders, spec.VertexShader, spec.Name)
		assert.Contains(t, set.Shaders, spec.FragmentShader, spec.Name)
	}
}

func dedupe(names []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func TestMVPStartsUnrotated(t *testing.T) {
	mvp := NewMVP(mgl32.Vec3{0, 0, 1}, mgl32.Vec3{}, 0, render.Extent{Width: 800, Height: 600})
	assert.True(t, mvp.Model.ApproxEqualThreshold(mgl32.Ident4(), epsilon))
}

func TestMVPQuarterTurnPerSecond(t *testing.T) {
	cases := []struct {
		axis mgl32.Vec3
		in   mgl32.Vec4
		want mgl32.Vec4
	}{
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec4{1, 0, 0, 1}, mgl32.Vec4{0, 1, 0, 1}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec4{0, 0, 1, 1}, mgl32.Vec4{1, 0, 0, 1}},
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec4{0, 1, 0, 1}, mgl32.Vec4{0, 0, 1, 1}},
	}
	for _, tc := range cases {
		mvp := NewMVP(tc.axis, mgl32.Vec3{}, 1, render.Extent{Width: 800, Height: 600})
		got := mvp.Model.Mul4x1(tc.in)
		assert.True(t, got.ApproxEqualThreshold(tc.want, epsilon), "axis %v: got %v", tc.axis, got)
	}
}

func TestMVPOffsetTranslatesAfterRotation(t *testing.T) {
	offset := mgl32.Vec3{0.7, 0, -0.5}
	mvp := NewMVP(mgl32.Vec3{0, 0, 1}, offset, 1, render.Extent{Width: 800, Height: 600})

	got := mvp.Model.Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.True(t, got.ApproxEqualThreshold(mgl32.Vec4{0.7, 1, -0.5, 1}, epsilon), "got %v", got)
}

// Draws sharing a mesh at the same position tie in depth, and the later one
// fails the LESS depth test everywhere.
func TestDefaultSceneDrawsDoNotOverlap(t *testing.T) {
	specs := Default(true)
	frames := []render.FrameInfo{
		{Elapsed: 0, Extent: render.Extent{Width: 800, Height: 600}},
		{Elapsed: 1.3, Extent: render.Extent{Width: 800, Height: 600}},
	}

	for _, frame := range frames {
		var names []string
		var centres []mgl32.Vec4
		for _, spec := range specs {
			if spec.Uniform == nil {
				continue
			}
			mvp, ok := spec.Uniform(frame).(*MVP)
			require.True(t, ok, spec.Name)
			clip := mvp.Proj.Mul4(mvp.View).Mul4(mvp.Model).Mul4x1(mgl32.Vec4{0, 0, 0, 1})
			names = append(names, spec.Name)
			centres = append(centres, clip.Mul(1/clip.W()))
		}
		require.Len(t, centres, 4)

		for i := range centres {
			for j := i + 1; j < len(centres); j++ {
				assert.False(t, centres[i].ApproxEqualThreshold(centres[j], 0.05),
					"%s and %s share a position at t=%v", names[i], names[j], frame.Elapsed)
			}
		}
	}
}

func TestMVPViewLooksAtOrigin(t *testing.T) {
	mvp := NewMVP(mgl32.Vec3{0, 0, 1}, mgl32.Vec3{}, 0, render.Extent{Width: 800, Height: 600})

	eyeInView := mvp.View.Mul4x1(mgl32.Vec4{2, 2, 2, 1})
	assert.True(t, eyeInView.ApproxEqualThreshold(mgl32.Vec4{0, 0, 0, 1}, epsilon))

	originInView := mvp.View.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.Less(t, originInView.Z(), float32(0), "the origin is in front of the camera")
}

func TestMVPProjectionFlipsY(t *testing.T) {
	mvp := NewMVP(mgl32.Vec3{0, 0, 1}, mgl32.Vec3{}, 0, render.Extent{Width: 1600, Height: 800})

	assert.Less(t, mvp.Proj.At(1, 1), float32(0))
	assert.InDelta(t, -mvp.Proj.At(1, 1), 2*mvp.Proj.At(0, 0), epsilon)
}

func TestMVPEmptyExtent(t *testing.T) {
	mvp := NewMVP(mgl32.Vec3{0, 0, 1}, mgl32.Vec3{}, 0, render.Extent{})
	assert.InDelta(t, -mvp.Proj.At(1, 1), mvp.Proj.At(0, 0), epsilon)
}

func TestRotatingUniformIsFixedSize(t *testing.T) {
	uniform := Rotating(mgl32.Vec3{0, 1, 0}, topRight)

	small := uniform(render.FrameInfo{Elapsed: 0.5, Extent: render.Extent{Width: 10, Height: 10}})
	large := uniform(render.FrameInfo{Elapsed: 90, Extent: render.Extent{Width: 4000, Height: 2000}})
	assert.Equal(t, 3*16*4, binary.Size(small))
	assert.Equal(t, binary.Size(small), binary.Size(large))
}
