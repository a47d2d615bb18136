package assets

import (
	"embed"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"

	"github.com/vkngwrapper/vkrender/internal/render"
)

//go:embed meshes
var builtin embed.FS

// Builtin returns the meshes compiled into the binary, rooted so that
// "triangle.obj" and "square.obj" are top-level names.
func Builtin() fs.FS {
	sub, err := fs.Sub(builtin, "meshes")
	if err != nil {
		panic(err)
	}
	return sub
}

// Vertex is the interleaved layout shared by every pipeline. Pipelines bind the
// attributes they need by offset.
type Vertex struct {
	Position [2]float32
	Color    [3]float32
	TexCoord [2]float32
}

type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

// Colorize returns a copy of the mesh with vertex i coloured palette[i%len].
func (m Mesh) Colorize(palette ...[3]float32) Mesh {
	if len(palette) == 0 {
		return m
	}
	out := Mesh{
		Name:     m.Name,
		Vertices: make([]Vertex, len(m.Vertices)),
		Indices:  append([]uint32(nil), m.Indices...),
	}
	for i, v := range m.Vertices {
		v.Color = palette[i%len(palette)]
		out.Vertices[i] = v
	}
	return out
}

type vertexKey struct {
	position int
	uv       int
}

// DecodeMesh reads a Wavefront OBJ and its material library. Faces are fanned
// into triangles and vertices sharing a position and UV are emitted once.
func DecodeMesh(name string, objReader, mtlReader io.Reader) (Mesh, error) {
	decoder, err := obj.DecodeReader(objReader, mtlReader)
	if err != nil {
		return Mesh{}, errors.Wrapf(err, "decode %s", name)
	}

	mesh := Mesh{Name: name}
	unique := make(map[vertexKey]uint32)

	addVertex := func(face obj.Face, i int) error {
		key := vertexKey{position: face.Vertices[i], uv: -1}
		if i < len(face.Uvs) {
			key.uv = face.Uvs[i]
		}

		index, ok := unique[key]
		if !ok {
			if (key.position+1)*3 > len(decoder.Vertices) {
				return errors.Newf("%s: vertex index %d out of range", name, key.position)
			}
			vert := Vertex{
				Position: [2]float32{
					decoder.Vertices[key.position*3],
					decoder.Vertices[key.position*3+1],
				},
				Color: [3]float32{1, 1, 1},
			}
			if key.uv >= 0 && (key.uv+1)*2 <= len(decoder.Uvs) {
				vert.TexCoord = [2]float32{
					decoder.Uvs[key.uv*2],
					1.0 - decoder.Uvs[key.uv*2+1],
				}
			}

			index = uint32(len(mesh.Vertices))
			mesh.Vertices = append(mesh.Vertices, vert)
			unique[key] = index
		}

		mesh.Indices = append(mesh.Indices, index)
		return nil
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range [3]int{0, i - 1, i} {
					if err := addVertex(face, corner); err != nil {
						return Mesh{}, err
					}
				}
			}
		}
	}

	if len(mesh.Indices) == 0 {
		return Mesh{}, errors.Newf("%s: no faces", name)
	}
	return mesh, nil
}

// LoadMesh opens name (an .obj file) and the .mtl file beside it.
func LoadMesh(fsys fs.FS, name string) (Mesh, error) {
	meshFile, err := fsys.Open(name)
	if err != nil {
		return Mesh{}, render.ResourceLoadError(err, "open mesh")
	}
	defer meshFile.Close()

	mtlName := strings.TrimSuffix(name, path.Ext(name)) + ".mtl"
	matFile, err := fsys.Open(mtlName)
	if err != nil {
		return Mesh{}, render.ResourceLoadError(err, "open material library")
	}
	defer matFile.Close()

	mesh, err := DecodeMesh(name, meshFile, matFile)
	if err != nil {
		return Mesh{}, render.ResourceLoadError(err, "load mesh")
	}
	return mesh, nil
}
