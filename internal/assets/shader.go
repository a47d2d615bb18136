package assets

import (
	"embed"
	"encoding/binary"
	"io/fs"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/vkrender/internal/render"
)

//go:generate sh -c "for src in shaders/*.vert shaders/*.frag; do glslc $src -o $src.spv; done"

//go:embed shaders/*.spv
var builtinShaders embed.FS

// BuiltinShaders returns the compiled shaders shipped with the binary, named
// like "colored.vert.spv".
func BuiltinShaders() fs.FS {
	sub, err := fs.Sub(builtinShaders, "shaders")
	if err != nil {
		panic(err)
	}
	return sub
}

const spirvMagic = 0x07230203

// BytesToBytecode converts little-endian SPIR-V bytes into words.
func BytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return byteCode
}

// LoadShader reads a compiled SPIR-V module.
func LoadShader(fsys fs.FS, name string) ([]uint32, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, render.ResourceLoadError(err, "read shader")
	}
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, render.ResourceLoadError(
			errors.Newf("%s: size %d is not a whole number of words", name, len(data)),
			"read shader")
	}

	code := BytesToBytecode(data)
	if code[0] != spirvMagic {
		return nil, render.ResourceLoadError(
			errors.Newf("%s: bad magic 0x%08x", name, code[0]),
			"read shader")
	}
	return code, nil
}
