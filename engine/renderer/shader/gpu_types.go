package shader

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-core/common"
)

// GPUObjectUniformSource is the canonical WGSL definition of the ObjectUniforms struct.
// Matches GPUObjectUniform layout exactly (64 bytes).
//
//go:embed assets/object_uniforms.wgsl
var GPUObjectUniformSource string

//go:embed assets/passthrough.wgsl
var passthroughSource string

// ObjectUniformBufferSize is the size of every per-object uniform buffer: one matrix padded
// to the uniform binding alignment.
const ObjectUniformBufferSize = (common.MatrixSize + common.UniformAlignment - 1) / common.UniformAlignment * common.UniformAlignment

// GPUObjectUniform is the GPU representation of the per-object uniform block.
type GPUObjectUniform struct {
	Transform [16]float32 // offset 0: column-major model transform (mat4x4<f32>)
}

// NewGPUObjectUniform returns a uniform block holding the identity transform.
func NewGPUObjectUniform() GPUObjectUniform {
	return GPUObjectUniform{Transform: common.IdentityMatrix()}
}

// Size returns the size of the GPUObjectUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g *GPUObjectUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the uniform block into a little-endian byte buffer for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUObjectUniform) Marshal() []byte {
	buf := make([]byte, g.Size())
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Transform[i]))
	}
	return buf
}
