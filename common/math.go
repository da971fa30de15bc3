package common

import (
	"unsafe"
)

// MatrixSize is the size in bytes of a 4x4 float32 matrix.
const MatrixSize = 16 * 4

// UniformAlignment is the alignment WebGPU requires for uniform buffer bindings and offsets.
const UniformAlignment = 256

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
// The matrix is stored in column-major order.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// IdentityMatrix returns a new 4x4 identity matrix in column-major order.
//
// Returns:
//   - [16]float32: the identity matrix
func IdentityMatrix() [16]float32 {
	var m [16]float32
	Identity(m[:])
	return m
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// BytesToFloat32s copies a little-endian byte slice into a new float32 slice.
// Trailing bytes that do not fill a whole float are ignored.
//
// Parameters:
//   - data: the source bytes
//
// Returns:
//   - []float32: the decoded floats
func BytesToFloat32s(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	copy(SliceToBytes(out), data)
	return out
}
