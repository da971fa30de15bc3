package shader

import "github.com/Carmen-Shannon/oxy-core/engine/gpu"

// vertexFormatInfo holds the vertex format for a WGSL vertex input type
type vertexFormatInfo struct {
	format gpu.VertexFormat
	size   uint64
}

// wgslTypeLayout holds the byte size and alignment for a WGSL type per the WGSL specification.
// Used to compute MinBindingSize for buffer bindings.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}

// VertexInput is one @location field of the program's vertex input struct.
type VertexInput struct {
	Name     string
	Location uint32
	Format   gpu.VertexFormat
}
