package registry

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
)

// Attribute names one attribute of a vertex. Recognized names are position, color and uv.
type Attribute = pipeline.Attribute

// Mesh is the immutable geometry of an object.
type Mesh struct {
	Vertices    []float32
	Stride      uint32
	Attributes  []Attribute
	VertexCount uint32
}

// ObjectDescriptor is the host's request to create or replace an object.
type ObjectDescriptor struct {
	ID         string
	Vertices   []float32
	Stride     uint32
	Attributes []Attribute

	// TextureURL is the texture location; empty binds the dummy texture.
	TextureURL string
}

// newMesh validates the descriptor's geometry and derives the vertex count.
//
// Parameters:
//   - desc: the object descriptor
//
// Returns:
//   - Mesh: the validated mesh
//   - error: ErrInvalidMesh (wrapped) describing the first problem found
func newMesh(desc ObjectDescriptor) (Mesh, error) {
	if desc.ID == "" {
		return Mesh{}, fmt.Errorf("%w: empty object id", common.ErrInvalidMesh)
	}
	if desc.Stride == 0 || desc.Stride%4 != 0 {
		return Mesh{}, fmt.Errorf("%w: stride %d is not a positive multiple of 4", common.ErrInvalidMesh, desc.Stride)
	}
	floats := int(desc.Stride / 4)
	if len(desc.Vertices) == 0 || len(desc.Vertices)%floats != 0 {
		return Mesh{}, fmt.Errorf("%w: %d floats do not form whole vertices of %d floats", common.ErrInvalidMesh, len(desc.Vertices), floats)
	}

	hasPosition := false
	for _, a := range desc.Attributes {
		if !a.Format.Valid() {
			return Mesh{}, fmt.Errorf("%w: attribute %q has unknown format %q", common.ErrInvalidMesh, a.Name, a.Format)
		}
		if uint64(a.Offset)+a.Format.Size() > uint64(desc.Stride) {
			return Mesh{}, fmt.Errorf("%w: attribute %q at offset %d overruns stride %d", common.ErrInvalidMesh, a.Name, a.Offset, desc.Stride)
		}
		if a.Name == "position" {
			hasPosition = true
		}
	}
	if !hasPosition {
		return Mesh{}, fmt.Errorf("%w: no position attribute", common.ErrInvalidMesh)
	}

	return Mesh{
		Vertices:    append([]float32(nil), desc.Vertices...),
		Stride:      desc.Stride,
		Attributes:  append([]Attribute(nil), desc.Attributes...),
		VertexCount: uint32(len(desc.Vertices) / floats),
	}, nil
}
