package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
)

// Attribute names one attribute of a mesh vertex: where it sits inside the vertex and how it
// is encoded. Only attributes whose Name is a recognized shader input reach the pipeline.
type Attribute struct {
	Name   string
	Offset uint32
	Format gpu.VertexFormat
}

// Signature structurally identifies a vertex layout: the stride plus the ordered attribute
// list. Two meshes with equal signatures are drawn by the same pipeline.
type Signature string

// NewSignature computes the signature of a vertex layout.
//
// Parameters:
//   - stride: the vertex stride in bytes
//   - attributes: the mesh attributes in declaration order
//
// Returns:
//   - Signature: the layout signature
func NewSignature(stride uint32, attributes []Attribute) Signature {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", stride)
	for _, a := range attributes {
		fmt.Fprintf(&sb, "|%s@%d:%s", a.Name, a.Offset, a.Format)
	}
	return Signature(sb.String())
}

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	signature    Signature
	vertexLayout gpu.VertexBufferLayout
	program      shader.Shader
	handle       gpu.RenderPipeline
	epoch        uint64

	releaseOnce sync.Once
}

// Pipeline is a built render pipeline together with the layout and program it was built from.
type Pipeline interface {
	// Signature returns the vertex layout signature the pipeline was built for.
	Signature() Signature

	// VertexLayout returns the vertex buffer layout bound at slot 0.
	//
	// Returns:
	//   - gpu.VertexBufferLayout: the stride and the routed attributes
	VertexLayout() gpu.VertexBufferLayout

	// BindGroupLayout returns the bound-resource layout of group 0.
	//
	// Returns:
	//   - []gpu.BindGroupLayoutEntry: the layout entries sorted by binding
	BindGroupLayout() []gpu.BindGroupLayoutEntry

	// Shader returns the generated program the pipeline was compiled from.
	Shader() shader.Shader

	// Handle returns the backend pipeline handle.
	Handle() gpu.RenderPipeline

	// Epoch returns the session epoch the pipeline was created under.
	Epoch() uint64

	// Release frees the backend pipeline. Safe to call more than once.
	Release()
}

var _ Pipeline = &pipeline{}

func (p *pipeline) Signature() Signature {
	return p.signature
}

func (p *pipeline) VertexLayout() gpu.VertexBufferLayout {
	return p.vertexLayout
}

func (p *pipeline) BindGroupLayout() []gpu.BindGroupLayoutEntry {
	return p.program.BindGroupLayout()
}

func (p *pipeline) Shader() shader.Shader {
	return p.program
}

func (p *pipeline) Handle() gpu.RenderPipeline {
	return p.handle
}

func (p *pipeline) Epoch() uint64 {
	return p.epoch
}

func (p *pipeline) Release() {
	p.releaseOnce.Do(func() {
		if p.handle != nil {
			p.handle.Release()
		}
	})
}

// vertexLayout routes the recognized attributes to their shader locations and derives the
// feature set the program must be generated for. Unrecognized names are dropped, as are
// repeated names after the first.
//
// Parameters:
//   - stride: the vertex stride in bytes
//   - attributes: the mesh attributes
//
// Returns:
//   - gpu.VertexBufferLayout: the routed layout
//   - shader.Features: the inputs present in the layout
func vertexLayout(stride uint32, attributes []Attribute) (gpu.VertexBufferLayout, shader.Features) {
	layout := gpu.VertexBufferLayout{ArrayStride: uint64(stride)}
	var features shader.Features
	seen := make(map[uint32]bool, len(attributes))

	for _, a := range attributes {
		loc, ok := shader.AttributeLocations[a.Name]
		if !ok || seen[loc] {
			continue
		}
		seen[loc] = true

		layout.Attributes = append(layout.Attributes, gpu.VertexAttribute{
			Format:         a.Format,
			Offset:         uint64(a.Offset),
			ShaderLocation: loc,
		})
		switch loc {
		case shader.LocationPosition:
			features.Position = a.Format
		case shader.LocationColor:
			features.Color = a.Format
		case shader.LocationUV:
			features.UV = a.Format
		}
	}
	return layout, features
}
