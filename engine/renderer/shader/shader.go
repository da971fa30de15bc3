package shader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
)

// ShaderType identifies a programmable stage.
type ShaderType int

const (
	ShaderTypeVertex ShaderType = iota
	ShaderTypeFragment
)

// Shader is the passthrough program specialized for one vertex feature set, together with the
// layout information reflected from its source.
type Shader interface {
	// Key returns a label unique to the feature set.
	Key() string

	// Source returns the expanded WGSL source.
	Source() string

	// Features returns the vertex feature set the program was generated for.
	Features() Features

	// EntryPoint returns the entry point function name for the stage.
	//
	// Parameters:
	//   - shaderType: the stage
	//
	// Returns:
	//   - string: the entry point name
	EntryPoint(shaderType ShaderType) string

	// BindGroupLayout returns the entries of bind group 0 sorted by binding.
	//
	// Returns:
	//   - []gpu.BindGroupLayoutEntry: the reflected layout entries
	BindGroupLayout() []gpu.BindGroupLayoutEntry

	// Binding resolves the binding index declared for a role (a struct type for generated
	// declarations, a binding role for provider annotations).
	//
	// Parameters:
	//   - role: the role to resolve
	//
	// Returns:
	//   - uint32: the binding index
	//   - bool: false if no declaration has that role
	Binding(role AnnotationArg) (uint32, bool)

	// BindingVarName returns the WGSL variable name declared at a group 0 binding.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - string: the variable name, or empty if nothing is bound there
	BindingVarName(binding int) string

	// VertexInputs returns the program's vertex inputs sorted by location.
	//
	// Returns:
	//   - []VertexInput: the reflected vertex inputs
	VertexInputs() []VertexInput

	// Declarations returns the group and provider annotations found while pre-processing.
	Declarations() []Annotation
}

type shader struct {
	key             string
	source          string
	features        Features
	entryPoints     map[ShaderType]string
	bindGroupLayout []gpu.BindGroupLayoutEntry
	bindingVarNames map[int]string
	vertexInputs    []VertexInput
	declarations    []Annotation
}

var _ Shader = &shader{}

// NewShader generates and reflects the passthrough program for a feature set.
//
// Parameters:
//   - features: the vertex inputs the mesh supplies; Position is required
//
// Returns:
//   - Shader: the generated program
//   - error: an error if the feature set cannot be drawn or the source fails reflection
func NewShader(features Features) (Shader, error) {
	if !features.Position.Valid() {
		return nil, fmt.Errorf("shader: a position input is required")
	}

	pp := NewPreProcessor(features)
	source, err := pp.Process(passthroughSource)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to pre-process passthrough source: %w", err)
	}

	s := &shader{
		key:      "passthrough_" + features.Key(),
		source:   source,
		features: features,
		entryPoints: map[ShaderType]string{
			ShaderTypeVertex:   parseEntryPoint(source, ShaderTypeVertex),
			ShaderTypeFragment: parseEntryPoint(source, ShaderTypeFragment),
		},
		vertexInputs: parseVertexInputs(source),
		declarations: append([]Annotation(nil), pp.Declarations()...),
	}
	for stage, name := range s.entryPoints {
		if name == "" {
			return nil, fmt.Errorf("shader: no entry point for stage %d", stage)
		}
	}

	groups, varNames := parseBindGroupLayouts(source)
	for g := range groups {
		if g != 0 {
			return nil, fmt.Errorf("shader: bind group %d declared; only group 0 is supported", g)
		}
	}
	s.bindGroupLayout = groups[0]
	s.bindingVarNames = varNames[0]

	return s, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) Features() Features {
	return s.features
}

func (s *shader) EntryPoint(shaderType ShaderType) string {
	return s.entryPoints[shaderType]
}

func (s *shader) BindGroupLayout() []gpu.BindGroupLayoutEntry {
	return s.bindGroupLayout
}

func (s *shader) Binding(role AnnotationArg) (uint32, bool) {
	for _, d := range s.declarations {
		if d.Group == nil || *d.Group != 0 || d.Role() != role {
			continue
		}
		return uint32(*d.Binding), true
	}
	return 0, false
}

func (s *shader) BindingVarName(binding int) string {
	return s.bindingVarNames[binding]
}

func (s *shader) VertexInputs() []VertexInput {
	return s.vertexInputs
}

func (s *shader) Declarations() []Annotation {
	return s.declarations
}
