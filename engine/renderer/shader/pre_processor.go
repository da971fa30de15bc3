// pre_processor.go implements the Oxy WGSL pre-processor. It replaces @oxy: annotations
// with registered struct sources or generated declarations and collects the declarations
// so bind groups can be wired by role.
package shader

import (
	"fmt"
	"strings"
)

// registryEntry pairs an injectable WGSL source with the type name it declares.
type registryEntry struct {
	// Source is the WGSL text injected by @oxy:include.
	Source string

	// Type is the WGSL type name emitted in @oxy:group declarations.
	Type string
}

type preProcessor struct {
	structRegistry       map[AnnotationArg]registryEntry
	addressSpaceRegistry map[AnnotationArg]string

	// declarations is reset at the start of every Process call.
	declarations []Annotation
}

// PreProcessor expands @oxy: annotations in WGSL source.
type PreProcessor interface {
	// Process replaces include annotations with registered struct sources and group
	// annotations with @group/@binding declarations. Provider annotations are removed and
	// recorded. The declarations list is reset on every call.
	//
	// Parameters:
	//   - source: WGSL source containing annotations
	//
	// Returns:
	//   - string: the expanded WGSL source
	//   - error: an error if an annotation is malformed or references an unregistered struct
	Process(source string) (string, error)

	// Declarations returns the group and provider annotations collected by the last Process
	// call, in source order.
	//
	// Returns:
	//   - []Annotation: the collected declarations
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor whose vertex struct is generated for the given
// feature set.
//
// Parameters:
//   - features: the vertex attribute formats present in the mesh
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor
func NewPreProcessor(features Features) PreProcessor {
	return &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			annotationArgVertex:         {Source: vertexInputSource(features), Type: "VertexInput"},
			AnnotationArgObjectUniforms: {Source: GPUObjectUniformSource, Type: "ObjectUniforms"},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform: "var<uniform>",
		},
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", i+1, a.Args[0])
			}
			out = append(out, entry.Source)
		case AnnotationTypeBindingGroup:
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			entry, ok := p.structRegistry[a.Args[2]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:group struct %q", i+1, a.Args[2])
			}
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, a.Args[1], entry.Type))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeProvider:
			p.declarations = append(p.declarations, *a)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
