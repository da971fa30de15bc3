package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
)

// Vertex input locations of the passthrough program.
const (
	LocationPosition uint32 = 0
	LocationColor    uint32 = 1
	LocationUV       uint32 = 2
)

// AttributeLocations maps recognized mesh attribute names to their shader input location.
// Attributes with any other name are not routed to the shader.
var AttributeLocations = map[string]uint32{
	"position": LocationPosition,
	"color":    LocationColor,
	"uv":       LocationUV,
}

// Features describes which vertex inputs a mesh supplies and in which format. A zero
// format means the input is absent.
type Features struct {
	Position gpu.VertexFormat
	Color    gpu.VertexFormat
	UV       gpu.VertexFormat
}

// Key returns a short stable identifier for the feature set, used in labels.
func (f Features) Key() string {
	return fmt.Sprintf("p%d_c%d_u%d", f.Position.Components(), f.Color.Components(), f.UV.Components())
}

func wgslVectorType(f gpu.VertexFormat) string {
	return fmt.Sprintf("vec%d<f32>", f.Components())
}

// vertexInputSource generates the VertexInput struct for the feature set together with
// accessors that widen every input to what the passthrough program consumes. Missing color
// reads as opaque white and missing uv as (0, 0).
func vertexInputSource(f Features) string {
	var sb strings.Builder

	sb.WriteString("struct VertexInput {\n")
	if f.Position.Valid() {
		fmt.Fprintf(&sb, "    @location(%d) position: %s,\n", LocationPosition, wgslVectorType(f.Position))
	}
	if f.Color.Valid() {
		fmt.Fprintf(&sb, "    @location(%d) color: %s,\n", LocationColor, wgslVectorType(f.Color))
	}
	if f.UV.Valid() {
		fmt.Fprintf(&sb, "    @location(%d) uv: %s,\n", LocationUV, wgslVectorType(f.UV))
	}
	sb.WriteString("};\n\n")

	sb.WriteString("fn vertex_position(v: VertexInput) -> vec4<f32> {\n")
	switch f.Position.Components() {
	case 2:
		sb.WriteString("    return vec4<f32>(v.position, 0.0, 1.0);\n")
	case 3:
		sb.WriteString("    return vec4<f32>(v.position, 1.0);\n")
	case 4:
		sb.WriteString("    return v.position;\n")
	default:
		sb.WriteString("    return vec4<f32>(0.0, 0.0, 0.0, 1.0);\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("fn vertex_color(v: VertexInput) -> vec4<f32> {\n")
	switch f.Color.Components() {
	case 2:
		sb.WriteString("    return vec4<f32>(v.color, 0.0, 1.0);\n")
	case 3:
		sb.WriteString("    return vec4<f32>(v.color, 1.0);\n")
	case 4:
		sb.WriteString("    return v.color;\n")
	default:
		sb.WriteString("    return vec4<f32>(1.0, 1.0, 1.0, 1.0);\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("fn vertex_uv(v: VertexInput) -> vec2<f32> {\n")
	switch f.UV.Components() {
	case 2:
		sb.WriteString("    return v.uv;\n")
	case 3, 4:
		sb.WriteString("    return v.uv.xy;\n")
	default:
		sb.WriteString("    return vec2<f32>(0.0, 0.0);\n")
	}
	sb.WriteString("}\n")

	return sb.String()
}
