// Package gpu describes the slice of a WebGPU-style graphics API that the engine core uses.
// Concrete backends (see engine/backend) implement Backend; the core only ever holds the
// opaque handle interfaces declared here, which keeps resource management testable without a device.
package gpu

import "fmt"

// VertexFormat names the numeric format of a single vertex attribute.
type VertexFormat string

const (
	// VertexFormatFloat32x2 is two 32-bit floats (8 bytes).
	VertexFormatFloat32x2 VertexFormat = "float32x2"

	// VertexFormatFloat32x3 is three 32-bit floats (12 bytes).
	VertexFormatFloat32x3 VertexFormat = "float32x3"

	// VertexFormatFloat32x4 is four 32-bit floats (16 bytes).
	VertexFormatFloat32x4 VertexFormat = "float32x4"
)

// Size returns the byte size of the format. Unknown formats report 0.
//
// Returns:
//   - uint64: the size of one attribute of this format in bytes
func (f VertexFormat) Size() uint64 {
	switch f {
	case VertexFormatFloat32x2:
		return 8
	case VertexFormatFloat32x3:
		return 12
	case VertexFormatFloat32x4:
		return 16
	default:
		return 0
	}
}

// Components returns the number of float components in the format, or 0 if unknown.
func (f VertexFormat) Components() int {
	return int(f.Size() / 4)
}

// Valid reports whether the format is one the engine understands.
func (f VertexFormat) Valid() bool {
	return f.Size() > 0
}

// ParseVertexFormat converts a host-supplied format name into a VertexFormat.
//
// Parameters:
//   - s: the format name (float32x2, float32x3 or float32x4)
//
// Returns:
//   - VertexFormat: the parsed format
//   - error: an error if the name is not recognized
func ParseVertexFormat(s string) (VertexFormat, error) {
	f := VertexFormat(s)
	if !f.Valid() {
		return "", fmt.Errorf("unknown vertex format %q", s)
	}
	return f, nil
}

// TextureFormat identifies the pixel format of a texture.
type TextureFormat int

const (
	// TextureFormatUndefined is the zero value; backends pick their preferred format.
	TextureFormatUndefined TextureFormat = iota

	// TextureFormatRGBA8Unorm stores 8-bit RGBA channels, linear.
	TextureFormatRGBA8Unorm

	// TextureFormatRGBA8UnormSrgb stores 8-bit RGBA channels, sRGB encoded.
	TextureFormatRGBA8UnormSrgb

	// TextureFormatBGRA8Unorm stores 8-bit BGRA channels, linear. Common for presentation surfaces.
	TextureFormatBGRA8Unorm

	// TextureFormatBGRA8UnormSrgb stores 8-bit BGRA channels, sRGB encoded.
	TextureFormatBGRA8UnormSrgb
)

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8Unorm:
		return "rgba8unorm"
	case TextureFormatRGBA8UnormSrgb:
		return "rgba8unorm-srgb"
	case TextureFormatBGRA8Unorm:
		return "bgra8unorm"
	case TextureFormatBGRA8UnormSrgb:
		return "bgra8unorm-srgb"
	default:
		return "undefined"
	}
}

// BufferUsage is a bit set describing how a buffer will be used.
type BufferUsage uint32

const (
	// BufferUsageVertex allows binding the buffer as a vertex buffer.
	BufferUsageVertex BufferUsage = 1 << iota

	// BufferUsageUniform allows binding the buffer as a uniform buffer.
	BufferUsageUniform

	// BufferUsageCopyDst allows queue writes into the buffer.
	BufferUsageCopyDst
)

// TextureUsage is a bit set describing how a texture will be used.
type TextureUsage uint32

const (
	// TextureUsageTextureBinding allows sampling the texture from a shader.
	TextureUsageTextureBinding TextureUsage = 1 << iota

	// TextureUsageCopyDst allows queue writes into the texture.
	TextureUsageCopyDst

	// TextureUsageRenderAttachment allows the texture to be a render target.
	TextureUsageRenderAttachment
)

// BindingType identifies the kind of resource bound at a bind group layout entry.
type BindingType int

const (
	// BindingTypeUniformBuffer binds a uniform buffer.
	BindingTypeUniformBuffer BindingType = iota

	// BindingTypeTexture binds a 2D float texture view.
	BindingTypeTexture

	// BindingTypeSampler binds a filtering sampler.
	BindingTypeSampler
)

func (t BindingType) String() string {
	switch t {
	case BindingTypeUniformBuffer:
		return "uniform"
	case BindingTypeTexture:
		return "texture"
	case BindingTypeSampler:
		return "sampler"
	default:
		return fmt.Sprintf("BindingType(%d)", int(t))
	}
}

// ShaderStage is a bit set of shader stages a binding is visible to.
type ShaderStage uint32

const (
	// ShaderStageVertex makes a binding visible to the vertex stage.
	ShaderStageVertex ShaderStage = 1 << iota

	// ShaderStageFragment makes a binding visible to the fragment stage.
	ShaderStageFragment
)

// AddressMode controls how texture coordinates outside [0, 1] are resolved.
type AddressMode int

const (
	// AddressModeUndefined lets the backend pick its default (repeat).
	AddressModeUndefined AddressMode = iota
	// AddressModeClampToEdge clamps coordinates to the edge texel.
	AddressModeClampToEdge
	// AddressModeRepeat wraps coordinates.
	AddressModeRepeat
	// AddressModeMirrorRepeat wraps coordinates, mirroring every other repeat.
	AddressModeMirrorRepeat
)

// FilterMode controls texel filtering.
type FilterMode int

const (
	// FilterModeUndefined lets the backend pick its default (linear).
	FilterModeUndefined FilterMode = iota
	// FilterModeNearest selects the nearest texel.
	FilterModeNearest
	// FilterModeLinear interpolates between texels.
	FilterModeLinear
)

// Color is an RGBA color with float64 channels, as used for render pass clear values.
type Color struct {
	R, G, B, A float64
}

// VertexAttribute places one attribute inside a vertex and routes it to a shader input location.
type VertexAttribute struct {
	Format         VertexFormat
	Offset         uint64
	ShaderLocation uint32
}

// VertexBufferLayout describes how vertices are laid out in a single vertex buffer.
type VertexBufferLayout struct {
	ArrayStride uint64
	Attributes  []VertexAttribute
}

// BindGroupLayoutEntry describes one binding of a bind group layout.
type BindGroupLayoutEntry struct {
	Binding    uint32
	Type       BindingType
	Visibility ShaderStage
	// MinBindingSize is only meaningful for buffer bindings.
	MinBindingSize uint64
}

// BufferDescriptor describes a buffer to create. When Contents is non-empty the buffer is
// created mapped, Contents is copied in and the buffer is unmapped before it is returned.
type BufferDescriptor struct {
	Label    string
	Size     uint64
	Usage    BufferUsage
	Contents []byte
}

// TextureDescriptor describes a 2D texture to create and the RGBA pixels to upload into it.
type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format TextureFormat
	Usage  TextureUsage
	// Pixels holds Width*Height*4 bytes of tightly packed RGBA data.
	Pixels []byte
}

// SamplerDescriptor describes a sampler. It is comparable so it can key a cache.
type SamplerDescriptor struct {
	Label                                    string
	AddressModeU, AddressModeV, AddressModeW AddressMode
	MagFilter, MinFilter                     FilterMode
	MaxAnisotropy                            uint16
}

// RenderPipelineDescriptor describes a render pipeline drawing a single vertex buffer
// with a single bind group into the presentation surface.
type RenderPipelineDescriptor struct {
	Label              string
	ShaderSource       string
	VertexEntryPoint   string
	FragmentEntryPoint string
	VertexLayout       VertexBufferLayout
	BindGroupLayout    []BindGroupLayoutEntry
}

// BindGroupEntry binds one resource; exactly one of Buffer, Texture or Sampler is set.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Texture Texture
	Sampler Sampler
}
