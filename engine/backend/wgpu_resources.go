package backend

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuBuffer struct {
	label  string
	size   uint64
	handle *wgpu.Buffer
	once   sync.Once
}

var _ gpu.Buffer = &wgpuBuffer{}

func (b *wgpuBuffer) Label() string { return b.label }
func (b *wgpuBuffer) Size() uint64  { return b.size }

func (b *wgpuBuffer) Release() {
	b.once.Do(func() {
		b.handle.Release()
	})
}

type wgpuTexture struct {
	width  uint32
	height uint32
	handle *wgpu.Texture
	view   *wgpu.TextureView
	once   sync.Once
}

var _ gpu.Texture = &wgpuTexture{}

func (t *wgpuTexture) Width() uint32  { return t.width }
func (t *wgpuTexture) Height() uint32 { return t.height }

func (t *wgpuTexture) Release() {
	t.once.Do(func() {
		t.view.Release()
		t.handle.Release()
	})
}

type wgpuSampler struct {
	handle *wgpu.Sampler
	once   sync.Once
}

var _ gpu.Sampler = &wgpuSampler{}

func (s *wgpuSampler) Release() {
	s.once.Do(func() {
		s.handle.Release()
	})
}

// wgpuRenderPipeline owns the pipeline together with the layouts and shader module it was
// built from, so the bind group layout stays valid for CreateBindGroup.
type wgpuRenderPipeline struct {
	label           string
	handle          *wgpu.RenderPipeline
	layout          *wgpu.PipelineLayout
	bindGroupLayout *wgpu.BindGroupLayout
	module          *wgpu.ShaderModule
	once            sync.Once
}

var _ gpu.RenderPipeline = &wgpuRenderPipeline{}

func (p *wgpuRenderPipeline) Label() string { return p.label }

func (p *wgpuRenderPipeline) Release() {
	p.once.Do(func() {
		p.handle.Release()
		p.layout.Release()
		p.bindGroupLayout.Release()
		p.module.Release()
	})
}

type wgpuBindGroup struct {
	handle *wgpu.BindGroup
	once   sync.Once
}

var _ gpu.BindGroup = &wgpuBindGroup{}

func (g *wgpuBindGroup) Release() {
	g.once.Do(func() {
		g.handle.Release()
	})
}

func toWGPUVertexFormat(f gpu.VertexFormat) wgpu.VertexFormat {
	switch f {
	case gpu.VertexFormatFloat32x2:
		return wgpu.VertexFormatFloat32x2
	case gpu.VertexFormatFloat32x3:
		return wgpu.VertexFormatFloat32x3
	default:
		return wgpu.VertexFormatFloat32x4
	}
}

func toWGPUTextureFormat(f gpu.TextureFormat) wgpu.TextureFormat {
	switch f {
	case gpu.TextureFormatRGBA8UnormSrgb:
		return wgpu.TextureFormatRGBA8UnormSrgb
	case gpu.TextureFormatBGRA8Unorm:
		return wgpu.TextureFormatBGRA8Unorm
	case gpu.TextureFormatBGRA8UnormSrgb:
		return wgpu.TextureFormatBGRA8UnormSrgb
	default:
		return wgpu.TextureFormatRGBA8Unorm
	}
}

func fromWGPUTextureFormat(f wgpu.TextureFormat) gpu.TextureFormat {
	switch f {
	case wgpu.TextureFormatRGBA8Unorm:
		return gpu.TextureFormatRGBA8Unorm
	case wgpu.TextureFormatRGBA8UnormSrgb:
		return gpu.TextureFormatRGBA8UnormSrgb
	case wgpu.TextureFormatBGRA8Unorm:
		return gpu.TextureFormatBGRA8Unorm
	case wgpu.TextureFormatBGRA8UnormSrgb:
		return gpu.TextureFormatBGRA8UnormSrgb
	default:
		return gpu.TextureFormatUndefined
	}
}

func toWGPUBufferUsage(u gpu.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&gpu.BufferUsageVertex != 0 {
		out |= wgpu.BufferUsageVertex
	}
	if u&gpu.BufferUsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	if u&gpu.BufferUsageCopyDst != 0 {
		out |= wgpu.BufferUsageCopyDst
	}
	return out
}

func toWGPUTextureUsage(u gpu.TextureUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u&gpu.TextureUsageTextureBinding != 0 {
		out |= wgpu.TextureUsageTextureBinding
	}
	if u&gpu.TextureUsageCopyDst != 0 {
		out |= wgpu.TextureUsageCopyDst
	}
	if u&gpu.TextureUsageRenderAttachment != 0 {
		out |= wgpu.TextureUsageRenderAttachment
	}
	return out
}

func toWGPUShaderStage(s gpu.ShaderStage) wgpu.ShaderStage {
	out := wgpu.ShaderStageNone
	if s&gpu.ShaderStageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if s&gpu.ShaderStageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	return out
}

func toWGPUAddressMode(m gpu.AddressMode) wgpu.AddressMode {
	switch m {
	case gpu.AddressModeClampToEdge:
		return wgpu.AddressModeClampToEdge
	case gpu.AddressModeMirrorRepeat:
		return wgpu.AddressModeMirrorRepeat
	default:
		return wgpu.AddressModeRepeat
	}
}

func toWGPUFilterMode(m gpu.FilterMode) wgpu.FilterMode {
	if m == gpu.FilterModeNearest {
		return wgpu.FilterModeNearest
	}
	return wgpu.FilterModeLinear
}

// toWGPUBindGroupLayoutEntry maps an engine layout entry onto the wgpu entry, setting only
// the sub-layout matching its binding type.
func toWGPUBindGroupLayoutEntry(e gpu.BindGroupLayoutEntry) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    e.Binding,
		Visibility: toWGPUShaderStage(e.Visibility),
	}
	switch e.Type {
	case gpu.BindingTypeUniformBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		entry.Buffer.MinBindingSize = e.MinBindingSize
	case gpu.BindingTypeTexture:
		entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
		entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
	case gpu.BindingTypeSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	}
	return entry
}

func toWGPUVertexBufferLayout(l gpu.VertexBufferLayout) wgpu.VertexBufferLayout {
	attrs := make([]wgpu.VertexAttribute, 0, len(l.Attributes))
	for _, a := range l.Attributes {
		attrs = append(attrs, wgpu.VertexAttribute{
			Format:         toWGPUVertexFormat(a.Format),
			Offset:         a.Offset,
			ShaderLocation: a.ShaderLocation,
		})
	}
	return wgpu.VertexBufferLayout{
		ArrayStride: l.ArrayStride,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes:  attrs,
	}
}
