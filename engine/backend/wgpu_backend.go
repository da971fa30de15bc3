// Package backend implements gpu.Backend on top of github.com/cogentcore/webgpu.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// SurfaceSource is implemented by platform windows that can describe a native surface.
type SurfaceSource interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
}

type acquirer struct {
	source               SurfaceSource
	forceFallbackAdapter bool
	presentMode          PresentMode
	logger               *slog.Logger
}

var _ gpu.Acquirer = &acquirer{}

// NewAcquirer creates a gpu.Acquirer that requests a WebGPU adapter and device.
//
// Parameters:
//   - options: functional options to configure adapter selection and presentation
//
// Returns:
//   - gpu.Acquirer: the acquirer
func NewAcquirer(options ...AcquirerBuilderOption) gpu.Acquirer {
	a := &acquirer{
		presentMode: PresentModeVSync,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

func (a *acquirer) Acquire(ctx context.Context, lost gpu.LostFunc) (gpu.Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runtime.LockOSThread()

	logger := a.logger
	if logger == nil {
		logger = common.Logger()
	}

	b := &wgpuBackend{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: a.presentMode.wgpu(),
		logger:      logger,
	}

	if a.source != nil {
		desc := a.source.SurfaceDescriptor()
		if desc == nil {
			b.Release()
			return nil, errors.New("surface source has no native window")
		}
		b.surface = b.instance.CreateSurface(desc)
	}

	adapter, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: a.forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	b.adapter = adapter

	if err := ctx.Err(); err != nil {
		b.Release()
		return nil, err
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		DeviceLostCallback: func(reason wgpu.DeviceLostReason, message string) {
			// The callback can fire inside a queue call that holds b.mu, and the session's
			// invalidation hooks take the registry and renderer locks.
			go func() {
				// Release on our side also reports a loss; only surface unexpected ones.
				b.mu.Lock()
				releasing := b.releasing
				b.mu.Unlock()
				if releasing || lost == nil {
					return
				}
				lost(fmt.Sprintf("%v: %s", reason, message))
			}()
		},
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	b.device = device
	b.queue = device.GetQueue()

	logger.Debug("webgpu device acquired", "fallback", a.forceFallbackAdapter)
	return b, nil
}

type wgpuBackend struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat *wgpu.TextureFormat
	presentMode   wgpu.PresentMode
	logger        *slog.Logger

	// Frame state between BeginFrame and Present.
	frameEncoder *wgpu.CommandEncoder
	framePass    *wgpu.RenderPassEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView

	releasing bool
}

var _ gpu.Backend = &wgpuBackend{}

func (b *wgpuBackend) SurfaceFormat() (gpu.TextureFormat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surfaceFormat == nil {
		return gpu.TextureFormatUndefined, fmt.Errorf("webgpu: %w", common.ErrSurfaceNotConfigured)
	}
	return fromWGPUTextureFormat(*b.surfaceFormat), nil
}

func (b *wgpuBackend) ConfigureSurface(surface gpu.Surface) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if surface == nil {
		return errors.New("nil surface")
	}
	if b.surface == nil {
		src, ok := surface.(SurfaceSource)
		if !ok {
			return fmt.Errorf("surface %T cannot provide a native surface descriptor", surface)
		}
		desc := src.SurfaceDescriptor()
		if desc == nil {
			return errors.New("surface has no native window")
		}
		b.surface = b.instance.CreateSurface(desc)
	}
	if surface.Width() <= 0 || surface.Height() <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", surface.Width(), surface.Height())
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 || len(capabilities.AlphaModes) == 0 {
		return errors.New("surface is not supported by the adapter")
	}
	format := capabilities.Formats[0]
	b.surfaceFormat = &format

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(surface.Width()),
		Height:      uint32(surface.Height()),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	b.logger.Debug("surface configured", "width", surface.Width(), "height", surface.Height(), "format", fromWGPUTextureFormat(format))

	return nil
}

func (b *wgpuBackend) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		buf *wgpu.Buffer
		err error
	)
	if len(desc.Contents) > 0 {
		// CreateBufferInit maps the buffer at creation, copies the contents and unmaps.
		contents := desc.Contents
		if uint64(len(contents)) < desc.Size {
			contents = make([]byte, desc.Size)
			copy(contents, desc.Contents)
		}
		buf, err = b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label,
			Contents: contents,
			Usage:    toWGPUBufferUsage(desc.Usage),
		})
	} else {
		buf, err = b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: desc.Label,
			Size:  desc.Size,
			Usage: toWGPUBufferUsage(desc.Usage),
		})
	}
	if err != nil {
		return nil, err
	}

	return &wgpuBuffer{label: desc.Label, size: desc.Size, handle: buf}, nil
}

func (b *wgpuBackend) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	wb, ok := buf.(*wgpuBuffer)
	if !ok {
		return fmt.Errorf("buffer %T was not created by this backend", buf)
	}
	if offset+uint64(len(data)) > wb.size {
		return fmt.Errorf("write of %d bytes at offset %d overflows %q (%d bytes)", len(data), offset, wb.label, wb.size)
	}
	b.queue.WriteBuffer(wb.handle, offset, data)

	return nil
}

func (b *wgpuBackend) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if want := int(desc.Width * desc.Height * 4); len(desc.Pixels) != want {
		return nil, fmt.Errorf("texture %q expects %d pixel bytes, got %d", desc.Label, want, len(desc.Pixels))
	}

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.Label,
		Usage:     toWGPUTextureUsage(desc.Usage),
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        toWGPUTextureFormat(desc.Format),
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, err
	}

	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		desc.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  desc.Width * 4,
			RowsPerImage: desc.Height,
		},
		&wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
	)

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}

	return &wgpuTexture{width: desc.Width, height: desc.Height, handle: tex, view: view}, nil
}

func (b *wgpuBackend) CreateSampler(desc gpu.SamplerDescriptor) (gpu.Sampler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  toWGPUAddressMode(desc.AddressModeU),
		AddressModeV:  toWGPUAddressMode(desc.AddressModeV),
		AddressModeW:  toWGPUAddressMode(desc.AddressModeW),
		MagFilter:     toWGPUFilterMode(desc.MagFilter),
		MinFilter:     toWGPUFilterMode(desc.MinFilter),
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMinClamp:   0.0,
		LodMaxClamp:   32.0,
		MaxAnisotropy: common.Coalesce(desc.MaxAnisotropy, 1),
	})
	if err != nil {
		return nil, err
	}

	return &wgpuSampler{handle: samp}, nil
}

func (b *wgpuBackend) CreateRenderPipeline(desc gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surfaceFormat == nil {
		return nil, fmt.Errorf("webgpu: %w", common.ErrSurfaceNotConfigured)
	}

	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.ShaderSource,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader module: %w", err)
	}

	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(desc.BindGroupLayout))
	for _, e := range desc.BindGroupLayout {
		entries = append(entries, toWGPUBindGroupLayoutEntry(e))
	}
	bindGroupLayout, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label + " Bind Group Layout",
		Entries: entries,
	})
	if err != nil {
		module.Release()
		return nil, fmt.Errorf("failed to create bind group layout for group 0: %w", err)
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindGroupLayout},
	})
	if err != nil {
		bindGroupLayout.Release()
		module.Release()
		return nil, err
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.VertexEntryPoint,
			Buffers:    []wgpu.VertexBufferLayout{toWGPUVertexBufferLayout(desc.VertexLayout)},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntryPoint,
			Targets: []wgpu.ColorTargetState{
				{
					Format:    *b.surfaceFormat,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		pipelineLayout.Release()
		bindGroupLayout.Release()
		module.Release()
		return nil, err
	}

	return &wgpuRenderPipeline{
		label:           desc.Label,
		handle:          created,
		layout:          pipelineLayout,
		bindGroupLayout: bindGroupLayout,
		module:          module,
	}, nil
}

func (b *wgpuBackend) CreateBindGroup(label string, pipeline gpu.RenderPipeline, entries []gpu.BindGroupEntry) (gpu.BindGroup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := pipeline.(*wgpuRenderPipeline)
	if !ok {
		return nil, fmt.Errorf("pipeline %T was not created by this backend", pipeline)
	}

	bindGroupEntries := make([]wgpu.BindGroupEntry, len(entries))
	for i, entry := range entries {
		switch {
		case entry.Buffer != nil:
			buf, ok := entry.Buffer.(*wgpuBuffer)
			if !ok {
				return nil, fmt.Errorf("binding %d: buffer %T was not created by this backend", entry.Binding, entry.Buffer)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Buffer:  buf.handle,
				Offset:  0,
				Size:    wgpu.WholeSize,
			}
		case entry.Texture != nil:
			tex, ok := entry.Texture.(*wgpuTexture)
			if !ok {
				return nil, fmt.Errorf("binding %d: texture %T was not created by this backend", entry.Binding, entry.Texture)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding:     entry.Binding,
				TextureView: tex.view,
			}
		case entry.Sampler != nil:
			samp, ok := entry.Sampler.(*wgpuSampler)
			if !ok {
				return nil, fmt.Errorf("binding %d: sampler %T was not created by this backend", entry.Binding, entry.Sampler)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Sampler: samp.handle,
			}
		default:
			return nil, fmt.Errorf("binding %d has no resource", entry.Binding)
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  p.bindGroupLayout,
		Entries: bindGroupEntries,
	})
	if err != nil {
		return nil, err
	}

	return &wgpuBindGroup{handle: bindGroup}, nil
}

func (b *wgpuBackend) BeginFrame(clear gpu.Color) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surfaceFormat == nil {
		return fmt.Errorf("webgpu: %w", common.ErrSurfaceNotConfigured)
	}
	// A held surface texture means the previous frame was never presented; acquiring
	// another one would fail validation.
	if b.frameSurface != nil {
		return errors.New("previous frame surface not yet presented")
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return err
	}

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:    view,
				LoadOp:  wgpu.LoadOpClear,
				StoreOp: wgpu.StoreOpStore,
				ClearValue: wgpu.Color{
					R: clear.R, G: clear.G, B: clear.B, A: clear.A,
				},
			},
		},
	})
	pass.SetViewport(0, 0, float32(surfaceTexture.GetWidth()), float32(surfaceTexture.GetHeight()), 0, 1)

	b.frameEncoder = encoder
	b.framePass = pass
	b.frameSurface = surfaceTexture
	b.frameView = view

	return nil
}

func (b *wgpuBackend) Draw(pipeline gpu.RenderPipeline, bindGroup gpu.BindGroup, vertexBuffer gpu.Buffer, vertexCount, instanceCount uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass == nil {
		return errors.New("draw called outside of a frame")
	}
	p, ok := pipeline.(*wgpuRenderPipeline)
	if !ok {
		return fmt.Errorf("pipeline %T was not created by this backend", pipeline)
	}
	g, ok := bindGroup.(*wgpuBindGroup)
	if !ok {
		return fmt.Errorf("bind group %T was not created by this backend", bindGroup)
	}
	vb, ok := vertexBuffer.(*wgpuBuffer)
	if !ok {
		return fmt.Errorf("buffer %T was not created by this backend", vertexBuffer)
	}

	b.framePass.SetPipeline(p.handle)
	b.framePass.SetBindGroup(0, g.handle, nil)
	b.framePass.SetVertexBuffer(0, vb.handle, 0, wgpu.WholeSize)
	b.framePass.Draw(vertexCount, instanceCount, 0, 0)

	return nil
}

func (b *wgpuBackend) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass == nil {
		return errors.New("no frame in progress")
	}
	b.framePass.End()
	b.framePass.Release()
	b.framePass = nil

	commandBuffer, err := b.frameEncoder.Finish(nil)
	if err != nil {
		b.frameEncoder.Release()
		b.frameView.Release()
		b.frameSurface.Release()
		b.frameEncoder = nil
		b.frameSurface = nil
		b.frameView = nil
		return err
	}

	b.queue.Submit(commandBuffer)

	commandBuffer.Release()
	b.frameEncoder.Release()
	b.frameEncoder = nil

	return nil
}

func (b *wgpuBackend) Present() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface == nil {
		return
	}

	b.surface.Present()

	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	b.frameSurface.Release()
	b.frameSurface = nil
}

func (b *wgpuBackend) Release() {
	b.mu.Lock()
	b.releasing = true
	b.mu.Unlock()

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
	b.surfaceFormat = nil
}
