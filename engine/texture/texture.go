// Package texture loads images into GPU textures. It owns the per-session dummy texture, a
// reference counted cache of textures keyed by URL and the shared sampler cache.
package texture

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"golang.org/x/sync/singleflight"
)

// TextureUsage is the usage every loaded texture is created with.
const TextureUsage = gpu.TextureUsageTextureBinding | gpu.TextureUsageCopyDst | gpu.TextureUsageRenderAttachment

// Texture is a texture resident on the GPU.
type Texture struct {
	// URL is the location the texture was loaded from, empty for the dummy texture.
	URL string

	Width  uint32
	Height uint32
	Format gpu.TextureFormat

	// Handle is the backend texture.
	Handle gpu.Texture

	// Epoch is the session epoch the texture was created under.
	Epoch uint64

	dummy bool
}

// IsDummy reports whether t is the 1x1 opaque white fallback texture.
func (t *Texture) IsDummy() bool {
	return t != nil && t.dummy
}

type cacheEntry struct {
	tex  *Texture
	refs int
}

// loader is the implementation of the Loader interface.
type loader struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	waiting map[string][]*waiter
	dummy   *Texture
	group   singleflight.Group

	samplers SamplerCache

	client      *http.Client
	timeout     time.Duration
	maxBytes    int64
	samplerSize int
	valid       func(epoch uint64) bool
	logger      *slog.Logger
}

// Loader fetches, decodes and uploads textures and caches them by URL.
type Loader interface {
	// Load fetches, decodes and uploads the texture at url without consulting the cache. The
	// caller owns the returned texture and releases its Handle.
	//
	// Parameters:
	//   - ctx: bounds the fetch
	//   - backend: the backend to upload to
	//   - epoch: the session epoch of backend
	//   - url: an http, https or file URL, or a bare path
	//
	// Returns:
	//   - *Texture: the uploaded texture
	//   - error: ErrTextureLoadFailed (wrapped) on fetch, decode or upload failure; ErrDeviceLost
	//     (wrapped) if the session epoch changed while loading
	Load(ctx context.Context, backend gpu.Backend, epoch uint64, url string) (*Texture, error)

	// Acquire returns the cached texture for url, loading it on first use, and takes a
	// reference. Concurrent acquisitions of the same url share one fetch.
	//
	// Parameters:
	//   - ctx: bounds the wait for the fetch
	//   - backend: the backend to upload to
	//   - epoch: the session epoch of backend
	//   - url: the texture location
	//
	// Returns:
	//   - *Texture: the shared texture; hand it back with Release
	//   - error: the same errors as Load
	Acquire(ctx context.Context, backend gpu.Backend, epoch uint64, url string) (*Texture, error)

	// Release drops a reference taken by Acquire. The GPU texture is released with its last
	// reference. Dummy textures, nil and textures from an invalidated cache are ignored.
	//
	// Parameters:
	//   - tex: the texture returned by Acquire
	Release(tex *Texture)

	// RefCount returns the number of references held on the cached texture for url.
	RefCount(url string) int

	// Len returns the number of cached textures.
	Len() int

	// Dummy returns the 1x1 opaque white texture for the epoch, creating it on first use.
	// It is not reference counted and is released only by Invalidate or by a newer epoch.
	//
	// Parameters:
	//   - backend: the backend to upload to
	//   - epoch: the session epoch of backend
	//
	// Returns:
	//   - *Texture: the dummy texture
	//   - error: ErrTextureLoadFailed (wrapped) if the upload fails
	Dummy(backend gpu.Backend, epoch uint64) (*Texture, error)

	// Sampler returns the shared default sampler for the epoch.
	//
	// Parameters:
	//   - backend: the backend to create on
	//   - epoch: the session epoch of backend
	//
	// Returns:
	//   - gpu.Sampler: the shared sampler
	//   - error: an error if the sampler cannot be created
	Sampler(backend gpu.Backend, epoch uint64) (gpu.Sampler, error)

	// Samplers returns the sampler cache.
	Samplers() SamplerCache

	// Invalidate releases every cached texture, the dummy texture and every cached sampler.
	Invalidate()
}

var _ Loader = &loader{}

// NewLoader creates a texture loader.
//
// Parameters:
//   - options: functional options to configure the loader
//
// Returns:
//   - Loader: the new loader
//   - error: an error if the sampler cache cannot be created
func NewLoader(options ...LoaderBuilderOption) (Loader, error) {
	l := &loader{
		entries:     make(map[string]*cacheEntry),
		waiting:     make(map[string][]*waiter),
		client:      http.DefaultClient,
		timeout:     30 * time.Second,
		maxBytes:    32 << 20,
		samplerSize: 16,
	}
	for _, opt := range options {
		opt(l)
	}
	l.logger = common.Coalesce(l.logger, common.Logger())

	samplers, err := NewSamplerCache(l.samplerSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler cache: %w", err)
	}
	l.samplers = samplers
	return l, nil
}

func (l *loader) isValid(epoch uint64) bool {
	return l.valid == nil || l.valid(epoch)
}

func (l *loader) Load(ctx context.Context, backend gpu.Backend, epoch uint64, url string) (*Texture, error) {
	data, err := l.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrTextureLoadFailed, url, err)
	}
	pixels, w, h, mime, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrTextureLoadFailed, url, err)
	}

	handle, err := backend.CreateTexture(gpu.TextureDescriptor{
		Label:  url,
		Width:  w,
		Height: h,
		Format: gpu.TextureFormatRGBA8Unorm,
		Usage:  TextureUsage,
		Pixels: pixels,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: upload: %w", common.ErrTextureLoadFailed, url, err)
	}
	if !l.isValid(epoch) {
		handle.Release()
		return nil, fmt.Errorf("%w: texture %s finished loading after the device changed", common.ErrDeviceLost, url)
	}

	l.logger.Debug("texture uploaded", "url", url, "type", mime, "width", w, "height", h, "epoch", epoch)
	return &Texture{
		URL:    url,
		Width:  w,
		Height: h,
		Format: gpu.TextureFormatRGBA8Unorm,
		Handle: handle,
		Epoch:  epoch,
	}, nil
}

func (l *loader) Acquire(ctx context.Context, backend gpu.Backend, epoch uint64, url string) (*Texture, error) {
	for {
		if tex, ok := l.reference(url, epoch); ok {
			return tex, nil
		}

		key := strconv.FormatUint(epoch, 10) + "|" + url
		w := l.wait(key)
		ch := l.group.DoChan(key, func() (any, error) {
			if tex, ok := l.settleCached(key, url, epoch); ok {
				return tex, nil
			}
			// Shared by every waiter: bounded by the loader timeout, not the first caller's context.
			tex, err := l.Load(context.WithoutCancel(ctx), backend, epoch, url)
			if err != nil {
				return nil, err
			}
			return tex, l.settle(key, tex)
		})

		select {
		case <-ctx.Done():
			l.abandon(key, w)
			return nil, fmt.Errorf("%w: %s: %w", common.ErrTextureLoadFailed, url, ctx.Err())
		case res := <-ch:
			if res.Err != nil {
				l.abandon(key, w)
				return nil, res.Err
			}
			if tex := l.claim(key, w); tex != nil {
				return tex, nil
			}
			// Joined a fetch that had already handed out its references.
		}
	}
}

// waiter is a caller of Acquire blocked on a shared fetch. tex is set once a reference has
// been taken on its behalf.
type waiter struct {
	tex *Texture
}

// wait registers a waiter for the fetch identified by key.
func (l *loader) wait(key string) *waiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := &waiter{}
	l.waiting[key] = append(l.waiting[key], w)
	return w
}

// handOut takes one reference on e for every waiter registered under key.
func (l *loader) handOut(key string, e *cacheEntry) {
	for _, w := range l.waiting[key] {
		w.tex = e.tex
		e.refs++
	}
	delete(l.waiting, key)
}

// claim returns the texture referenced for w, or nil if w registered too late to be counted.
func (l *loader) claim(key string, w *waiter) *Texture {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w.tex != nil {
		return w.tex
	}
	l.unwait(key, w)
	return nil
}

// abandon withdraws w, dropping the reference taken for it if there is one.
func (l *loader) abandon(key string, w *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w.tex != nil {
		l.release(w.tex)
		return
	}
	l.unwait(key, w)
}

func (l *loader) unwait(key string, w *waiter) {
	ws := l.waiting[key]
	for i, x := range ws {
		if x == w {
			ws = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(ws) == 0 {
		delete(l.waiting, key)
		return
	}
	l.waiting[key] = ws
}

// reference takes a reference on the cache entry for url if it belongs to epoch.
func (l *loader) reference(url string, epoch uint64) (*Texture, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[url]
	if !ok || e.tex.Epoch != epoch {
		return nil, false
	}
	e.refs++
	return e.tex, true
}

// settleCached hands out references on the cached texture for url to the waiters of key, if
// the cache holds one for epoch.
func (l *loader) settleCached(key, url string, epoch uint64) (*Texture, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[url]
	if !ok || e.tex.Epoch != epoch {
		return nil, false
	}
	l.handOut(key, e)
	return e.tex, true
}

// settle caches a freshly loaded texture, replacing an entry from an older epoch, and hands
// out references to the waiters of key. A texture nobody waits for any more is released.
func (l *loader) settle(key string, tex *Texture) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.isValid(tex.Epoch) {
		tex.Handle.Release()
		return fmt.Errorf("%w: texture %s finished loading after the device changed", common.ErrDeviceLost, tex.URL)
	}
	if len(l.waiting[key]) == 0 {
		tex.Handle.Release()
		return nil
	}
	if old, ok := l.entries[tex.URL]; ok {
		old.tex.Handle.Release()
	}
	e := &cacheEntry{tex: tex}
	l.entries[tex.URL] = e
	l.handOut(key, e)
	return nil
}

func (l *loader) Release(tex *Texture) {
	if tex == nil || tex.dummy {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.release(tex)
}

// release drops one reference on tex. l.mu must be held.
func (l *loader) release(tex *Texture) {
	e, ok := l.entries[tex.URL]
	if !ok || e.tex != tex {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	delete(l.entries, tex.URL)
	tex.Handle.Release()
	l.logger.Debug("texture released", "url", tex.URL)
}

func (l *loader) RefCount(url string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[url]; ok {
		return e.refs
	}
	return 0
}

func (l *loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *loader) Dummy(backend gpu.Backend, epoch uint64) (*Texture, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dummy != nil {
		if l.dummy.Epoch == epoch {
			return l.dummy, nil
		}
		l.dummy.Handle.Release()
		l.dummy = nil
	}

	handle, err := backend.CreateTexture(gpu.TextureDescriptor{
		Label:  "oxy_dummy_texture",
		Width:  1,
		Height: 1,
		Format: gpu.TextureFormatRGBA8Unorm,
		Usage:  TextureUsage,
		Pixels: []byte{255, 255, 255, 255},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dummy texture: %w", common.ErrTextureLoadFailed, err)
	}
	l.dummy = &Texture{
		Width:  1,
		Height: 1,
		Format: gpu.TextureFormatRGBA8Unorm,
		Handle: handle,
		Epoch:  epoch,
		dummy:  true,
	}
	return l.dummy, nil
}

func (l *loader) Sampler(backend gpu.Backend, epoch uint64) (gpu.Sampler, error) {
	return l.samplers.Get(backend, epoch, DefaultSamplerDescriptor)
}

func (l *loader) Samplers() SamplerCache {
	return l.samplers
}

func (l *loader) Invalidate() {
	l.mu.Lock()
	for url, e := range l.entries {
		e.tex.Handle.Release()
		delete(l.entries, url)
	}
	if l.dummy != nil {
		l.dummy.Handle.Release()
		l.dummy = nil
	}
	l.mu.Unlock()

	l.samplers.Purge()
}
