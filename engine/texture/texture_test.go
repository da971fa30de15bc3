package texture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func checker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.NRGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, checker(w, h)))
	return buf.Bytes()
}

// imageServer serves a 2x2 png at /tex.png and counts requests.
func imageServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	data := pngBytes(t, 2, 2)
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/tex.png", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello, not an image"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newLoader(t *testing.T, options ...LoaderBuilderOption) Loader {
	t.Helper()
	l, err := NewLoader(options...)
	require.NoError(t, err)
	return l
}

func TestDecodeFormats(t *testing.T) {
	src := checker(3, 2)
	encoders := map[string]func(*bytes.Buffer) error{
		"image/png":  func(b *bytes.Buffer) error { return png.Encode(b, src) },
		"image/bmp":  func(b *bytes.Buffer) error { return bmp.Encode(b, src) },
		"image/tiff": func(b *bytes.Buffer) error { return tiff.Encode(b, src, nil) },
		"image/jpeg": func(b *bytes.Buffer) error { return jpeg.Encode(b, src, &jpeg.Options{Quality: 100}) },
	}

	for mime, enc := range encoders {
		t.Run(mime, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, enc(&buf))

			pixels, w, h, got, err := decode(buf.Bytes())
			require.NoError(t, err)
			assert.Equal(t, mime, got)
			assert.Equal(t, uint32(3), w)
			assert.Equal(t, uint32(2), h)
			require.Len(t, pixels, 3*2*4)
			if mime != "image/jpeg" {
				assert.Equal(t, []byte{255, 0, 0, 255}, pixels[0:4])
				assert.Equal(t, []byte{0, 0, 255, 255}, pixels[4:8])
			}
		})
	}
}

func TestDecodeRejectsNonImages(t *testing.T) {
	_, _, _, _, err := decode(nil)
	assert.Error(t, err)
	_, _, _, _, err = decode([]byte("plain text payload"))
	assert.Error(t, err)
}

func TestLoadOverHTTP(t *testing.T) {
	srv, _ := imageServer(t)
	b := gputest.NewBackend()
	l := newLoader(t)

	tex, err := l.Load(context.Background(), b, 1, srv.URL+"/tex.png")
	require.NoError(t, err)

	assert.Equal(t, uint32(2), tex.Width)
	assert.Equal(t, uint32(2), tex.Height)
	assert.False(t, tex.IsDummy())
	assert.Equal(t, uint64(1), tex.Epoch)

	uploaded := b.Textures()[0]
	assert.Equal(t, TextureUsage, uploaded.Usage())
	assert.Equal(t, []byte{255, 0, 0, 255}, uploaded.Pixels()[0:4])
	assert.Equal(t, 0, l.Len())
}

func TestLoadFailures(t *testing.T) {
	srv, _ := imageServer(t)
	b := gputest.NewBackend()

	tests := []struct {
		name   string
		loader Loader
		url    string
	}{
		{"not found", newLoader(t), srv.URL + "/missing.png"},
		{"not an image", newLoader(t), srv.URL + "/text"},
		{"too large", newLoader(t, WithMaxBytes(16)), srv.URL + "/tex.png"},
		{"unreachable", newLoader(t, WithTimeout(time.Second)), "http://127.0.0.1:1/tex.png"},
		{"missing file", newLoader(t), filepath.Join(t.TempDir(), "nope.png")},
		{"unsupported scheme", newLoader(t), "ftp://example.com/tex.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.loader.Load(context.Background(), b, 1, tt.url)
			assert.ErrorIs(t, err, common.ErrTextureLoadFailed)
		})
	}
	assert.Empty(t, b.Textures())

	b.Fail(gputest.OpCreateTexture, 1)
	_, err := newLoader(t).Load(context.Background(), b, 1, srv.URL+"/tex.png")
	assert.ErrorIs(t, err, common.ErrTextureLoadFailed)
	assert.ErrorIs(t, err, gputest.ErrInjected)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tex.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t, 4, 1), 0o600))
	b := gputest.NewBackend()
	l := newLoader(t)

	tex, err := l.Load(context.Background(), b, 1, path)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), tex.Width)

	tex, err = l.Load(context.Background(), b, 1, "file://"+filepath.ToSlash(path))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), tex.Height)
}

func TestAcquireSharesAndCounts(t *testing.T) {
	srv, hits := imageServer(t)
	b := gputest.NewBackend()
	l := newLoader(t)
	url := srv.URL + "/tex.png"

	a, err := l.Acquire(context.Background(), b, 1, url)
	require.NoError(t, err)
	c, err := l.Acquire(context.Background(), b, 1, url)
	require.NoError(t, err)

	assert.Same(t, a, c)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, b.Count(gputest.OpCreateTexture))
	assert.Equal(t, 2, l.RefCount(url))

	l.Release(a)
	assert.False(t, b.Textures()[0].Released())
	assert.Equal(t, 1, l.RefCount(url))

	l.Release(c)
	assert.True(t, b.Textures()[0].Released())
	assert.Equal(t, 0, l.Len())

	l.Release(c)
	assert.Equal(t, 0, l.RefCount(url))
}

func TestAcquireConcurrentFetchesOnce(t *testing.T) {
	srv, hits := imageServer(t)
	b := gputest.NewBackend()
	l := newLoader(t)
	url := srv.URL + "/tex.png"

	const n = 8
	results := make([]*Texture, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tex, err := l.Acquire(context.Background(), b, 1, url)
			assert.NoError(t, err)
			results[i] = tex
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, b.Count(gputest.OpCreateTexture))
	assert.Equal(t, n, l.RefCount(url))
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

// gatedServer serves a 2x2 png once gate is closed.
func gatedServer(t *testing.T, gate <-chan struct{}) *httptest.Server {
	t.Helper()
	data := pngBytes(t, 2, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-gate
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAcquireReleaseRace(t *testing.T) {
	srv, _ := imageServer(t)
	b := gputest.NewBackend()
	l := newLoader(t)
	url := srv.URL + "/tex.png"

	const workers = 16
	var failures atomic.Int32
	for range 50 {
		start := make(chan struct{})
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				tex, err := l.Acquire(context.Background(), b, 1, url)
				if err != nil {
					failures.Add(1)
					return
				}
				l.Release(tex)
			}()
		}
		close(start)
		wg.Wait()
	}

	assert.Equal(t, int32(0), failures.Load())
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0, b.Live())
}

func TestAcquireSharedFetchCountsEveryWaiter(t *testing.T) {
	gate := make(chan struct{})
	srv := gatedServer(t, gate)
	b := gputest.NewBackend()
	l := newLoader(t)
	url := srv.URL + "/tex.png"

	const n = 4
	results := make(chan *Texture, n)
	for range n {
		go func() {
			tex, err := l.Acquire(context.Background(), b, 1, url)
			assert.NoError(t, err)
			results <- tex
		}()
	}
	// Every waiter must be registered before the fetch completes.
	time.Sleep(50 * time.Millisecond)
	close(gate)

	first := <-results
	l.Release(first)
	for range n - 1 {
		tex := <-results
		assert.Same(t, first, tex)
	}
	assert.Equal(t, n-1, l.RefCount(url))
	assert.False(t, first.Handle.(*gputest.Texture).Released())
}

func TestAcquireCancelledWaiterLeavesNothingCached(t *testing.T) {
	gate := make(chan struct{})
	srv := gatedServer(t, gate)
	b := gputest.NewBackend()
	l := newLoader(t, WithTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Acquire(ctx, b, 1, srv.URL+"/tex.png")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	require.Eventually(t, func() bool {
		return b.Count(gputest.OpCreateTexture) == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return b.Live() == 0
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, l.Len())
}

func TestAcquireAfterEpochChange(t *testing.T) {
	srv, _ := imageServer(t)
	b := gputest.NewBackend()
	url := srv.URL + "/tex.png"

	t.Run("stale load is discarded", func(t *testing.T) {
		l := newLoader(t, WithEpochCheck(func(uint64) bool { return false }))
		_, err := l.Acquire(context.Background(), b, 1, url)
		assert.ErrorIs(t, err, common.ErrDeviceLost)
		assert.Equal(t, 0, l.Len())
		textures := b.Textures()
		assert.True(t, textures[len(textures)-1].Released())
	})

	t.Run("older epoch entry is replaced", func(t *testing.T) {
		l := newLoader(t)
		old, err := l.Acquire(context.Background(), b, 1, url)
		require.NoError(t, err)
		fresh, err := l.Acquire(context.Background(), b, 2, url)
		require.NoError(t, err)

		assert.NotSame(t, old, fresh)
		assert.True(t, old.Handle.(*gputest.Texture).Released())
		assert.Equal(t, 1, l.RefCount(url))

		l.Release(old)
		assert.Equal(t, 1, l.RefCount(url))
	})
}

func TestAcquireHonoursContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	l := newLoader(t, WithTimeout(5*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := l.Acquire(ctx, gputest.NewBackend(), 1, srv.URL+"/slow.png")
	assert.ErrorIs(t, err, common.ErrTextureLoadFailed)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDummy(t *testing.T) {
	b := gputest.NewBackend()
	l := newLoader(t)

	d1, err := l.Dummy(b, 1)
	require.NoError(t, err)
	d2, err := l.Dummy(b, 1)
	require.NoError(t, err)

	assert.Same(t, d1, d2)
	assert.True(t, d1.IsDummy())
	assert.Equal(t, uint32(1), d1.Width)
	assert.Equal(t, []byte{255, 255, 255, 255}, b.Textures()[0].Pixels())

	l.Release(d1)
	assert.False(t, b.Textures()[0].Released())

	d3, err := l.Dummy(b, 2)
	require.NoError(t, err)
	assert.NotSame(t, d1, d3)
	assert.True(t, b.Textures()[0].Released())
}

func TestInvalidateReleasesEverything(t *testing.T) {
	srv, _ := imageServer(t)
	b := gputest.NewBackend()
	l := newLoader(t)

	_, err := l.Acquire(context.Background(), b, 1, srv.URL+"/tex.png")
	require.NoError(t, err)
	_, err = l.Dummy(b, 1)
	require.NoError(t, err)
	_, err = l.Sampler(b, 1)
	require.NoError(t, err)

	l.Invalidate()

	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0, l.Samplers().Len())
	assert.Equal(t, 0, b.Live())
}

func TestSamplerCache(t *testing.T) {
	b := gputest.NewBackend()
	c, err := NewSamplerCache(1)
	require.NoError(t, err)

	s1, err := c.Get(b, 1, DefaultSamplerDescriptor)
	require.NoError(t, err)
	s2, err := c.Get(b, 1, DefaultSamplerDescriptor)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, b.Count(gputest.OpCreateSampler))

	nearest := DefaultSamplerDescriptor
	nearest.MagFilter = gpu.FilterModeNearest
	_, err = c.Get(b, 1, nearest)
	require.NoError(t, err)
	assert.True(t, s1.(*gputest.Sampler).Released())
	assert.Equal(t, 1, c.Len())

	s3, err := c.Get(b, 2, nearest)
	require.NoError(t, err)
	assert.True(t, b.Samplers()[1].Released())
	assert.False(t, s3.(*gputest.Sampler).Released())

	b.Fail(gputest.OpCreateSampler, 1)
	_, err = c.Get(b, 2, DefaultSamplerDescriptor)
	assert.ErrorIs(t, err, common.ErrBufferCreationFailed)

	_, err = NewSamplerCache(0)
	assert.Error(t, err)
}
