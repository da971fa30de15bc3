package common

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityMatrix(t *testing.T) {
	m := IdentityMatrix()
	for i, v := range m {
		if i%5 == 0 {
			assert.Equal(t, float32(1), v, "element %d", i)
		} else {
			assert.Zero(t, v, "element %d", i)
		}
	}

	dirty := []float32{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	Identity(dirty)
	assert.Equal(t, m[:], dirty)
}

func TestSliceToBytesRoundTrip(t *testing.T) {
	assert.Nil(t, SliceToBytes([]float32{}))

	in := []float32{1, -2.5, 3.25}
	b := SliceToBytes(in)
	assert.Len(t, b, 12)
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, b[:4])
	assert.Equal(t, in, BytesToFloat32s(b))
	assert.Len(t, BytesToFloat32s(b[:7]), 1)
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "b", Coalesce("", "b", "c"))
	assert.Equal(t, 0, Coalesce(0, 0))

	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, l, Coalesce[*slog.Logger](nil, l))
}

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })
	assert.False(t, Logger().Enabled(t.Context(), slog.LevelError))

	var out bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&out, nil)))
	Logger().Info("hello")
	assert.Contains(t, out.String(), "msg=hello")

	SetLogger(nil)
	assert.False(t, Logger().Enabled(t.Context(), slog.LevelError))
	assert.False(t, DiscardLogger().Enabled(t.Context(), slog.LevelError))
}

func TestErrorKindsWrap(t *testing.T) {
	err := fmt.Errorf("%w: upload: %w", ErrTextureLoadFailed, errors.New("boom"))
	assert.ErrorIs(t, err, ErrTextureLoadFailed)
	assert.NotErrorIs(t, err, ErrDeviceLost)
}
