package profiler

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickReportsAfterInterval(t *testing.T) {
	var out bytes.Buffer
	p := NewProfiler(WithInterval(time.Second), WithLogger(slog.New(slog.NewTextHandler(&out, nil))))
	clock := p.lastTime
	p.now = func() time.Time { return clock }

	for range 29 {
		clock = clock.Add(10 * time.Millisecond)
		assert.False(t, p.Tick())
	}
	clock = clock.Add(710 * time.Millisecond)
	assert.True(t, p.Tick())

	assert.InDelta(t, 30, p.Last().FPS, 0.001)
	assert.Contains(t, out.String(), "frame stats")
	assert.Contains(t, out.String(), "fps=30")

	clock = clock.Add(100 * time.Millisecond)
	assert.False(t, p.Tick())
}
