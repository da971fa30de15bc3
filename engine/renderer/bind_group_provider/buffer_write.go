package bind_group_provider

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
)

// BufferWrite describes a single GPU buffer write operation targeting a specific binding
// on a BindGroupProvider at a given byte offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}

// Apply queues the write on the backend.
//
// Parameters:
//   - backend: the backend owning the provider's buffers
//
// Returns:
//   - error: an error if the provider has no buffer at the binding or the write fails
func (w BufferWrite) Apply(backend gpu.Backend) error {
	buf := w.Provider.Buffer(w.Binding)
	if buf == nil {
		return fmt.Errorf("provider %q has no buffer at binding %d", w.Provider.Label(), w.Binding)
	}
	return backend.WriteBuffer(buf, w.Offset, w.Data)
}
