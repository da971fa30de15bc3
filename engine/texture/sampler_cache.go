package texture

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSamplerDescriptor is the sampler every object binds: linear filtering with repeat
// addressing.
var DefaultSamplerDescriptor = gpu.SamplerDescriptor{
	Label:         "oxy_default_sampler",
	AddressModeU:  gpu.AddressModeRepeat,
	AddressModeV:  gpu.AddressModeRepeat,
	AddressModeW:  gpu.AddressModeRepeat,
	MagFilter:     gpu.FilterModeLinear,
	MinFilter:     gpu.FilterModeLinear,
	MaxAnisotropy: 1,
}

type cachedSampler struct {
	sampler gpu.Sampler
	epoch   uint64
}

// SamplerCache shares samplers by descriptor. Samplers returned by the cache are owned by it;
// callers must not release them.
type SamplerCache interface {
	// Get returns the sampler for a descriptor, creating it when it is not cached or was
	// created under another session epoch.
	//
	// Parameters:
	//   - backend: the backend to create on
	//   - epoch: the session epoch of backend
	//   - desc: the sampler descriptor
	//
	// Returns:
	//   - gpu.Sampler: the shared sampler
	//   - error: ErrBufferCreationFailed (wrapped) if the sampler cannot be created
	Get(backend gpu.Backend, epoch uint64, desc gpu.SamplerDescriptor) (gpu.Sampler, error)

	// Len returns the number of cached samplers.
	Len() int

	// Purge releases and forgets every cached sampler.
	Purge()
}

type samplerCache struct {
	mu    sync.Mutex
	cache *lru.Cache[gpu.SamplerDescriptor, cachedSampler]
}

var _ SamplerCache = &samplerCache{}

// NewSamplerCache creates a sampler cache holding at most size samplers. Evicted samplers are
// released.
//
// Parameters:
//   - size: the maximum number of cached samplers
//
// Returns:
//   - SamplerCache: the new cache
//   - error: an error if size is not positive
func NewSamplerCache(size int) (SamplerCache, error) {
	c, err := lru.NewWithEvict(size, func(_ gpu.SamplerDescriptor, v cachedSampler) {
		v.sampler.Release()
	})
	if err != nil {
		return nil, err
	}
	return &samplerCache{cache: c}, nil
}

func (s *samplerCache) Get(backend gpu.Backend, epoch uint64, desc gpu.SamplerDescriptor) (gpu.Sampler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache.Get(desc); ok {
		if v.epoch == epoch {
			return v.sampler, nil
		}
		s.cache.Remove(desc)
	}

	sampler, err := backend.CreateSampler(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: sampler %q: %w", common.ErrBufferCreationFailed, desc.Label, err)
	}
	s.cache.Add(desc, cachedSampler{sampler: sampler, epoch: epoch})
	return sampler, nil
}

func (s *samplerCache) Len() int {
	return s.cache.Len()
}

func (s *samplerCache) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}
