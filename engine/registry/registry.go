// Package registry owns the GPU resources of every object the host has set up: vertex and
// uniform buffers, the texture reference and the bind group tying them to a pipeline.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-core/engine/texture"
)

// DeviceSource hands out the current backend and validates epochs. session.Session
// satisfies it.
type DeviceSource interface {
	Backend() (gpu.Backend, uint64, error)
	Valid(epoch uint64) bool
}

// Object is a drawable object and the GPU resources it owns.
type Object struct {
	ID string

	// Generation orders setups of the same id; the newest started setup wins.
	Generation uint64

	// Epoch is the session epoch the resources were created under.
	Epoch uint64

	Mesh     Mesh
	Provider bind_group_provider.BindGroupProvider
	Texture  *texture.Texture
	Pipeline pipeline.Pipeline
}

// SetupResult is delivered by SetupObjectAsync.
type SetupResult struct {
	ID  string
	Err error
}

// registry is the implementation of the Registry interface.
type registry struct {
	mu          *sync.Mutex
	objects     map[string]*Object
	generations map[string]uint64
	lastGen     uint64
	closed      bool

	device    DeviceSource
	pipelines pipeline.Cache
	textures  texture.Loader

	pool    worker.DynamicWorkerPool
	workers int
	taskID  atomic.Int64
	tasks   *sync.WaitGroup

	logger *slog.Logger
}

// Registry creates, replaces and destroys objects.
type Registry interface {
	// SetupObject validates the mesh, creates every GPU resource of the object and commits it
	// under desc.ID, replacing and releasing any previous object with that id. A texture that
	// cannot be loaded is replaced by the dummy texture. Nothing is registered on failure.
	//
	// Parameters:
	//   - ctx: bounds the texture fetch
	//   - desc: the object to set up
	//
	// Returns:
	//   - string: the object id
	//   - error: ErrDeviceUnavailable, ErrInvalidMesh, ErrBufferCreationFailed,
	//     ErrPipelineCreationFailed, ErrDeviceLost or ErrSuperseded (all wrapped)
	SetupObject(ctx context.Context, desc ObjectDescriptor) (string, error)

	// SetupObjectAsync runs SetupObject on the registry's worker pool. The channel receives
	// exactly one result and is then closed.
	//
	// Parameters:
	//   - ctx: bounds the texture fetch
	//   - desc: the object to set up
	//
	// Returns:
	//   - <-chan SetupResult: delivers the outcome
	SetupObjectAsync(ctx context.Context, desc ObjectDescriptor) <-chan SetupResult

	// Object returns the committed object for id. The returned value must not be retained
	// across calls that replace or remove the object.
	//
	// Parameters:
	//   - id: the object id
	//
	// Returns:
	//   - *Object: the object
	//   - bool: false if no object is registered under id
	Object(id string) (*Object, bool)

	// Use runs fn with the object for id while holding the registry lock, after rebuilding
	// the object's pipeline and bind group if the pipeline cache no longer holds its pipeline.
	//
	// Parameters:
	//   - id: the object id
	//   - fn: called with the object and the backend it belongs to
	//
	// Returns:
	//   - error: ErrDeviceUnavailable or ErrResourceNotFound (wrapped), a rebuild error, or fn's error
	Use(id string, fn func(obj *Object, backend gpu.Backend) error) error

	// IDs returns the registered ids in sorted order.
	IDs() []string

	// Len returns the number of registered objects.
	Len() int

	// Remove destroys the object registered under id. Setups for id that started earlier
	// and have not committed yet are discarded.
	//
	// Parameters:
	//   - id: the object id
	//
	// Returns:
	//   - error: ErrResourceNotFound (wrapped) if no object is registered under id
	Remove(id string) error

	// Clear destroys every object and discards setups that have not committed yet.
	Clear()

	// Close waits for pending asynchronous setups and stops the worker pool. Later
	// SetupObjectAsync calls fail with ErrDeviceUnavailable.
	Close()
}

var _ Registry = &registry{}

// NewRegistry creates an empty registry.
//
// Parameters:
//   - device: the session the registry creates resources on
//   - pipelines: the shared pipeline cache
//   - textures: the shared texture loader
//   - options: functional options to configure the registry
//
// Returns:
//   - Registry: the new registry
func NewRegistry(device DeviceSource, pipelines pipeline.Cache, textures texture.Loader, options ...RegistryBuilderOption) Registry {
	r := &registry{
		mu:          &sync.Mutex{},
		objects:     make(map[string]*Object),
		generations: make(map[string]uint64),
		tasks:       &sync.WaitGroup{},
		device:      device,
		pipelines:   pipelines,
		textures:    textures,
		workers:     4,
	}
	for _, opt := range options {
		opt(r)
	}
	r.logger = common.Coalesce(r.logger, common.Logger())
	r.pool = worker.NewDynamicWorkerPool(r.workers, 256, 1*time.Second)
	return r
}

func (r *registry) SetupObject(ctx context.Context, desc ObjectDescriptor) (string, error) {
	backend, epoch, err := r.device.Backend()
	if err != nil {
		return "", err
	}
	mesh, err := newMesh(desc)
	if err != nil {
		return "", err
	}

	gen := r.begin(desc.ID)

	obj, err := r.build(ctx, backend, epoch, gen, desc.ID, desc.TextureURL, mesh)
	if err != nil {
		r.forget(desc.ID, gen)
		return "", err
	}
	if err := r.commit(obj); err != nil {
		r.forget(desc.ID, gen)
		r.release(obj)
		return "", err
	}
	return desc.ID, nil
}

// forget drops the generation entry of a setup that will not commit, unless a newer setup
// for the same id started since.
func (r *registry) forget(id string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generations[id] == gen {
		delete(r.generations, id)
	}
}

// begin takes the next generation for id.
func (r *registry) begin(id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[id]; ok {
		r.logger.Warn("recreating object", "id", id)
	}
	r.lastGen++
	r.generations[id] = r.lastGen
	return r.lastGen
}

// build creates the object's resources. On failure everything created so far is released.
func (r *registry) build(ctx context.Context, backend gpu.Backend, epoch, gen uint64, id, textureURL string, mesh Mesh) (*Object, error) {
	obj := &Object{
		ID:         id,
		Generation: gen,
		Epoch:      epoch,
		Mesh:       mesh,
		Provider:   bind_group_provider.NewBindGroupProvider(id),
	}
	fail := func(err error) (*Object, error) {
		r.release(obj)
		return nil, err
	}

	vertices, err := backend.CreateBuffer(gpu.BufferDescriptor{
		Label:    id + "_vertices",
		Size:     uint64(len(mesh.Vertices)) * 4,
		Usage:    gpu.BufferUsageVertex,
		Contents: common.SliceToBytes(mesh.Vertices),
	})
	if err != nil {
		return fail(fmt.Errorf("%w: vertex buffer for %q: %w", common.ErrBufferCreationFailed, id, err))
	}
	obj.Provider.SetVertexBuffer(vertices, mesh.VertexCount)

	obj.Texture, err = r.resolveTexture(ctx, backend, epoch, id, textureURL)
	if err != nil {
		return fail(err)
	}
	if !r.device.Valid(epoch) {
		return fail(fmt.Errorf("%w: device changed while loading the texture of %q", common.ErrDeviceLost, id))
	}
	sampler, err := r.textures.Sampler(backend, epoch)
	if err != nil {
		return fail(err)
	}

	uniforms, err := backend.CreateBuffer(gpu.BufferDescriptor{
		Label: id + "_uniforms",
		Size:  shader.ObjectUniformBufferSize,
		Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fail(fmt.Errorf("%w: uniform buffer for %q: %w", common.ErrBufferCreationFailed, id, err))
	}
	initial := shader.NewGPUObjectUniform()
	if err := backend.WriteBuffer(uniforms, 0, initial.Marshal()); err != nil {
		uniforms.Release()
		return fail(fmt.Errorf("%w: initial transform for %q: %w", common.ErrBufferCreationFailed, id, err))
	}

	obj.Pipeline, err = r.pipelines.Ensure(backend, epoch, mesh.Stride, mesh.Attributes)
	if err != nil {
		uniforms.Release()
		return fail(err)
	}

	program := obj.Pipeline.Shader()
	ub, _ := program.Binding(shader.AnnotationArgObjectUniforms)
	tb, _ := program.Binding(shader.AnnotationArgDiffuseTexture)
	sb, _ := program.Binding(shader.AnnotationArgDiffuseSampler)
	obj.Provider.SetBuffer(int(ub), uniforms)
	obj.Provider.SetTexture(int(tb), obj.Texture.Handle)
	obj.Provider.SetSampler(int(sb), sampler)

	if err := obj.Provider.InitBindGroup(backend, obj.Pipeline.Handle()); err != nil {
		return fail(err)
	}
	return obj, nil
}

// resolveTexture acquires the texture at url, falling back to the dummy texture when url is
// empty or the load fails.
func (r *registry) resolveTexture(ctx context.Context, backend gpu.Backend, epoch uint64, id, url string) (*texture.Texture, error) {
	if url != "" {
		tex, err := r.textures.Acquire(ctx, backend, epoch, url)
		if err == nil {
			return tex, nil
		}
		if errors.Is(err, common.ErrDeviceLost) {
			return nil, err
		}
		r.logger.Warn("texture unavailable, using fallback", "id", id, "url", url, "error", err)
	}
	return r.textures.Dummy(backend, epoch)
}

// commit stores obj unless its epoch is stale or a newer setup for the same id started.
func (r *registry) commit(obj *Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.device.Valid(obj.Epoch) {
		return fmt.Errorf("%w: setup of %q finished after the device changed", common.ErrDeviceLost, obj.ID)
	}
	if r.generations[obj.ID] != obj.Generation {
		return fmt.Errorf("%w: setup %d of %q", common.ErrSuperseded, obj.Generation, obj.ID)
	}

	old := r.objects[obj.ID]
	r.objects[obj.ID] = obj
	delete(r.generations, obj.ID)
	if old != nil {
		r.release(old)
	}
	r.logger.Debug("object ready", "id", obj.ID, "vertices", obj.Mesh.VertexCount, "pipeline", string(obj.Pipeline.Signature()), "dummy_texture", obj.Texture.IsDummy())
	return nil
}

// release frees the object's own resources and drops its texture reference.
func (r *registry) release(obj *Object) {
	obj.Provider.Release()
	r.textures.Release(obj.Texture)
}

func (r *registry) SetupObjectAsync(ctx context.Context, desc ObjectDescriptor) <-chan SetupResult {
	ch := make(chan SetupResult, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		ch <- SetupResult{ID: desc.ID, Err: fmt.Errorf("%w: registry closed", common.ErrDeviceUnavailable)}
		close(ch)
		return ch
	}
	r.tasks.Add(1)
	r.mu.Unlock()

	r.pool.SubmitTask(worker.Task{
		ID: int(r.taskID.Add(1)),
		Do: func() (any, error) {
			defer r.tasks.Done()
			defer close(ch)
			id, err := r.SetupObject(ctx, desc)
			ch <- SetupResult{ID: common.Coalesce(id, desc.ID), Err: err}
			return id, err
		},
	})
	return ch
}

func (r *registry) Object(id string) (*Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	return obj, ok
}

func (r *registry) Use(id string, fn func(obj *Object, backend gpu.Backend) error) error {
	backend, epoch, err := r.device.Backend()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// The device may have been lost while waiting for the lock; the loss hook releases
	// pipelines only after Clear has taken this lock.
	if !r.device.Valid(epoch) {
		return fmt.Errorf("%w: device changed before the object %q was used", common.ErrDeviceUnavailable, id)
	}
	obj, ok := r.objects[id]
	if !ok {
		return fmt.Errorf("%w: object %q", common.ErrResourceNotFound, id)
	}
	if obj.Epoch != epoch {
		return fmt.Errorf("%w: object %q belongs to a previous device", common.ErrResourceNotFound, id)
	}

	p, err := r.pipelines.Ensure(backend, epoch, obj.Mesh.Stride, obj.Mesh.Attributes)
	if err != nil {
		return err
	}
	if p != obj.Pipeline {
		if err := obj.Provider.InitBindGroup(backend, p.Handle()); err != nil {
			return err
		}
		obj.Pipeline = p
		r.logger.Debug("object rebound to rebuilt pipeline", "id", id)
	}
	return fn(obj, backend)
}

func (r *registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.objects))
	for id := range r.objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

func (r *registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.generations, id)
	obj, ok := r.objects[id]
	if !ok {
		return fmt.Errorf("%w: object %q", common.ErrResourceNotFound, id)
	}
	delete(r.objects, id)
	r.release(obj)
	return nil
}

func (r *registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, obj := range r.objects {
		r.release(obj)
		delete(r.objects, id)
	}
	clear(r.generations)
}

func (r *registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.tasks.Wait()
	r.pool.Stop()
}

// IsDiscarded reports whether err means a setup finished but was not committed, because a
// newer setup for the same id started or the device changed.
func IsDiscarded(err error) bool {
	return errors.Is(err, common.ErrSuperseded) || errors.Is(err, common.ErrDeviceLost)
}
