// Package compute manages a process-wide compute device and a per-handle
// registry of named kernels and buffers.
//
// The device context is created lazily when the first handle is acquired
// and destroyed when the last handle is closed. Kernels are addressed by
// name; each kernel owns a table of named device buffers. The kernel
// language is WGSL, compiled through naga onto the wgpu HAL.
package compute

import (
	"fmt"
	"log"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// context owns the shared device resources. There is at most one live
// instance per process, guarded by sharedMu.
type context struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	limits   gputypes.Limits

	adapterName string

	// external is true when the device was adopted from a host provider
	// and must not be destroyed on teardown.
	external bool

	refs  int
	valid bool
}

var (
	sharedMu sync.Mutex
	shared   *context
)

// Acquire returns a handle to the process-wide compute context, creating
// the context on first use. Every returned handle must be closed; the
// context is torn down when the last handle is closed.
//
// Device selection prefers a discrete or integrated GPU and falls back to
// any remaining adapter (typically a CPU implementation). Returns
// ErrDeviceUnavailable when nothing can be opened.
func Acquire() (*Handle, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared == nil {
		ctx, err := newContext()
		if err != nil {
			return nil, err
		}
		shared = ctx
	}
	shared.refs++
	return newHandle(shared), nil
}

// AcquireShared returns a handle running on a device adopted from the
// given provider instead of creating one. The provider must expose the
// underlying HAL device and queue (HalDevice() any / HalQueue() any).
// Adopted devices are never destroyed by this package.
//
// AcquireShared fails if a self-owned context is already live. Acquire
// called while an adopted context is live returns a handle on the adopted
// device. The process-wide context is one or the other.
func AcquireShared(p gpucontext.DeviceProvider) (*Handle, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := p.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrDeviceUnavailable)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrDeviceUnavailable)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrDeviceUnavailable)
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared != nil {
		if !shared.external {
			return nil, fmt.Errorf("%w: self-owned context already live", ErrInvalidArgument)
		}
		shared.refs++
		return newHandle(shared), nil
	}

	shared = &context{
		device:      device,
		queue:       queue,
		limits:      gputypes.DefaultLimits(),
		adapterName: "shared",
		external:    true,
		refs:        1,
		valid:       true,
	}
	log.Printf("compute: adopted shared device from provider")
	return newHandle(shared), nil
}

func newContext() (*context, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrDeviceUnavailable)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %v", ErrDeviceUnavailable, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no adapters found", ErrDeviceUnavailable)
	}

	// Prefer a GPU; anything else (CPU adapters included) is the fallback.
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open device: %v", ErrDeviceUnavailable, err)
	}

	log.Printf("compute: context initialized (%s)", selected.Info.Name)

	return &context{
		instance:    instance,
		device:      openDev.Device,
		queue:       openDev.Queue,
		limits:      limits,
		adapterName: selected.Info.Name,
		refs:        0,
		valid:       true,
	}, nil
}

// release drops one reference. The caller must have already destroyed its
// kernel entries. The last reference destroys the device resources.
func (c *context) release() {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	c.refs--
	if c.refs > 0 {
		return
	}

	c.valid = false
	if !c.external {
		if c.device != nil {
			c.device.Destroy()
		}
		if c.instance != nil {
			c.instance.Destroy()
		}
	}
	c.device = nil
	c.queue = nil
	c.instance = nil
	if shared == c {
		shared = nil
	}
	log.Printf("compute: context released")
}

// AdapterName returns the name of the selected adapter, for diagnostics.
func (c *context) AdapterName() string { return c.adapterName }
