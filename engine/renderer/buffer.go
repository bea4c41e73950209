package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

var ErrNotHostVisible = errors.New("buffer memory is not host visible")

type Buffer struct {
	Name       string
	Handle     gpu.Buffer
	Memory     gpu.DeviceMemory
	Size       uint64
	Usage      gpu.BufferUsage
	Properties gpu.MemoryProperty

	ctx *Context
}

// CreateBuffer creates a buffer bound to memory with the given properties.
// Initial data is written through a mapping when the memory is host visible,
// otherwise it is staged through a temporary host visible buffer.
func (c *Context) CreateBuffer(usage gpu.BufferUsage, props gpu.MemoryProperty, size uint64, data []byte, name string) (*Buffer, error) {
	if uint64(len(data)) > size {
		err := fmt.Errorf("buffer `%s`: %d bytes of initial data exceed size %d", name, len(data), size)
		core.LogError(err.Error())
		return nil, err
	}
	staged := len(data) > 0 && props&gpu.MemoryPropertyHostVisible == 0
	if staged {
		usage |= gpu.BufferUsageTransferDst
	}

	var scope Scope
	defer scope.Release()

	b, err := c.newBuffer(usage, props, size, name)
	if err != nil {
		return nil, err
	}
	scope.Defer(b.Destroy)

	if len(data) > 0 {
		if staged {
			staging, err := c.newBuffer(gpu.BufferUsageTransferSrc, gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent, uint64(len(data)), b.Name+" staging")
			if err != nil {
				return nil, err
			}
			defer staging.Destroy()
			if err := staging.Write(0, data); err != nil {
				return nil, err
			}
			if err := c.CopyBuffer(staging, b, uint64(len(data))); err != nil {
				return nil, err
			}
		} else if err := b.Write(0, data); err != nil {
			return nil, err
		}
	}

	scope.Commit()
	return b, nil
}

func (c *Context) newBuffer(usage gpu.BufferUsage, props gpu.MemoryProperty, size uint64, name string) (*Buffer, error) {
	var scope Scope
	defer scope.Release()

	handle, reqs, err := c.Device.CreateBuffer(gpu.BufferInfo{Size: size, Usage: usage})
	if err != nil {
		err = fmt.Errorf("failed to create buffer `%s`: %w", name, err)
		core.LogError(err.Error())
		return nil, err
	}
	var mem gpu.DeviceMemory
	// the buffer goes before its memory
	scope.Defer(func() {
		c.Device.DestroyBuffer(handle)
		c.Device.FreeMemory(mem)
	})

	if mem, err = c.allocate(reqs, props); err != nil {
		return nil, err
	}

	if err := c.Device.BindBufferMemory(handle, mem, 0); err != nil {
		err = fmt.Errorf("failed to bind memory of buffer `%s`: %w", name, err)
		core.LogError(err.Error())
		return nil, err
	}

	scope.Commit()
	return &Buffer{
		Name:       c.track(kindBuffer, uint64(handle), name),
		Handle:     handle,
		Memory:     mem,
		Size:       size,
		Usage:      usage,
		Properties: props,
		ctx:        c,
	}, nil
}

// Destroy releases the buffer and then its memory. It is safe to call on a
// nil or already destroyed buffer.
func (b *Buffer) Destroy() {
	if b == nil || b.Handle == 0 {
		return
	}
	b.ctx.Device.DestroyBuffer(b.Handle)
	b.ctx.Device.FreeMemory(b.Memory)
	b.ctx.untrack(kindBuffer, uint64(b.Handle))
	b.Handle = 0
	b.Memory = 0
}

// Write copies data into a host visible buffer at offset.
func (b *Buffer) Write(offset uint64, data []byte) error {
	dst, err := b.mapRange(offset, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(dst, data)
	b.ctx.Device.UnmapMemory(b.Memory)
	return nil
}

// Read returns a copy of size bytes of a host visible buffer at offset.
func (b *Buffer) Read(offset, size uint64) ([]byte, error) {
	src, err := b.mapRange(offset, size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, src)
	b.ctx.Device.UnmapMemory(b.Memory)
	return out, nil
}

func (b *Buffer) mapRange(offset, size uint64) ([]byte, error) {
	if b.Properties&gpu.MemoryPropertyHostVisible == 0 {
		return nil, fmt.Errorf("buffer `%s`: %w", b.Name, ErrNotHostVisible)
	}
	if offset+size > b.Size {
		return nil, fmt.Errorf("buffer `%s`: range [%d,%d) out of bounds", b.Name, offset, offset+size)
	}
	data, err := b.ctx.Device.MapMemory(b.Memory, offset, size)
	if err != nil {
		err = fmt.Errorf("failed to map buffer `%s`: %w", b.Name, err)
		core.LogError(err.Error())
		return nil, err
	}
	return data, nil
}

// CopyBuffer copies size bytes from src to dst on a one-shot command buffer
// and waits for completion.
func (c *Context) CopyBuffer(src, dst *Buffer, size uint64) error {
	return c.SingleTimeCommands(func(cb *CommandBuffer) error {
		cb.CmdCopyBuffer(src, dst, size)
		return nil
	})
}
