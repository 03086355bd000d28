package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

const fenceTimeout = 100 * time.Millisecond

// Context is a command-recording context for texture transfers, implementing
// texres.UploadContext. Each Context must only ever be used from one thread
// at a time: the upload worker owns one instance, the render thread another,
// so Vulkan command recording state never needs a lock.
type Context struct {
	device        core1_0.Device
	queue         core1_0.Queue
	commandBuffer core1_0.CommandBuffer

	allocationCallbacks *driver.AllocationCallbacks

	recording bool

	// Staging resources recorded into the open command buffer. They are kept
	// alive until the submission that consumes them has completed.
	pendingBuffers  []core1_0.Buffer
	pendingMemories []core1_0.DeviceMemory
}

// NewContext wraps a device, transfer-capable queue, and command buffer into
// an upload context. The command buffer must be resettable and is reused
// across flushes.
func NewContext(device core1_0.Device, queue core1_0.Queue, commandBuffer core1_0.CommandBuffer, allocationCallbacks *driver.AllocationCallbacks) (*Context, error) {
	if device == nil {
		return nil, errors.New("vulkan.NewContext requires a device")
	}
	if queue == nil {
		return nil, errors.New("vulkan.NewContext requires a queue")
	}
	if commandBuffer == nil {
		return nil, errors.New("vulkan.NewContext requires a command buffer")
	}

	return &Context{
		device:              device,
		queue:               queue,
		commandBuffer:       commandBuffer,
		allocationCallbacks: allocationCallbacks,
	}, nil
}

// beginRecording opens the command buffer if no recording is in progress.
func (c *Context) beginRecording() (core1_0.CommandBuffer, error) {
	if c.recording {
		return c.commandBuffer, nil
	}

	_, err := c.commandBuffer.Reset(0)
	if err != nil {
		return nil, err
	}
	_, err = c.commandBuffer.Begin(core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return nil, err
	}

	c.recording = true
	return c.commandBuffer, nil
}

// holdStaging keeps a staging buffer and its memory alive until the next
// FlushCommandList completes.
func (c *Context) holdStaging(buffer core1_0.Buffer, memory core1_0.DeviceMemory) {
	c.pendingBuffers = append(c.pendingBuffers, buffer)
	c.pendingMemories = append(c.pendingMemories, memory)
}

// FlushCommandList submits the recorded transfer commands, waits for them to
// complete, and releases the staging resources they consumed. A no-op when
// nothing was recorded.
func (c *Context) FlushCommandList() error {
	if !c.recording {
		return nil
	}
	c.recording = false

	_, err := c.commandBuffer.End()
	if err != nil {
		return err
	}

	fence, _, err := c.device.CreateFence(c.allocationCallbacks, core1_0.FenceCreateInfo{})
	if err != nil {
		return err
	}
	defer fence.Destroy(c.allocationCallbacks)

	_, err = c.queue.Submit(fence, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{c.commandBuffer},
		},
	})
	if err != nil {
		return err
	}

	for {
		res, err := c.device.WaitForFences(true, fenceTimeout, []core1_0.Fence{fence})
		if err != nil {
			return err
		}
		if res != core1_0.VKTimeout {
			break
		}
	}

	c.releaseStaging()
	return nil
}

func (c *Context) releaseStaging() {
	for _, buffer := range c.pendingBuffers {
		buffer.Destroy(c.allocationCallbacks)
	}
	for _, memory := range c.pendingMemories {
		memory.Free(c.allocationCallbacks)
	}
	c.pendingBuffers = nil
	c.pendingMemories = nil
}

// Destroy releases any staging resources still held. The command buffer and
// queue are caller-owned and are not destroyed.
func (c *Context) Destroy() {
	c.releaseStaging()
}
