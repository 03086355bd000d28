package texres

import (
	"time"

	"golang.org/x/exp/slog"
)

// uploadThrottleInterval is how long the worker dozes while waiting for the
// frame counter to move past the frame a texture was queued in. A coarse
// heuristic- exact timing is not a correctness contract.
const uploadThrottleInterval = time.Millisecond

// runWorker is the upload worker loop. It drains the queue in FIFO order,
// performs promotions through the store, and advances each texture's state.
// A single texture's failure never stops the worker.
func (m *Manager) runWorker() {
	defer close(m.workerDone)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic on texture manager worker", slog.Any("panic", r))
		}
	}()

	alwaysWait := m.flags&ManagerCreateAlwaysWaitForUploads != 0

	var texture *ManagedTexture

	for {
		m.queueMutex.Lock()
		if texture != nil {
			// The previous iteration's texture is fully accounted for now
			m.texturesPending--
			if m.texturesPending == 0 {
				m.condOnSync.Broadcast()
			}
			texture = nil
		}

		for len(m.textureQueue) == 0 && !m.stopped.Load() && !m.kickoff.Load() {
			m.condOnAdd.Wait()
		}

		if m.stopped.Load() {
			m.queueMutex.Unlock()
			return
		}

		if len(m.textureQueue) > 0 {
			texture = m.textureQueue[0]
			m.textureQueue = m.textureQueue[1:]
		}
		m.queueMutex.Unlock()

		if m.kickoff.Load() || m.dropRequests.Load() {
			if m.io != nil {
				m.io.Flush(!m.dropRequests.Load())
			}
			m.kickoff.Store(false)
		}

		if texture == nil {
			continue
		}

		// Wait until the frame after the texture was queued, so that frames
		// creating many textures are not also lengthened by their uploads.
		// An external I/O engine schedules its own dispatches and needs no
		// such cooldown.
		if m.io == nil {
			for !m.dropRequests.Load() && !m.stopped.Load() && !alwaysWait &&
				texture.frameQueuedForUpload >= m.frames.CurrentFrameID() {
				time.Sleep(uploadThrottleInterval)
			}
		}

		if m.dropRequests.Load() {
			texture.setState(StateFailed)
			// Pinned textures keep their device data through Demote, but the
			// streamed payload of the aborted upload is dead weight either way
			texture.releaseLargeMips()
			texture.Demote()
			m.logger.Debug("dropped queued texture upload",
				slog.String("texture", texture.assetData.Name()),
				slog.Any("error", DroppedError))
		} else {
			m.uploadTexture(texture)
		}
	}
}

// uploadTexture performs one texture's asynchronous promotion on the worker:
// load the streamed mip payload, copy it into the device image, flush the
// worker's command list, and release the host payload. Under external I/O
// offload the load dispatches to the engine instead and completion is
// observed later through the texture's syncpt.
func (m *Manager) uploadTexture(texture *ManagedTexture) {
	if texture.State() != StateQueuedForUpload {
		return
	}

	err := m.store.LoadTexture(m.workerCtx, texture, ApertureHost, MipsToLoadLarge, 0)

	if err == nil && m.io == nil {
		err = m.store.PromoteHostToVid(m.workerCtx, texture, 0)
		if err == nil {
			err = m.workerCtx.FlushCommandList()
		}
	}

	if err != nil {
		texture.setState(StateFailed)
		m.logger.Error("failed to finish texture promotion to VidMem",
			slog.String("texture", texture.assetData.Name()),
			slog.Any("error", err))
		return
	}

	if m.io == nil {
		texture.releaseLargeMips()
		texture.setState(StateVidMem)
	}
}
