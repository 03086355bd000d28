package texres

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/restex/mipmem"
)

// Statistics returns a snapshot of the residency population across the
// texture cache.
func (m *Manager) Statistics() mipmem.Statistics {
	m.queueMutex.Lock()
	defer m.queueMutex.Unlock()

	var stats mipmem.Statistics
	stats.Clear()

	m.textures.Iter(func(hash uint64, texture *ManagedTexture) bool {
		stats.TextureCount++
		switch texture.State() {
		case StateHostMem:
			stats.HostMemCount++
		case StateQueuedForUpload:
			stats.QueuedCount++
		case StateVidMem:
			stats.VidMemCount++
		case StateFailed:
			stats.FailedCount++
		}
		stats.HostBytes += texture.hostBytes()
		stats.DeviceBytes += texture.deviceBytes()
		return false
	})

	return stats
}

// BuildStatsString returns a JSON description of the manager's residency
// population, for logging and offline inspection. With detailedMap set, a
// per-texture breakdown is included.
func (m *Manager) BuildStatsString(detailedMap bool) string {
	stats := m.Statistics()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	statsObj := obj.Name("Total").Object()
	statsObj.Name("TextureCount").Int(stats.TextureCount)
	statsObj.Name("HostMemCount").Int(stats.HostMemCount)
	statsObj.Name("QueuedCount").Int(stats.QueuedCount)
	statsObj.Name("VidMemCount").Int(stats.VidMemCount)
	statsObj.Name("FailedCount").Int(stats.FailedCount)
	statsObj.Name("HostBytes").Int(stats.HostBytes)
	statsObj.Name("DeviceBytes").Int(stats.DeviceBytes)
	statsObj.End()

	obj.Name("MinMipLevel").Int(m.MinMipLevel())

	if detailedMap {
		m.queueMutex.Lock()
		texArray := obj.Name("Textures").Array()
		m.textures.Iter(func(hash uint64, texture *ManagedTexture) bool {
			texObj := texArray.Object()
			texture.printParameters(&texObj)
			texObj.End()
			return false
		})
		texArray.End()
		m.queueMutex.Unlock()
	}

	obj.End()
	return string(writer.Bytes())
}

func (t *ManagedTexture) printParameters(json *jwriter.ObjectState) {
	json.Name("Name").String(t.assetData.Name())
	json.Name("Hash").String(fmt.Sprintf("%016x", t.assetData.Hash()))
	json.Name("State").String(t.State().String())
	json.Name("MipLevels").Int(t.futureImageDesc.MipLevels)
	json.Name("NumLargeMips").Int(t.numLargeMips)
	json.Name("HostBytes").Int(t.hostBytes())
	json.Name("DeviceBytes").Int(t.deviceBytes())

	if !t.canDemote {
		json.Name("Pinned").Bool(true)
	}
}
