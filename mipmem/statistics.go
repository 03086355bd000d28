package mipmem

// Statistics describes the residency population of a texture manager at a
// point in time.
type Statistics struct {
	// TextureCount is the total number of managed textures
	TextureCount int
	// HostMemCount is the number of textures whose mip data is resident in host memory only
	HostMemCount int
	// QueuedCount is the number of textures awaiting or undergoing promotion
	QueuedCount int
	// VidMemCount is the number of textures with a current, bindable device image
	VidMemCount int
	// FailedCount is the number of textures whose last promotion attempt failed
	FailedCount int

	// HostBytes is the total byte size of host-resident mip payloads
	HostBytes int
	// DeviceBytes is the total byte size of device-resident images
	DeviceBytes int
}

func (s *Statistics) Clear() {
	s.TextureCount = 0
	s.HostMemCount = 0
	s.QueuedCount = 0
	s.VidMemCount = 0
	s.FailedCount = 0
	s.HostBytes = 0
	s.DeviceBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.TextureCount += other.TextureCount
	s.HostMemCount += other.HostMemCount
	s.QueuedCount += other.QueuedCount
	s.VidMemCount += other.VidMemCount
	s.FailedCount += other.FailedCount
	s.HostBytes += other.HostBytes
	s.DeviceBytes += other.DeviceBytes
}
