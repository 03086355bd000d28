package texres

import "github.com/cockroachdb/errors"

// DecodeError marks failures to decode or allocate host mip data from an
// asset's backing bytes- corrupt or unsupported source data.
var DecodeError error = errors.New("texture decode failed")

// DeviceResourceError marks device image or device memory allocation
// failures, including device-lost conditions.
var DeviceResourceError error = errors.New("device resource failure")

// DroppedError marks uploads that were administratively cancelled through
// Manager.Synchronize with dropRequests set. It is not a true failure- the
// texture can be rescheduled once the drop window has passed.
var DroppedError error = errors.New("texture upload dropped")
