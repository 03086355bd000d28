package mipmem

import "github.com/pkg/errors"

// PowerOfTwoError is returned from CheckPow2 when an alignment or granularity
// value that must be a power of two is not one
var PowerOfTwoError error = errors.New("number must be a power of two")
