package mipmem

import (
	cerrors "github.com/cockroachdb/errors"
)

// Number covers the integer types device-reported alignment values arrive as.
type Number interface {
	~int | ~uint
}

// CheckPow2 validates that a device-reported alignment or granularity value is
// a power of two, as staging offset arithmetic requires.
func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a
// power of two.
func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}
