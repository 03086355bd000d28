package mipmem

// mipmem provides arithmetic over texture mip chains: per-level extents, byte
// footprints for contiguous mip ranges, and footprint estimates under a global
// mip-skip policy. All sizes assume tightly-packed linear texel data.

// MipLevelDim returns one dimension of a mip level. Each level halves the
// previous one, with a floor of 1 texel.
func MipLevelDim(baseDim, level int) int {
	dim := baseDim >> uint(level)
	if dim < 1 {
		return 1
	}
	return dim
}

// MipChainLevels returns the number of levels in a full mip chain for the
// given base extent- the count of halvings until every dimension reaches 1,
// plus one for the base level.
func MipChainLevels(width, height int) int {
	largest := width
	if height > largest {
		largest = height
	}

	levels := 1
	for largest > 1 {
		largest >>= 1
		levels++
	}
	return levels
}

// MipLevelBytes returns the byte size of a single mip level of a 2D texture
// with texelSize bytes per texel.
func MipLevelBytes(width, height, level, texelSize int) int {
	return MipLevelDim(width, level) * MipLevelDim(height, level) * texelSize
}

// MipRangeBytes returns the byte size of levelCount consecutive mip levels
// beginning at firstLevel.
func MipRangeBytes(width, height, firstLevel, levelCount, texelSize int) int {
	var total int
	for level := firstLevel; level < firstLevel+levelCount; level++ {
		total += MipLevelBytes(width, height, level, texelSize)
	}
	return total
}

// FootprintAfterSkip returns the estimated byte footprint of an asset set
// after skipping skipLevels top mip levels. Each skipped level quarters the
// footprint- the dominant cost of a mip chain is its largest level.
func FootprintAfterSkip(footprint, skipLevels int) int {
	for i := 0; i < skipLevels; i++ {
		footprint /= 4
	}
	return footprint
}
