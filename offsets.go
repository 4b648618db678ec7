package bndither

import (
	"math/rand"
	"time"
)

// OffsetMax bounds the blue-noise channel offsets. A large multiple of
// any practical noise tile area, so offsets wrap through distinct phases
// of the tile.
const OffsetMax = 1 << 24

type randSource = *rand.Rand

// SeedOffsets replaces the image's offset source with a deterministic one
// and regenerates the offsets, for reproducible dithering in tests.
func (im *Image) SeedOffsets(seed int64) {
	im.offsetRand = rand.New(rand.NewSource(seed))
	im.regenerateOffsets()
}

// SetOffsets forces the blue-noise offsets. Values are taken as given;
// use SeedOffsets for generated ones.
func (im *Image) SetOffsets(offsets [3]uint32) { im.offsets = offsets }

// regenerateOffsets resamples all three offsets until pairwise distinct,
// so the R, G, B channels read uncorrelated phases of the noise tile.
func (im *Image) regenerateOffsets() {
	if im.offsetRand == nil {
		im.offsetRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	for {
		for i := range im.offsets {
			im.offsets[i] = uint32(im.offsetRand.Intn(OffsetMax))
		}
		if im.offsets[0] != im.offsets[1] &&
			im.offsets[1] != im.offsets[2] &&
			im.offsets[0] != im.offsets[2] {
			return
		}
	}
}
