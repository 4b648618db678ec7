package compute

import "math"

// TileSizes picks 2-D local work sizes for an image dispatch. Starting
// from floor(sqrt(preferred)), each dimension is reduced until it divides
// the corresponding image extent. Some runtimes require exact
// divisibility of global by local size; this satisfies it without
// querying capability bits. A (1, 1) result is a valid serial fallback.
func TileSizes(preferred, width, height int) (int, int) {
	if preferred < 1 {
		preferred = 1
	}
	tile0 := int(math.Sqrt(float64(preferred)))
	if tile0 < 1 {
		tile0 = 1
	}
	tile1 := tile0

	for tile0 > 1 && width%tile0 != 0 {
		tile0--
	}
	for tile1 > 1 && height%tile1 != 0 {
		tile1--
	}
	return tile0, tile1
}
