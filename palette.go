package bndither

import "image/color"

// BWPalette is the two-entry palette for 1-bit dithered output.
var BWPalette = color.Palette{
	color.RGBA{0, 0, 0, 255},       // black
	color.RGBA{255, 255, 255, 255}, // white
}

// ColorPalette is the eight-entry palette for 3-bit dithered output. The
// order is load-bearing: paletteIndex maps channel presence to positions
// in this table, and the PNG encoder writes indices against it.
var ColorPalette = color.Palette{
	color.RGBA{0, 0, 0, 255},       // black
	color.RGBA{255, 255, 255, 255}, // white
	color.RGBA{255, 0, 0, 255},     // red
	color.RGBA{0, 255, 0, 255},     // green
	color.RGBA{0, 0, 255, 255},     // blue
	color.RGBA{255, 255, 0, 255},   // yellow
	color.RGBA{255, 0, 255, 255},   // magenta
	color.RGBA{0, 255, 255, 255},   // cyan
}

// paletteIndex maps which of the R, G, B channels are non-zero to the
// ColorPalette index.
func paletteIndex(r, g, b uint8) uint8 {
	switch {
	case r == 0 && g == 0 && b == 0:
		return 0
	case r != 0 && g != 0 && b != 0:
		return 1
	case r != 0 && g == 0 && b == 0:
		return 2
	case r == 0 && g != 0 && b == 0:
		return 3
	case r == 0 && g == 0 && b != 0:
		return 4
	case r != 0 && g != 0 && b == 0:
		return 5
	case r != 0 && g == 0 && b != 0:
		return 6
	default: // r == 0 && g != 0 && b != 0
		return 7
	}
}
