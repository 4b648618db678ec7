package bndither

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ColorToGray converts one RGB sample to gray using Rec. 709 luminance
// weights and the sRGB transfer encode. The companding step goes through
// go-colorful's LinearRgb, which applies the exact piecewise sRGB curve.
func ColorToGray(r, g, b uint8) uint8 {
	yLinear := 0.2126*float64(r)/255.0 +
		0.7152*float64(g)/255.0 +
		0.0722*float64(b)/255.0
	encoded := colorful.LinearRgb(yLinear, yLinear, yLinear)
	return uint8(math.Round(encoded.R * 255.0))
}

// ToGrayscale returns a grayscale rendition of the image. Grayscale
// images come back as plain clones.
func (im *Image) ToGrayscale() *Image {
	if im.Grayscale {
		return im.Clone()
	}

	out := New(im.Width, im.Height, true)
	for i := 0; i < im.Width*im.Height; i++ {
		out.Data[i] = ColorToGray(im.Data[i*4], im.Data[i*4+1], im.Data[i*4+2])
	}
	return out
}
