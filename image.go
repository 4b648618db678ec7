// Package bndither dithers images to small fixed palettes with blue-noise
// threshold dithering executed on a compute device.
//
// An Image is a byte-level pixel container: one byte per pixel for
// grayscale, four interleaved R,G,B,A bytes per pixel otherwise. The
// Ditherer runs the grayscale (1-bit) and color (3-bit R/G/B) kernels
// against a grayscale blue-noise threshold texture, on the GPU when one
// is available and on the CPU otherwise.
package bndither

import "log/slog"

// DitherState records which palette an Image's samples were quantized to.
type DitherState uint8

const (
	// DitherNone marks a continuous-tone image.
	DitherNone DitherState = iota
	// DitherBW1 marks a grayscale image quantized to the 1-bit palette.
	DitherBW1
	// DitherColor3 marks an RGBA image whose R, G, B channels were
	// quantized to the 3-bit palette.
	DitherColor3
)

// Image is an in-memory image.
//
// Layout: grayscale images hold Width*Height bytes, row-major, one byte
// per pixel. Non-grayscale images hold 4*Width*Height bytes as
// interleaved R,G,B,A with A=255 for opaque sources. A dithered image's
// samples are all exactly 0 or 255.
type Image struct {
	Data   []byte
	Width  int
	Height int

	// Grayscale selects the one-byte-per-pixel layout.
	Grayscale bool

	// Dither records the palette the samples were quantized to.
	Dither DitherState

	// PreserveOffsets keeps the blue-noise channel offsets stable across
	// dither calls. Video sets this to avoid inter-frame flicker; still
	// images leave it false and get fresh offsets per call.
	PreserveOffsets bool

	offsets    [3]uint32
	offsetRand randSource
}

// New returns an empty image of the given geometry with freshly generated
// blue-noise offsets.
func New(width, height int, grayscale bool) *Image {
	im := &Image{
		Width:     width,
		Height:    height,
		Grayscale: grayscale,
	}
	size := width * height
	if !grayscale {
		size *= 4
	}
	if size > 0 {
		im.Data = make([]byte, size)
	}
	im.regenerateOffsets()
	return im
}

// Valid reports whether the buffer matches the dimensions and chroma.
func (im *Image) Valid() bool {
	if im == nil || len(im.Data) == 0 || im.Width <= 0 || im.Height <= 0 {
		return false
	}
	if im.Grayscale {
		return len(im.Data) == im.Width*im.Height
	}
	return len(im.Data) == 4*im.Width*im.Height
}

// Size returns the number of bytes in the image buffer.
func (im *Image) Size() int { return len(im.Data) }

// Offsets returns the current blue-noise channel offsets.
func (im *Image) Offsets() [3]uint32 { return im.offsets }

// Clone returns a deep copy sharing no buffer with the receiver. The
// offset state is copied so a clone dithers identically.
func (im *Image) Clone() *Image {
	out := *im
	out.Data = make([]byte, len(im.Data))
	copy(out.Data, im.Data)
	return &out
}

// SetLogger sets the structured logger used by the bndither packages.
// The default logger is silent. A nil logger restores the default.
func SetLogger(l *slog.Logger) { setLogger(l) }
