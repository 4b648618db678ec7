package bndither

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// Load decodes the file at path into an Image. The file type is chosen by
// extension, case-insensitively: .png, .pgm, or .ppm.
func Load(path string) (*Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return loadPNG(path)
	case ".pgm":
		return loadPNM(path, false)
	case ".ppm":
		return loadPNM(path, true)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))
	}
}

// loadPNG decodes a PNG. One-channel sources become grayscale; everything
// else is normalized to interleaved RGBA with A=255 for opaque inputs.
func loadPNG(path string) (*Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("bndither: open %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	src, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrDecode, path, err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	switch s := src.(type) {
	case *image.Gray:
		im := New(w, h, true)
		for y := 0; y < h; y++ {
			copy(im.Data[y*w:(y+1)*w], s.Pix[y*s.Stride:y*s.Stride+w])
		}
		return im, nil
	case *image.Gray16:
		// 16-bit gray scales down to the top 8 bits.
		gray := image.NewGray(bounds)
		xdraw.Draw(gray, bounds, s, bounds.Min, xdraw.Src)
		im := New(w, h, true)
		for y := 0; y < h; y++ {
			copy(im.Data[y*w:(y+1)*w], gray.Pix[y*gray.Stride:y*gray.Stride+w])
		}
		return im, nil
	default:
		nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
		xdraw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, xdraw.Src)
		im := New(w, h, false)
		for y := 0; y < h; y++ {
			copy(im.Data[y*4*w:(y+1)*4*w], nrgba.Pix[y*nrgba.Stride:y*nrgba.Stride+4*w])
		}
		return im, nil
	}
}
