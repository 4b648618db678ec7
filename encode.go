package bndither

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// SaveAsPNG encodes the image to path. Dithered images are written as
// paletted PNGs: the 1-bit two-entry palette for DitherBW1 and the 4-bit
// eight-entry palette for DitherColor3 (two pixels per byte, high nibble
// first, the standard PNG packing). Continuous-tone images are written as
// 8-bit gray or 8-bit RGBA.
//
// An existing file is refused unless overwrite is true. The existence
// check is stat-then-create; there is no TOCTOU guarantee.
func (im *Image) SaveAsPNG(path string, overwrite bool) error {
	if !im.Valid() {
		return ErrInvalidImage
	}
	if err := checkTarget(path, overwrite); err != nil {
		return err
	}

	var encoded image.Image
	switch {
	case im.Dither == DitherBW1 && im.Grayscale:
		p := image.NewPaletted(image.Rect(0, 0, im.Width, im.Height), BWPalette)
		for y := 0; y < im.Height; y++ {
			for x := 0; x < im.Width; x++ {
				if im.Data[x+y*im.Width] != 0 {
					p.Pix[x+y*p.Stride] = 1
				}
			}
		}
		encoded = p
	case im.Dither == DitherColor3 && !im.Grayscale:
		p := image.NewPaletted(image.Rect(0, 0, im.Width, im.Height), ColorPalette)
		for y := 0; y < im.Height; y++ {
			for x := 0; x < im.Width; x++ {
				i := 4 * (x + y*im.Width)
				p.Pix[x+y*p.Stride] = paletteIndex(im.Data[i], im.Data[i+1], im.Data[i+2])
			}
		}
		encoded = p
	case im.Grayscale:
		encoded = &image.Gray{Pix: im.Data, Stride: im.Width, Rect: image.Rect(0, 0, im.Width, im.Height)}
	default:
		encoded = &image.NRGBA{Pix: im.Data, Stride: 4 * im.Width, Rect: image.Rect(0, 0, im.Width, im.Height)}
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("%w: create %q: %v", ErrEncode, path, err)
	}
	if err := png.Encode(f, encoded); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %q: %v", ErrEncode, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %q: %v", ErrEncode, path, err)
	}
	return nil
}

// SaveAsPPM encodes the image to path as PPM, raw "P6" when packed is
// true and plain "P3" otherwise. Grayscale samples are replicated to
// three channels; alpha is dropped. The overwrite policy matches
// SaveAsPNG.
func (im *Image) SaveAsPPM(path string, overwrite, packed bool) error {
	if !im.Valid() {
		return ErrInvalidImage
	}
	if err := checkTarget(path, overwrite); err != nil {
		return err
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("%w: create %q: %v", ErrEncode, path, err)
	}
	w := bufio.NewWriter(f)

	writeErr := func() error {
		if packed {
			if _, err := fmt.Fprintf(w, "P6\n%d %d\n255\n", im.Width, im.Height); err != nil {
				return err
			}
			for y := 0; y < im.Height; y++ {
				for x := 0; x < im.Width; x++ {
					r, g, b := im.rgbAt(x, y)
					if err := w.WriteByte(r); err != nil {
						return err
					}
					if err := w.WriteByte(g); err != nil {
						return err
					}
					if err := w.WriteByte(b); err != nil {
						return err
					}
				}
			}
			return nil
		}
		if _, err := fmt.Fprintf(w, "P3\n%d %d\n255\n", im.Width, im.Height); err != nil {
			return err
		}
		for y := 0; y < im.Height; y++ {
			for x := 0; x < im.Width; x++ {
				r, g, b := im.rgbAt(x, y)
				if _, err := fmt.Fprintf(w, "%d %d %d ", r, g, b); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		return nil
	}()
	if writeErr == nil {
		writeErr = w.Flush()
	}
	if writeErr != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %q: %v", ErrEncode, path, writeErr)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %q: %v", ErrEncode, path, err)
	}
	return nil
}

// rgbAt returns the RGB triple at (x, y), replicating grayscale samples.
func (im *Image) rgbAt(x, y int) (uint8, uint8, uint8) {
	if im.Grayscale {
		v := im.Data[x+y*im.Width]
		return v, v, v
	}
	i := 4 * (x + y*im.Width)
	return im.Data[i], im.Data[i+1], im.Data[i+2]
}

// checkTarget refuses to clobber an existing file unless overwrite.
func checkTarget(path string, overwrite bool) error {
	if overwrite {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %q", ErrAlreadyExists, path)
	}
	return nil
}
