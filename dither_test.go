package bndither

import (
	"bytes"
	"errors"
	"testing"
)

// pinOffsets forces known offsets and keeps them across dither calls.
func pinOffsets(im *Image, offsets [3]uint32) {
	im.SetOffsets(offsets)
	im.PreserveOffsets = true
}

func grayImage(w, h int, data []byte) *Image {
	im := New(w, h, true)
	copy(im.Data, data)
	return im
}

func TestGrayscaleDitherThreshold(t *testing.T) {
	d := NewCPUDitherer()

	im := grayImage(2, 1, []byte{100, 200})
	pinOffsets(im, [3]uint32{0, 1, 2})
	noise := grayImage(1, 1, []byte{150})

	out, err := d.GrayscaleDither(im, noise)
	if err != nil {
		t.Fatalf("GrayscaleDither() error = %v", err)
	}
	if out.Dither != DitherBW1 || !out.Grayscale {
		t.Fatalf("result state: dither=%v grayscale=%v", out.Dither, out.Grayscale)
	}
	want := []byte{0, 255}
	if !bytes.Equal(out.Data, want) {
		t.Errorf("data = %v, want %v", out.Data, want)
	}
}

func TestColorDitherThreshold(t *testing.T) {
	d := NewCPUDitherer()

	im := New(1, 1, false)
	copy(im.Data, []byte{128, 0, 200, 255})
	pinOffsets(im, [3]uint32{0, 0, 0})
	noise := grayImage(1, 1, []byte{127})

	out, err := d.ColorDither(im, noise)
	if err != nil {
		t.Fatalf("ColorDither() error = %v", err)
	}
	if out.Dither != DitherColor3 {
		t.Fatalf("result dither state = %v, want DitherColor3", out.Dither)
	}
	want := []byte{255, 0, 255, 255}
	if !bytes.Equal(out.Data, want) {
		t.Errorf("data = %v, want %v", out.Data, want)
	}
}

func TestGrayscaleDitherOffsetWrap(t *testing.T) {
	d := NewCPUDitherer()

	im := grayImage(2, 2, []byte{200, 200, 200, 200})
	pinOffsets(im, [3]uint32{1, 2, 3})
	noise := grayImage(2, 2, []byte{10, 250, 50, 100})

	out, err := d.GrayscaleDither(im, noise)
	if err != nil {
		t.Fatalf("GrayscaleDither() error = %v", err)
	}
	// offset 1 permutes the thresholds to [250 10; 100 50].
	want := []byte{0, 255, 255, 255}
	if !bytes.Equal(out.Data, want) {
		t.Errorf("data = %v, want %v", out.Data, want)
	}
}

func TestGrayscaleDitherIdempotent(t *testing.T) {
	d := NewCPUDitherer()

	im := grayImage(4, 4, bytes.Repeat([]byte{30, 90, 150, 220}, 4))
	pinOffsets(im, [3]uint32{5, 6, 7})
	noise := grayImage(2, 2, []byte{60, 120, 180, 240})

	first, err := d.GrayscaleDither(im, noise)
	if err != nil {
		t.Fatalf("first dither error = %v", err)
	}
	for i, v := range first.Data {
		if v != 0 && v != 255 {
			t.Fatalf("sample %d = %d, want 0 or 255", i, v)
		}
	}

	second, err := d.GrayscaleDither(first, noise)
	if err != nil {
		t.Fatalf("second dither error = %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Error("re-dithering with the same noise and offset is not a fixed point")
	}
}

func TestColorDitherStableAcrossFrames(t *testing.T) {
	d := NewCPUDitherer()

	noise := grayImage(2, 2, []byte{40, 90, 160, 210})
	frame := New(4, 4, false)
	for i := 0; i < len(frame.Data); i += 4 {
		frame.Data[i] = 120
		frame.Data[i+1] = 60
		frame.Data[i+2] = 200
		frame.Data[i+3] = 255
	}
	frame.PreserveOffsets = true
	frame.SeedOffsets(99)

	first, err := d.ColorDither(frame, noise)
	if err != nil {
		t.Fatalf("first frame error = %v", err)
	}
	second, err := d.ColorDither(frame, noise)
	if err != nil {
		t.Fatalf("second frame error = %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Error("identical frames with preserved offsets dithered differently")
	}
}

func TestDitherValidation(t *testing.T) {
	d := NewCPUDitherer()
	rgbaNoise := New(1, 1, false)
	grayNoise := New(1, 1, true)

	t.Run("noise must be grayscale", func(t *testing.T) {
		im := New(1, 1, true)
		if _, err := d.GrayscaleDither(im, rgbaNoise); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
	})
	t.Run("color path needs rgba input", func(t *testing.T) {
		im := New(1, 1, true)
		if _, err := d.ColorDither(im, grayNoise); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
	})
	t.Run("invalid input image", func(t *testing.T) {
		im := &Image{Width: 2, Height: 2, Grayscale: true}
		if _, err := d.GrayscaleDither(im, grayNoise); !errors.Is(err, ErrInvalidImage) {
			t.Errorf("error = %v, want ErrInvalidImage", err)
		}
	})
}

func TestDitherOnePixel(t *testing.T) {
	d := NewCPUDitherer()
	im := grayImage(1, 1, []byte{200})
	pinOffsets(im, [3]uint32{0, 1, 2})
	noise := grayImage(1, 1, []byte{100})

	out, err := d.GrayscaleDither(im, noise)
	if err != nil {
		t.Fatalf("GrayscaleDither() error = %v", err)
	}
	if out.Data[0] != 255 {
		t.Errorf("data = %v, want [255]", out.Data)
	}
}

func TestColorDitherRejectsGrayInput(t *testing.T) {
	d := NewCPUDitherer()
	im := grayImage(3, 3, bytes.Repeat([]byte{128}, 9))
	noise := grayImage(1, 1, []byte{127})
	if _, err := d.ColorDither(im, noise); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestGrayscaleDitherFromColorInput(t *testing.T) {
	d := NewCPUDitherer()

	// A color input runs through the grayscale conversion first.
	im := New(2, 1, false)
	copy(im.Data, []byte{
		255, 255, 255, 255,
		0, 0, 0, 255,
	})
	pinOffsets(im, [3]uint32{0, 1, 2})
	noise := grayImage(1, 1, []byte{127})

	out, err := d.GrayscaleDither(im, noise)
	if err != nil {
		t.Fatalf("GrayscaleDither() error = %v", err)
	}
	want := []byte{255, 0}
	if !bytes.Equal(out.Data, want) {
		t.Errorf("data = %v, want %v", out.Data, want)
	}
}

// TestCoprimeDimensionsDither uses the serial-tile fallback geometry:
// 17x19 is coprime with every candidate tile size (2..16 for a
// 256-invocation workgroup), so TileSizes yields (1, 1); such an image
// still dithers.
func TestCoprimeDimensionsDither(t *testing.T) {
	d := NewCPUDitherer()
	im := New(17, 19, true)
	for i := range im.Data {
		im.Data[i] = byte(i * 3)
	}
	pinOffsets(im, [3]uint32{0, 1, 2})
	noise := grayImage(3, 3, []byte{10, 60, 110, 160, 210, 250, 30, 80, 130})

	out, err := d.GrayscaleDither(im, noise)
	if err != nil {
		t.Fatalf("GrayscaleDither() error = %v", err)
	}
	for i, v := range out.Data {
		if v != 0 && v != 255 {
			t.Fatalf("sample %d = %d, want 0 or 255", i, v)
		}
	}
}
