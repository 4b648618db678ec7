package video

import (
	"testing"

	"github.com/asticode/go-astiav"

	"github.com/gpukit/bndither"
)

// TestEncodeConverterRebuildOnToggle covers the encode-side converter
// lifecycle: created lazily for the current dither mode, kept while the
// mode is stable, freed and rebuilt when grayscale toggles.
func TestEncodeConverterRebuildOnToggle(t *testing.T) {
	v := New("input.mkv", nil)
	defer v.Close()

	colorImg := bndither.New(4, 4, false)
	for i := 0; i < len(colorImg.Data); i += 4 {
		colorImg.Data[i] = 255
		colorImg.Data[i+3] = 255
	}

	frame, err := v.convertToYUV(colorImg, 4, 4, false)
	if err != nil {
		t.Fatalf("convertToYUV(color) error = %v", err)
	}
	if frame.PixelFormat() != astiav.PixelFormatYuv444P {
		t.Errorf("frame pixel format = %v, want YUV444P", frame.PixelFormat())
	}
	if frame.Width() != 4 || frame.Height() != 4 {
		t.Errorf("frame dims = %dx%d, want 4x4", frame.Width(), frame.Height())
	}
	frame.Free()
	if v.encSws == nil {
		t.Fatal("encode-side converter not created")
	}
	first := v.encSws

	// Same mode: converter is kept.
	if changed := v.resetConverterOnToggle(false); changed {
		t.Error("resetConverterOnToggle(false) = true on stable mode")
	}
	if v.encSws != first {
		t.Error("stable mode replaced the converter")
	}

	// Toggle to grayscale: converter is freed and rebuilt with a GRAY8
	// source on the next conversion.
	if changed := v.resetConverterOnToggle(true); !changed {
		t.Fatal("resetConverterOnToggle(true) = false, want toggle")
	}
	if v.encSws != nil {
		t.Fatal("converter not freed on mode toggle")
	}

	grayImg := bndither.New(4, 4, true)
	for i := range grayImg.Data {
		grayImg.Data[i] = 255
	}
	frame, err = v.convertToYUV(grayImg, 4, 4, true)
	if err != nil {
		t.Fatalf("convertToYUV(gray) error = %v", err)
	}
	if frame.PixelFormat() != astiav.PixelFormatYuv444P {
		t.Errorf("frame pixel format = %v, want YUV444P", frame.PixelFormat())
	}
	frame.Free()
	if v.encSws == nil {
		t.Fatal("converter not rebuilt after toggle")
	}
	if v.encSws == first {
		t.Error("toggle reused the freed converter")
	}

	// Toggling back rebuilds again for the RGBA source.
	if changed := v.resetConverterOnToggle(false); !changed {
		t.Fatal("resetConverterOnToggle(false) = false after grayscale run")
	}
	if v.encSws != nil {
		t.Fatal("converter not freed on toggle back to color")
	}
}
