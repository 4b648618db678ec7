package bndither

import (
	"bytes"
	"testing"
)

// TestDitherDeviceMatchesCPU verifies the device and CPU paths produce
// identical bytes. Skipped when no compute device is available.
func TestDitherDeviceMatchesCPU(t *testing.T) {
	gpu := NewDitherer()
	defer gpu.Close()
	if !gpu.OnDevice() {
		t.Skip("no compute device available")
	}
	cpu := NewCPUDitherer()

	noise := New(4, 4, true)
	for i := range noise.Data {
		noise.Data[i] = byte((i * 37) % 251)
	}

	t.Run("grayscale", func(t *testing.T) {
		im := New(16, 8, true)
		for i := range im.Data {
			im.Data[i] = byte(i * 2)
		}
		pinOffsets(im, [3]uint32{3, 17, 29})

		fromGPU, err := gpu.GrayscaleDither(im, noise)
		if err != nil {
			t.Fatalf("device dither error = %v", err)
		}
		fromCPU, err := cpu.GrayscaleDither(im, noise)
		if err != nil {
			t.Fatalf("cpu dither error = %v", err)
		}
		if !bytes.Equal(fromGPU.Data, fromCPU.Data) {
			t.Error("device and CPU grayscale results differ")
		}
	})

	t.Run("color", func(t *testing.T) {
		im := New(16, 8, false)
		for i := range im.Data {
			if i%4 == 3 {
				im.Data[i] = 255
				continue
			}
			im.Data[i] = byte(i * 5)
		}
		pinOffsets(im, [3]uint32{3, 17, 29})

		fromGPU, err := gpu.ColorDither(im, noise)
		if err != nil {
			t.Fatalf("device dither error = %v", err)
		}
		fromCPU, err := cpu.ColorDither(im, noise)
		if err != nil {
			t.Fatalf("cpu dither error = %v", err)
		}
		if !bytes.Equal(fromGPU.Data, fromCPU.Data) {
			t.Error("device and CPU color results differ")
		}
	})

	t.Run("resize invalidates cached buffers", func(t *testing.T) {
		small := New(4, 4, true)
		pinOffsets(small, [3]uint32{1, 2, 3})
		if _, err := gpu.GrayscaleDither(small, noise); err != nil {
			t.Fatalf("small dither error = %v", err)
		}
		big := New(8, 8, true)
		for i := range big.Data {
			big.Data[i] = byte(i * 4)
		}
		pinOffsets(big, [3]uint32{1, 2, 3})
		fromGPU, err := gpu.GrayscaleDither(big, noise)
		if err != nil {
			t.Fatalf("resized dither error = %v", err)
		}
		fromCPU, err := cpu.GrayscaleDither(big, noise)
		if err != nil {
			t.Fatalf("cpu dither error = %v", err)
		}
		if !bytes.Equal(fromGPU.Data, fromCPU.Data) {
			t.Error("results differ after buffer reallocation")
		}
	})
}
