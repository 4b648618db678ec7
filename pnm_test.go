package bndither

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDecodePGMPlain(t *testing.T) {
	path := writeTemp(t, "a.pgm", []byte("P2\n2 2\n255\n0 128\n255 64\n"))
	im, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !im.Grayscale || im.Width != 2 || im.Height != 2 {
		t.Fatalf("got %dx%d grayscale=%v", im.Width, im.Height, im.Grayscale)
	}
	want := []byte{0, 128, 255, 64}
	if !bytes.Equal(im.Data, want) {
		t.Errorf("data = %v, want %v", im.Data, want)
	}
}

func TestDecodePGMRaw(t *testing.T) {
	data := append([]byte("P5\n3 1\n255\n"), 0, 100, 255)
	path := writeTemp(t, "a.pgm", data)
	im, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []byte{0, 100, 255}
	if !bytes.Equal(im.Data, want) {
		t.Errorf("data = %v, want %v", im.Data, want)
	}
}

func TestDecodePGMRaw16Bit(t *testing.T) {
	// Samples are little-endian; scaling keeps the top 8 bits within ±1.
	data := append([]byte("P5\n2 1\n65535\n"),
		0x34, 0x12, // 0x1234
		0xff, 0xff, // 0xffff
	)
	path := writeTemp(t, "a.pgm", data)
	im, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if im.Data[1] != 255 {
		t.Errorf("data[1] = %d, want 255", im.Data[1])
	}
	diff := int(im.Data[0]) - 0x12
	if diff < -1 || diff > 1 {
		t.Errorf("data[0] = %d, want 0x12 within ±1", im.Data[0])
	}
}

func TestDecodePGMRawBadMax(t *testing.T) {
	path := writeTemp(t, "a.pgm", []byte("P5\n1 1\n1000\n\x00"))
	if _, err := Load(path); !errors.Is(err, ErrDecode) {
		t.Errorf("Load() error = %v, want ErrDecode", err)
	}
}

func TestDecodePGMBadMagic(t *testing.T) {
	path := writeTemp(t, "a.pgm", []byte("P3\n1 1\n255\n0 0 0\n"))
	if _, err := Load(path); !errors.Is(err, ErrDecode) {
		t.Errorf("Load() error = %v, want ErrDecode", err)
	}
}

func TestDecodePPMPlain(t *testing.T) {
	path := writeTemp(t, "a.ppm", []byte("P3\n1 2\n255\n1 2 3\n4 5 6\n"))
	im, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if im.Grayscale {
		t.Fatal("PPM decoded as grayscale")
	}
	want := []byte{1, 2, 3, 255, 4, 5, 6, 255}
	if !bytes.Equal(im.Data, want) {
		t.Errorf("data = %v, want %v", im.Data, want)
	}
}

func TestDecodePPMRawMaxScaled(t *testing.T) {
	data := append([]byte("P6\n1 1\n65535\n"),
		0xff, 0xff, 0x00, 0x80, 0x00, 0x00)
	path := writeTemp(t, "a.ppm", data)
	im, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// 0xffff scales to 255, 0x8000 to 128, 0x0000 to 0; alpha filled opaque.
	want := []byte{255, 128, 0, 255}
	if !bytes.Equal(im.Data, want) {
		t.Errorf("data = %v, want %v", im.Data, want)
	}
}

func TestPPMRawRoundTrip(t *testing.T) {
	src := append([]byte("P6\n2 2\n255\n"),
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12)
	path := writeTemp(t, "a.ppm", src)
	im, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.ppm")
	if err := im.SaveAsPPM(out, false, true); err != nil {
		t.Fatalf("SaveAsPPM() error = %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, src) {
		t.Errorf("round trip mismatch:\ngot  %q\nwant %q", got, src)
	}
}
