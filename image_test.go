package bndither

import (
	"errors"
	"testing"
)

func TestNewImageLayout(t *testing.T) {
	tests := []struct {
		name      string
		width     int
		height    int
		grayscale bool
		wantSize  int
	}{
		{"grayscale 4x3", 4, 3, true, 12},
		{"rgba 4x3", 4, 3, false, 48},
		{"1x1 grayscale", 1, 1, true, 1},
		{"1x1 rgba", 1, 1, false, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := New(tt.width, tt.height, tt.grayscale)
			if !im.Valid() {
				t.Fatal("Valid() = false, want true")
			}
			if im.Size() != tt.wantSize {
				t.Errorf("Size() = %d, want %d", im.Size(), tt.wantSize)
			}
		})
	}
}

func TestImageValid(t *testing.T) {
	tests := []struct {
		name string
		im   *Image
		want bool
	}{
		{"nil image", nil, false},
		{"empty buffer", &Image{Width: 2, Height: 2, Grayscale: true}, false},
		{"grayscale exact", &Image{Data: make([]byte, 6), Width: 3, Height: 2, Grayscale: true}, true},
		{"grayscale short", &Image{Data: make([]byte, 5), Width: 3, Height: 2, Grayscale: true}, false},
		{"rgba exact", &Image{Data: make([]byte, 24), Width: 3, Height: 2}, true},
		{"rgba short", &Image{Data: make([]byte, 23), Width: 3, Height: 2}, false},
		{"zero width", &Image{Data: make([]byte, 4), Width: 0, Height: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.im.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestImageClone(t *testing.T) {
	im := New(2, 2, true)
	copy(im.Data, []byte{1, 2, 3, 4})
	im.SetOffsets([3]uint32{7, 8, 9})

	clone := im.Clone()
	if clone.Offsets() != im.Offsets() {
		t.Errorf("clone offsets = %v, want %v", clone.Offsets(), im.Offsets())
	}
	clone.Data[0] = 99
	if im.Data[0] != 1 {
		t.Error("mutating a clone changed the original buffer")
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	if _, err := Load("picture.bmp"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Load() error = %v, want ErrUnsupported", err)
	}
}
