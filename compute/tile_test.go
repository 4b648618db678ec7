package compute

import "testing"

func TestTileSizes(t *testing.T) {
	tests := []struct {
		name      string
		preferred int
		width     int
		height    int
		want0     int
		want1     int
	}{
		{"exact square fit", 256, 64, 32, 16, 16},
		{"width reduces", 256, 100, 60, 10, 15},
		{"small prime dims divide themselves", 256, 7, 13, 7, 13},
		{"prime width beyond tile", 256, 97, 64, 1, 16},
		{"one by one", 256, 1, 1, 1, 1},
		{"tiny preferred", 1, 100, 100, 1, 1},
		{"zero preferred clamps", 0, 8, 8, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got0, got1 := TileSizes(tt.preferred, tt.width, tt.height)
			if got0 != tt.want0 || got1 != tt.want1 {
				t.Errorf("TileSizes(%d, %d, %d) = (%d, %d), want (%d, %d)",
					tt.preferred, tt.width, tt.height, got0, got1, tt.want0, tt.want1)
			}
		})
	}
}

func TestTileSizesDivideExtents(t *testing.T) {
	for _, dim := range []struct{ w, h int }{
		{1, 1}, {2, 3}, {640, 480}, {1920, 1080}, {641, 479},
	} {
		t0, t1 := TileSizes(256, dim.w, dim.h)
		if t0 > 1 && dim.w%t0 != 0 {
			t.Errorf("width %d not divisible by tile %d", dim.w, t0)
		}
		if t1 > 1 && dim.h%t1 != 0 {
			t.Errorf("height %d not divisible by tile %d", dim.h, t1)
		}
	}
}
