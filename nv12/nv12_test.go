package nv12

import (
	"errors"
	"testing"
)

func TestFrameSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		w, h, want int
	}{
		{2, 2, 6},
		{640, 480, 460800},
		{1280, 720, 1382400},
		{1600, 1200, 2880000},
		{1920, 1080, 3110400},
	}
	for _, tt := range tests {
		if got := FrameSize(tt.w, tt.h); got != tt.want {
			t.Errorf("FrameSize(%d, %d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestCheckGeometry(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		w, h    int
		wantErr bool
		oddErr  bool
	}{
		{"valid", 640, 480, false, false},
		{"minimal", 2, 2, false, false},
		{"zero width", 0, 480, true, false},
		{"zero height", 640, 0, true, false},
		{"negative", -2, 480, true, false},
		{"odd width", 641, 480, true, true},
		{"odd height", 640, 481, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckGeometry(tt.w, tt.h)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckGeometry(%d, %d) = %v, wantErr %t", tt.w, tt.h, err, tt.wantErr)
			}
			if tt.oddErr && !errors.Is(err, ErrOddDimensions) {
				t.Errorf("expected ErrOddDimensions, got %v", err)
			}
		})
	}
}

func TestAllocFree(t *testing.T) {
	t.Parallel()
	buf := Alloc(640, 480)
	if len(buf) != FrameSize(640, 480) {
		t.Fatalf("Alloc returned %d bytes, want %d", len(buf), FrameSize(640, 480))
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("fresh buffer not zeroed at byte %d", i)
		}
	}

	// Dirty the buffer, recycle it, and check a pooled reuse comes back zeroed.
	for i := range buf {
		buf[i] = 0xFF
	}
	Free(buf)

	again := Alloc(640, 480)
	if len(again) != FrameSize(640, 480) {
		t.Fatalf("reused buffer is %d bytes, want %d", len(again), FrameSize(640, 480))
	}
	for i, b := range again {
		if b != 0 {
			t.Fatalf("reused buffer not zeroed at byte %d", i)
		}
	}
	Free(again)
}

func TestAllocInvalidDimensions(t *testing.T) {
	t.Parallel()
	if buf := Alloc(0, 480); buf != nil {
		t.Errorf("Alloc(0, 480) = %d bytes, want nil", len(buf))
	}
	if buf := Alloc(640, -2); buf != nil {
		t.Errorf("Alloc(640, -2) = %d bytes, want nil", len(buf))
	}
}

func TestAllocMixedResolutions(t *testing.T) {
	t.Parallel()
	// Interleave geometries so Alloc sees pooled buffers both larger and
	// smaller than requested; every result must still be exact-size and
	// zeroed.
	dims := []struct{ w, h int }{{32, 16}, {640, 480}, {32, 16}, {1280, 720}, {64, 48}}
	for _, d := range dims {
		buf := Alloc(d.w, d.h)
		if len(buf) != FrameSize(d.w, d.h) {
			t.Fatalf("Alloc(%d, %d) returned %d bytes, want %d", d.w, d.h, len(buf), FrameSize(d.w, d.h))
		}
		for i, b := range buf {
			if b != 0 {
				t.Fatalf("Alloc(%d, %d): buffer not zeroed at byte %d", d.w, d.h, i)
			}
		}
		for i := range buf {
			buf[i] = 0xFF
		}
		Free(buf)
	}
}

func TestFreeNilAndEmpty(t *testing.T) {
	t.Parallel()
	Free(nil)
	Free([]byte{})
}
