package rawio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vframe/hwjpeg/nv12"
)

func TestFrameRoundtrip(t *testing.T) {
	t.Parallel()
	const w, h = 64, 48
	src := make([]byte, nv12.FrameSize(w, h))
	nv12.FillGradient(src, w, h, 2)

	path := filepath.Join(t.TempDir(), "frame.nv12")
	if err := WriteFrame(path, src, w, h); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(path, w, h)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(src, got) {
		t.Error("read frame differs from written frame")
	}
}

func TestReadFrameWrongSize(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "short.nv12")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFrame(path, 64, 48); err == nil {
		t.Error("expected error for wrong-size file")
	}
}

func TestReadFrameMissing(t *testing.T) {
	t.Parallel()
	_, err := ReadFrame(filepath.Join(t.TempDir(), "nope.nv12"), 64, 48)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want wrapped os.ErrNotExist", err)
	}
}

func TestGeometryRejected(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "frame.nv12")
	if _, err := ReadFrame(path, 63, 48); !errors.Is(err, nv12.ErrOddDimensions) {
		t.Errorf("ReadFrame: got %v, want ErrOddDimensions", err)
	}
	if err := WriteFrame(path, nil, 0, 48); err == nil {
		t.Error("WriteFrame: expected error for zero width")
	}
}
