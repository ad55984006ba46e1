// Package rawio reads and writes single raw NV12 frames as flat files,
// for feeding the codec sessions from capture dumps and inspecting
// their output.
package rawio

import (
	"fmt"
	"os"

	"github.com/vframe/hwjpeg/nv12"
)

// ReadFrame reads exactly one NV12 frame of the given geometry from
// path. A file of any other size is an error.
func ReadFrame(path string, width, height int) ([]byte, error) {
	if err := nv12.CheckGeometry(width, height); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rawio: %w", err)
	}
	if want := nv12.FrameSize(width, height); len(data) != want {
		return nil, fmt.Errorf("rawio: %s is %d bytes, want %d for %dx%d", path, len(data), want, width, height)
	}
	return data, nil
}

// WriteFrame writes one flat NV12 frame of the given geometry to path.
func WriteFrame(path string, buf []byte, width, height int) error {
	if err := nv12.CheckGeometry(width, height); err != nil {
		return err
	}
	if want := nv12.FrameSize(width, height); len(buf) != want {
		return fmt.Errorf("rawio: frame is %d bytes, want %d for %dx%d", len(buf), want, width, height)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("rawio: %w", err)
	}
	return nil
}
