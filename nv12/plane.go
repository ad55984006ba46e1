package nv12

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Plane is a view of one plane inside a stride-padded image buffer.
// Stride is the byte distance between the starts of consecutive rows
// and may exceed the logical row width due to alignment padding.
type Plane struct {
	Data   []byte
	Stride int
}

// ErrShortBuffer is returned when a buffer cannot hold the plane
// geometry it is asked to carry.
var ErrShortBuffer = errors.New("nv12: buffer too short for plane geometry")

// parallelRowThreshold is the frame height above which plane copies are
// split across worker goroutines. Rows never alias, so the split is
// safe; below the threshold the goroutine overhead outweighs the win.
const parallelRowThreshold = 720

// Pack copies a flat NV12 frame into stride-padded Y and UV planes.
// Rows beyond the logical width (the stride padding) are left untouched.
func Pack(y, uv Plane, src []byte, width, height int) error {
	if err := CheckGeometry(width, height); err != nil {
		return err
	}
	if len(src) < FrameSize(width, height) {
		return fmt.Errorf("%w: flat source has %d bytes, need %d", ErrShortBuffer, len(src), FrameSize(width, height))
	}
	luma := width * height
	if err := transfer(y.Data, y.Stride, src[:luma], width, width, height); err != nil {
		return fmt.Errorf("Y plane: %w", err)
	}
	// Each UV row carries width bytes: width/2 interleaved U,V pairs.
	if err := transfer(uv.Data, uv.Stride, src[luma:], width, width, height/2); err != nil {
		return fmt.Errorf("UV plane: %w", err)
	}
	return nil
}

// Unpack copies stride-padded Y and UV planes into a flat NV12 frame,
// dropping any stride padding.
func Unpack(dst []byte, y, uv Plane, width, height int) error {
	if err := CheckGeometry(width, height); err != nil {
		return err
	}
	if len(dst) < FrameSize(width, height) {
		return fmt.Errorf("%w: flat destination has %d bytes, need %d", ErrShortBuffer, len(dst), FrameSize(width, height))
	}
	luma := width * height
	if err := transfer(dst[:luma], width, y.Data, y.Stride, width, height); err != nil {
		return fmt.Errorf("Y plane: %w", err)
	}
	if err := transfer(dst[luma:luma+width*height/2], width, uv.Data, uv.Stride, width, height/2); err != nil {
		return fmt.Errorf("UV plane: %w", err)
	}
	return nil
}

// transfer copies rows*rowBytes of pixel data between two strided
// buffers. When both strides equal the row width the planes are
// contiguous and a single bulk copy suffices; otherwise rows are copied
// independently, in parallel for tall planes.
func transfer(dst []byte, dstStride int, src []byte, srcStride int, rowBytes, rows int) error {
	if rowBytes <= 0 || rows <= 0 {
		return nil
	}
	if dstStride < rowBytes || srcStride < rowBytes {
		return fmt.Errorf("%w: stride %d/%d below row width %d", ErrShortBuffer, dstStride, srcStride, rowBytes)
	}
	// The final row needs only rowBytes, not a full stride.
	if need := (rows-1)*dstStride + rowBytes; len(dst) < need {
		return fmt.Errorf("%w: destination has %d bytes, need %d", ErrShortBuffer, len(dst), need)
	}
	if need := (rows-1)*srcStride + rowBytes; len(src) < need {
		return fmt.Errorf("%w: source has %d bytes, need %d", ErrShortBuffer, len(src), need)
	}

	if dstStride == rowBytes && srcStride == rowBytes {
		copy(dst[:rows*rowBytes], src)
		return nil
	}

	if rows < parallelRowThreshold {
		copyRows(dst, dstStride, src, srcStride, rowBytes, 0, rows)
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > rows {
		workers = rows
	}
	var g errgroup.Group
	band := (rows + workers - 1) / workers
	for start := 0; start < rows; start += band {
		end := start + band
		if end > rows {
			end = rows
		}
		g.Go(func() error {
			copyRows(dst, dstStride, src, srcStride, rowBytes, start, end)
			return nil
		})
	}
	return g.Wait()
}

func copyRows(dst []byte, dstStride int, src []byte, srcStride int, rowBytes, from, to int) {
	for r := from; r < to; r++ {
		copy(dst[r*dstStride:r*dstStride+rowBytes], src[r*srcStride:r*srcStride+rowBytes])
	}
}
