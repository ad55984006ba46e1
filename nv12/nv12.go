// Package nv12 provides geometry math, buffer recycling, and plane
// transfer primitives for NV12 (semi-planar 4:2:0) frames: a
// full-resolution Y plane followed by an interleaved half-resolution
// UV plane.
package nv12

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOddDimensions is returned when a frame geometry cannot describe an
// NV12 image. Chroma subsampling requires both dimensions to be even.
var ErrOddDimensions = errors.New("nv12: width and height must be even")

// FrameSize returns the number of bytes in a flat NV12 frame of the
// given geometry: w*h luma bytes plus w*h/2 interleaved chroma bytes.
func FrameSize(width, height int) int {
	return width * height * 3 / 2
}

// CheckGeometry validates that (width, height) describes an NV12 frame.
func CheckGeometry(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("nv12: invalid dimensions %dx%d", width, height)
	}
	if width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("%w (got %dx%d)", ErrOddDimensions, width, height)
	}
	return nil
}

// bufPool recycles frame buffers across Alloc/Free cycles. Buffers are
// pooled by pointer to avoid an allocation per Put.
var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0)
		return &b
	},
}

// Alloc returns a zeroed buffer of exactly FrameSize(width, height)
// bytes, reusing a pooled buffer when one with sufficient capacity is
// available. It returns nil for non-positive dimensions.
func Alloc(width, height int) []byte {
	if width <= 0 || height <= 0 {
		return nil
	}
	size := FrameSize(width, height)

	p := bufPool.Get().(*[]byte)
	if cap(*p) < size {
		// Too small for this geometry; put it back for smaller frames
		// rather than dropping it.
		bufPool.Put(p)
		return make([]byte, size)
	}
	b := (*p)[:size]
	for i := range b {
		b[i] = 0
	}
	return b
}

// Free returns a buffer obtained from Alloc to the pool. It is
// idempotent in effect and a no-op on nil or empty buffers.
func Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	b := buf[:0]
	bufPool.Put(&b)
}
