// Package codec provides persistent hardware transcoding sessions
// between flat NV12 frames and single-image MJPEG units. Sessions hold
// one hardware codec handle and pre-allocated buffers, created once and
// reused across many calls so per-call hardware setup is amortized away.
package codec

import "github.com/vframe/hwjpeg/nv12"

// HardwareFrame is a view of one stride-padded hardware frame buffer.
// For the encode direction it is the session's pre-allocated input
// staging area; for the decode direction it is the hardware result,
// valid only until the backend's Release.
type HardwareFrame struct {
	Width  int
	Height int
	Format string // pixel format name as reported by the hardware, "nv12" expected
	Y      nv12.Plane
	UV     nv12.Plane
}

// EncoderConfig carries the three parameters a hardware encode handle
// is permanently bound to. Changing any of them requires destroying and
// recreating the session.
type EncoderConfig struct {
	Width  int
	Height int
	// Quality is the fixed quantization parameter, 1..31 inclusive.
	// Lower means higher fidelity and larger output.
	Quality int
}

// EncoderBackend is one open hardware encode handle. Implementations
// are driven by Encoder in a strict submit-then-drain cycle and are not
// safe for concurrent use.
type EncoderBackend interface {
	// Frame returns the pre-allocated stride-padded input frame storage.
	// Callers fill its planes, honoring the reported strides, before Submit.
	Frame() *HardwareFrame

	// MaxUnitSize returns an upper bound on the size of any compressed
	// unit this handle can produce. Output buffers of this size never
	// trip InsufficientBufferError.
	MaxUnitSize() int

	// Submit queues the current contents of Frame as exactly one unit of
	// work, stamped with the given presentation timestamp.
	Submit(pts int64) error

	// Poll retrieves one compressed unit. It returns ErrNotReady when the
	// unit has not completed and ErrEndOfStream when the pipeline has
	// drained. The returned bytes are owned by the backend and valid only
	// until the next Poll or Submit.
	Poll() ([]byte, error)

	// Flush signals end-of-stream to the hardware so a pending unit can
	// drain. The backend must accept new Submit calls afterward.
	Flush() error

	Close() error
}

// DecoderBackend is one open hardware decode handle. The resolution of
// each incoming unit is discovered per call, not fixed at open time.
type DecoderBackend interface {
	// Submit queues one compressed unit as one unit of work. data is
	// borrowed for the duration of the call only and is never retained.
	Submit(data []byte) error

	// Poll retrieves one decoded frame result. The returned view and its
	// planes are valid only until Release.
	Poll() (*HardwareFrame, error)

	// Release frees the most recent Poll result so the handle is ready
	// for its next unit.
	Release()

	Close() error
}

// Engine is the hardware acceleration capability sessions are built on.
// Each opened backend owns an independent hardware handle; handles are
// not shareable across sessions or goroutines.
type Engine interface {
	OpenEncoder(cfg EncoderConfig) (EncoderBackend, error)
	OpenDecoder() (DecoderBackend, error)
}
