package codec

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vframe/hwjpeg/nv12"
)

// Decoder is a persistent hardware decode session. Unlike Encoder it is
// not bound to a resolution: the geometry of every incoming unit is
// read from the hardware result, so one session can decode a mix of
// frame sizes.
//
// A Decoder is not safe for concurrent use; parallel throughput
// requires one Decoder per worker goroutine.
type Decoder struct {
	log     *slog.Logger
	backend DecoderBackend
	closed  bool
}

// NewDecoder opens a hardware decode handle (and, where the
// acceleration backend requires it, a hardware device context) and
// pre-allocates its frame-result and packet storage. If log is nil,
// slog.Default() is used.
func NewDecoder(engine Engine, log *slog.Logger) (*Decoder, error) {
	if log == nil {
		log = slog.Default()
	}
	backend, err := engine.OpenDecoder()
	if err != nil {
		return nil, fmt.Errorf("codec: open decoder: %w", err)
	}
	return &Decoder{
		log:     log.With("component", "decoder"),
		backend: backend,
	}, nil
}

// DecodeToBuffer decodes one self-contained compressed unit into dst as
// a flat NV12 frame and returns the decoded width and height. src is
// borrowed only for the duration of the call.
//
// The decoded geometry is read from the hardware result; callers never
// pre-declare it. If the decoded pixel format is not NV12 the call
// fails with *FormatError. If dst cannot hold width*height*3/2 bytes
// the call fails with *InsufficientBufferError and writes nothing.
func (d *Decoder) DecodeToBuffer(src, dst []byte) (width, height int, err error) {
	if d == nil || d.closed {
		return 0, 0, ErrSessionClosed
	}
	if len(src) == 0 {
		return 0, 0, errors.New("codec: empty compressed input")
	}

	if err := d.backend.Submit(src); err != nil {
		return 0, 0, &HardwareError{Op: "submit", Err: err}
	}

	frame, err := d.backend.Poll()
	if err != nil {
		return 0, 0, &HardwareError{Op: "drain", Err: err}
	}
	defer d.backend.Release()

	if frame.Format != "nv12" {
		return 0, 0, &FormatError{Got: frame.Format}
	}

	required := nv12.FrameSize(frame.Width, frame.Height)
	if len(dst) < required {
		return 0, 0, &InsufficientBufferError{Required: required, Capacity: len(dst)}
	}

	if err := nv12.Unpack(dst[:required], frame.Y, frame.UV, frame.Width, frame.Height); err != nil {
		return 0, 0, fmt.Errorf("codec: unpack frame: %w", err)
	}
	return frame.Width, frame.Height, nil
}

// Close releases frame and packet storage, the codec handle, and any
// device context. It is safe to call on a nil or already-closed session.
func (d *Decoder) Close() error {
	if d == nil || d.closed {
		return nil
	}
	d.closed = true
	return d.backend.Close()
}
