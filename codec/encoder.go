package codec

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vframe/hwjpeg/nv12"
)

// Encoder is a persistent hardware encode session bound to a fixed
// (width, height, quality). Each EncodeToBuffer call drives exactly one
// NV12 frame through a submit-then-drain cycle on the underlying
// hardware handle.
//
// An Encoder is not safe for concurrent use; parallel throughput
// requires one Encoder per worker goroutine.
type Encoder struct {
	log     *slog.Logger
	backend EncoderBackend
	width   int
	height  int
	quality int
	pts     int64
	closed  bool
}

// NewEncoder opens a hardware encode handle permanently bound to the
// given configuration and pre-allocates its frame and output storage.
// If log is nil, slog.Default() is used. Any failure releases all
// partially-acquired resources before returning.
func NewEncoder(engine Engine, cfg EncoderConfig, log *slog.Logger) (*Encoder, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := nv12.CheckGeometry(cfg.Width, cfg.Height); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Quality < 1 || cfg.Quality > 31 {
		return nil, fmt.Errorf("%w: quality %d outside 1..31", ErrInvalidConfig, cfg.Quality)
	}

	backend, err := engine.OpenEncoder(cfg)
	if err != nil {
		return nil, fmt.Errorf("codec: open encoder: %w", err)
	}

	return &Encoder{
		log:     log.With("component", "encoder"),
		backend: backend,
		width:   cfg.Width,
		height:  cfg.Height,
		quality: cfg.Quality,
	}, nil
}

// Width returns the frame width the session is bound to.
func (e *Encoder) Width() int { return e.width }

// Height returns the frame height the session is bound to.
func (e *Encoder) Height() int { return e.height }

// Quality returns the fixed quantization parameter the session is bound to.
func (e *Encoder) Quality() int { return e.quality }

// MaxOutputSize returns the upper bound the backend guarantees for any
// unit this session can produce; a dst of this size never trips
// InsufficientBufferError. True compressed size is typically 5x-100x
// smaller depending on quality.
func (e *Encoder) MaxOutputSize() int {
	return e.backend.MaxUnitSize()
}

// EncodeToBuffer encodes one flat NV12 frame into dst and returns the
// number of compressed bytes written. src must hold exactly one frame
// of the session's geometry.
//
// If dst is too small for the produced unit, the call fails with
// *InsufficientBufferError reporting the exact required size; nothing
// is written and the dequeued unit is discarded, so retrying with a
// larger buffer re-encodes the frame. Size dst with MaxOutputSize to
// avoid this. Each successful call stamps the next sequential
// presentation timestamp, starting at 0.
func (e *Encoder) EncodeToBuffer(src, dst []byte) (int, error) {
	if e == nil || e.closed {
		return 0, ErrSessionClosed
	}
	if want := nv12.FrameSize(e.width, e.height); len(src) != want {
		return 0, fmt.Errorf("codec: input frame is %d bytes, want %d for %dx%d", len(src), want, e.width, e.height)
	}

	frame := e.backend.Frame()
	if err := nv12.Pack(frame.Y, frame.UV, src, e.width, e.height); err != nil {
		return 0, fmt.Errorf("codec: pack frame: %w", err)
	}

	if err := e.backend.Submit(e.pts); err != nil {
		return 0, &HardwareError{Op: "submit", Err: err}
	}
	e.pts++

	data, err := e.drain()
	if err != nil {
		return 0, err
	}

	if len(dst) < len(data) {
		return 0, &InsufficientBufferError{Required: len(data), Capacity: len(dst)}
	}
	return copy(dst, data), nil
}

// drain retrieves the one compressed unit a submit must produce. With
// GOP size one every unit is independently encodable, so the result is
// expected synchronously; if the hardware still reports not-ready, one
// end-of-stream flush is issued and the drain retried exactly once.
func (e *Encoder) drain() ([]byte, error) {
	data, err := e.backend.Poll()
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotReady) {
		return nil, &HardwareError{Op: "drain", Err: err}
	}

	// Unclear whether an intra-only single-buffered pipeline can reach
	// this in normal operation; warn so deployments can tell.
	e.log.Warn("unit not ready after submit, flushing once", "pts", e.pts-1)
	if err := e.backend.Flush(); err != nil {
		return nil, &HardwareError{Op: "flush", Err: err}
	}
	data, err = e.backend.Poll()
	if err != nil {
		return nil, &HardwareError{Op: "drain after flush", Err: err}
	}
	return data, nil
}

// Close releases the hardware handle and all buffers. It is safe to
// call on a nil or already-closed session.
func (e *Encoder) Close() error {
	if e == nil || e.closed {
		return nil
	}
	e.closed = true
	return e.backend.Close()
}
