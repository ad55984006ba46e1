// Package codectest provides an in-memory loopback Engine for
// exercising code built on codec sessions without hardware. Its
// "compressed" unit is a small header plus the flat NV12 payload, so
// encode-then-decode round-trips are byte exact.
package codectest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/vframe/hwjpeg/codec"
	"github.com/vframe/hwjpeg/nv12"
)

const headerSize = 16 // width, height uint32 + pts int64, big endian

// Engine is a loopback implementation of codec.Engine with fault
// injection knobs. The zero value is a working lossless engine whose
// plane strides equal the frame width.
type Engine struct {
	// RowPadding adds this many bytes of stride padding to every plane
	// row on both the encode and decode side, forcing the per-row copy
	// paths in sessions under test.
	RowPadding int

	// NotReadyPolls makes the next n encoder polls report not-ready
	// before the unit becomes available.
	NotReadyPolls int

	// SubmitErr, when set, is returned by every backend submit.
	SubmitErr error

	// DecodeFormat overrides the pixel format name decoded frames
	// report. Empty means "nv12".
	DecodeFormat string

	mu          sync.Mutex
	openCount   int
	closeCount  int
	flushCount  int
	submittedTS []int64
}

// OpenCount returns how many backends the engine has opened.
func (e *Engine) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openCount
}

// CloseCount returns how many opened backends have been closed.
func (e *Engine) CloseCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeCount
}

// FlushCount returns how many encoder flushes have been issued.
func (e *Engine) FlushCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushCount
}

// SubmittedTimestamps returns the PTS values of all submitted frames in
// submission order.
func (e *Engine) SubmittedTimestamps() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int64, len(e.submittedTS))
	copy(out, e.submittedTS)
	return out
}

// OpenEncoder implements codec.Engine.
func (e *Engine) OpenEncoder(cfg codec.EncoderConfig) (codec.EncoderBackend, error) {
	stride := cfg.Width + e.RowPadding
	staging := make([]byte, stride*cfg.Height+stride*cfg.Height/2)
	b := &encoderBackend{
		engine: e,
		cfg:    cfg,
		view: codec.HardwareFrame{
			Width:  cfg.Width,
			Height: cfg.Height,
			Format: "nv12",
			Y:      nv12.Plane{Data: staging[:stride*cfg.Height], Stride: stride},
			UV:     nv12.Plane{Data: staging[stride*cfg.Height:], Stride: stride},
		},
		notReadyLeft: e.NotReadyPolls,
	}
	e.mu.Lock()
	e.openCount++
	e.mu.Unlock()
	return b, nil
}

// OpenDecoder implements codec.Engine.
func (e *Engine) OpenDecoder() (codec.DecoderBackend, error) {
	e.mu.Lock()
	e.openCount++
	e.mu.Unlock()
	return &decoderBackend{engine: e}, nil
}

type encoderBackend struct {
	engine       *Engine
	cfg          codec.EncoderConfig
	view         codec.HardwareFrame
	pending      []byte
	notReadyLeft int
	closed       bool
}

func (b *encoderBackend) Frame() *codec.HardwareFrame { return &b.view }

func (b *encoderBackend) MaxUnitSize() int {
	return headerSize + nv12.FrameSize(b.cfg.Width, b.cfg.Height)
}

func (b *encoderBackend) Submit(pts int64) error {
	if b.closed {
		return errors.New("codectest: submit on closed encoder")
	}
	if err := b.engine.SubmitErr; err != nil {
		return err
	}

	w, h := b.cfg.Width, b.cfg.Height
	unit := make([]byte, headerSize+nv12.FrameSize(w, h))
	binary.BigEndian.PutUint32(unit[0:], uint32(w))
	binary.BigEndian.PutUint32(unit[4:], uint32(h))
	binary.BigEndian.PutUint64(unit[8:], uint64(pts))
	flatten(unit[headerSize:], b.view, w, h)
	b.pending = unit

	b.engine.mu.Lock()
	b.engine.submittedTS = append(b.engine.submittedTS, pts)
	b.engine.mu.Unlock()
	return nil
}

func (b *encoderBackend) Poll() ([]byte, error) {
	if b.notReadyLeft > 0 {
		b.notReadyLeft--
		return nil, codec.ErrNotReady
	}
	if b.pending == nil {
		return nil, codec.ErrEndOfStream
	}
	unit := b.pending
	b.pending = nil
	return unit, nil
}

func (b *encoderBackend) Flush() error {
	b.engine.mu.Lock()
	b.engine.flushCount++
	b.engine.mu.Unlock()
	return nil
}

func (b *encoderBackend) Close() error {
	b.closed = true
	b.engine.mu.Lock()
	b.engine.closeCount++
	b.engine.mu.Unlock()
	return nil
}

type decoderBackend struct {
	engine  *Engine
	pending []byte
	frame   codec.HardwareFrame
	planes  []byte
	closed  bool
}

func (b *decoderBackend) Submit(data []byte) error {
	if b.closed {
		return errors.New("codectest: submit on closed decoder")
	}
	if err := b.engine.SubmitErr; err != nil {
		return err
	}
	if len(data) < headerSize {
		return fmt.Errorf("codectest: undecodable unit of %d bytes", len(data))
	}
	// Borrowed for the duration of the call only: snapshot it.
	b.pending = append(b.pending[:0], data...)
	return nil
}

func (b *decoderBackend) Poll() (*codec.HardwareFrame, error) {
	if b.pending == nil {
		return nil, codec.ErrEndOfStream
	}
	unit := b.pending
	b.pending = nil

	w := int(binary.BigEndian.Uint32(unit[0:]))
	h := int(binary.BigEndian.Uint32(unit[4:]))
	if len(unit) != headerSize+nv12.FrameSize(w, h) {
		return nil, fmt.Errorf("codectest: corrupt unit: %d bytes for %dx%d", len(unit), w, h)
	}

	format := b.engine.DecodeFormat
	if format == "" {
		format = "nv12"
	}

	stride := w + b.engine.RowPadding
	need := stride*h + stride*h/2
	if cap(b.planes) < need {
		b.planes = make([]byte, need)
	}
	b.planes = b.planes[:need]
	b.frame = codec.HardwareFrame{
		Width:  w,
		Height: h,
		Format: format,
		Y:      nv12.Plane{Data: b.planes[:stride*h], Stride: stride},
		UV:     nv12.Plane{Data: b.planes[stride*h:], Stride: stride},
	}
	widen(b.frame, unit[headerSize:], w, h)
	return &b.frame, nil
}

func (b *decoderBackend) Release() {
	b.frame = codec.HardwareFrame{}
}

func (b *decoderBackend) Close() error {
	b.closed = true
	b.engine.mu.Lock()
	b.engine.closeCount++
	b.engine.mu.Unlock()
	return nil
}

// flatten and widen copy between strided planes and flat NV12 with
// plain loops, deliberately independent of the nv12 transfer code the
// sessions under test rely on.

func flatten(dst []byte, f codec.HardwareFrame, w, h int) {
	for r := 0; r < h; r++ {
		copy(dst[r*w:(r+1)*w], f.Y.Data[r*f.Y.Stride:])
	}
	uv := dst[w*h:]
	for r := 0; r < h/2; r++ {
		copy(uv[r*w:(r+1)*w], f.UV.Data[r*f.UV.Stride:])
	}
}

func widen(f codec.HardwareFrame, src []byte, w, h int) {
	for r := 0; r < h; r++ {
		copy(f.Y.Data[r*f.Y.Stride:r*f.Y.Stride+w], src[r*w:])
	}
	uv := src[w*h:]
	for r := 0; r < h/2; r++ {
		copy(f.UV.Data[r*f.UV.Stride:r*f.UV.Stride+w], uv[r*w:])
	}
}
