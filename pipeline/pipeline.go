// Package pipeline composes encoder and decoder sessions into
// round-trip transcoders, and runs pools of independent transcoders for
// parallel throughput. Sessions are single-threaded by contract, so the
// pool gives every worker goroutine its own session pair.
package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vframe/hwjpeg/codec"
	"github.com/vframe/hwjpeg/nv12"
)

// RoundtripStats reports one encode-then-decode cycle.
type RoundtripStats struct {
	Width       int
	Height      int
	EncodedSize int
	EncodeTime  time.Duration
	DecodeTime  time.Duration
}

// CompressionRatio returns raw frame size over compressed size.
func (s RoundtripStats) CompressionRatio() float64 {
	if s.EncodedSize == 0 {
		return 0
	}
	return float64(nv12.FrameSize(s.Width, s.Height)) / float64(s.EncodedSize)
}

// Transcoder owns one encoder session and one decoder session plus a
// scratch buffer for the compressed unit between them. Like the
// sessions it wraps, a Transcoder is not safe for concurrent use.
type Transcoder struct {
	log *slog.Logger
	id  string
	enc *codec.Encoder
	dec *codec.Decoder

	compressed []byte
}

// NewTranscoder opens an encoder bound to cfg and a decoder on the same
// engine. If either open fails, anything already acquired is released.
// If log is nil, slog.Default() is used.
func NewTranscoder(engine codec.Engine, cfg codec.EncoderConfig, log *slog.Logger) (*Transcoder, error) {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	log = log.With("component", "transcoder", "id", id)

	enc, err := codec.NewEncoder(engine, cfg, log)
	if err != nil {
		return nil, err
	}
	dec, err := codec.NewDecoder(engine, log)
	if err != nil {
		_ = enc.Close()
		return nil, err
	}

	return &Transcoder{
		log:        log,
		id:         id,
		enc:        enc,
		dec:        dec,
		compressed: make([]byte, enc.MaxOutputSize()),
	}, nil
}

// ID returns the transcoder's unique identifier, as used in its logs.
func (t *Transcoder) ID() string { return t.id }

// Roundtrip encodes src and decodes the result into dst, returning the
// cycle's stats. src must be one full NV12 frame of the configured
// geometry; dst must hold at least as many bytes as src.
func (t *Transcoder) Roundtrip(src, dst []byte) (RoundtripStats, error) {
	var stats RoundtripStats

	start := time.Now()
	n, err := t.enc.EncodeToBuffer(src, t.compressed)
	if err != nil {
		return stats, fmt.Errorf("pipeline: encode: %w", err)
	}
	stats.EncodedSize = n
	stats.EncodeTime = time.Since(start)

	start = time.Now()
	w, h, err := t.dec.DecodeToBuffer(t.compressed[:n], dst)
	if err != nil {
		return stats, fmt.Errorf("pipeline: decode: %w", err)
	}
	stats.Width = w
	stats.Height = h
	stats.DecodeTime = time.Since(start)
	return stats, nil
}

// Close releases both sessions. Safe to call more than once.
func (t *Transcoder) Close() error {
	if t == nil {
		return nil
	}
	err := t.enc.Close()
	if derr := t.dec.Close(); err == nil {
		err = derr
	}
	return err
}
