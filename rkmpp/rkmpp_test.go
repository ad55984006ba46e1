package rkmpp

import (
	"errors"
	"testing"

	"github.com/vframe/hwjpeg/codec"
	"github.com/vframe/hwjpeg/nv12"
)

func TestAlignUp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n, a, want int
	}{
		{0, 64, 0},
		{1, 64, 64},
		{64, 64, 64},
		{65, 64, 128},
		{1600, 64, 1600},
		{1601, 64, 1664},
		{7, 16, 16},
	}
	for _, tt := range tests {
		if got := alignUp(tt.n, tt.a); got != tt.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", tt.n, tt.a, got, tt.want)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()
	e := New(Options{})
	if e.opts.EncoderName != defaultEncoderName {
		t.Errorf("EncoderName = %q, want %q", e.opts.EncoderName, defaultEncoderName)
	}
	if e.opts.DecoderName != defaultDecoderName {
		t.Errorf("DecoderName = %q, want %q", e.opts.DecoderName, defaultDecoderName)
	}

	e = New(Options{EncoderName: "mjpeg", DecoderName: "mjpeg"})
	if e.opts.EncoderName != "mjpeg" || e.opts.DecoderName != "mjpeg" {
		t.Error("explicit codec names were overridden")
	}
}

// TestEncoderFlushReset drives a backend through an end-of-stream flush
// and verifies the next submit transparently rebuilds the drained codec
// context and its reusable frame still accepts data.
func TestEncoderFlushReset(t *testing.T) {
	const w, h = 64, 48
	engine := New(Options{})
	eb, err := openEncoder(engine, codec.EncoderConfig{Width: w, Height: h, Quality: 2})
	if err != nil {
		t.Skipf("no usable MJPEG encoder: %v", err)
	}
	defer eb.Close()

	src := make([]byte, nv12.FrameSize(w, h))
	nv12.FillGradient(src, w, h, 0)

	f := eb.Frame()
	if err := nv12.Pack(f.Y, f.UV, src, w, h); err != nil {
		t.Fatalf("pack: %v", err)
	}
	if err := eb.Submit(0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := eb.Poll(); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if err := eb.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	for {
		_, err := eb.Poll()
		if errors.Is(err, codec.ErrEndOfStream) {
			break
		}
		if err != nil {
			t.Fatalf("draining after flush: %v", err)
		}
	}

	if err := nv12.Pack(f.Y, f.UV, src, w, h); err != nil {
		t.Fatalf("pack after flush: %v", err)
	}
	if err := eb.Submit(1); err != nil {
		t.Fatalf("submit after flush: %v", err)
	}
	data, err := eb.Poll()
	if err != nil {
		t.Fatalf("poll after flush: %v", err)
	}
	if len(data) == 0 {
		t.Error("empty unit after flush reset")
	}
}

// TestHardwareRoundtrip exercises the real FFmpeg backend end to end,
// through the hardware codecs when present and otherwise through the
// software fallback and its pixel-format conversions. It is skipped
// only when the linked FFmpeg has no MJPEG codec at all.
func TestHardwareRoundtrip(t *testing.T) {
	const w, h = 1600, 1200

	engine := New(Options{})
	enc, err := codec.NewEncoder(engine, codec.EncoderConfig{Width: w, Height: h, Quality: 2}, nil)
	if err != nil {
		t.Skipf("no usable MJPEG encoder: %v", err)
	}
	defer enc.Close()

	dec, err := codec.NewDecoder(engine, nil)
	if err != nil {
		t.Skipf("no usable MJPEG decoder: %v", err)
	}
	defer dec.Close()

	src := make([]byte, nv12.FrameSize(w, h))
	nv12.FillGradient(src, w, h, 0)

	compressed := make([]byte, enc.MaxOutputSize())
	n, err := enc.EncodeToBuffer(src, compressed)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if n <= 0 || n >= len(src) {
		t.Fatalf("compressed to %d bytes, expected 0 < n < %d", n, len(src))
	}

	decoded := make([]byte, nv12.FrameSize(w, h))
	gotW, gotH, err := dec.DecodeToBuffer(compressed[:n], decoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotW != w || gotH != h {
		t.Fatalf("decoded %dx%d, want %dx%d", gotW, gotH, w, h)
	}

	// JPEG at quality 2 is near-lossless on a smooth gradient; bound the
	// mean absolute difference rather than requiring bit equality.
	var total int64
	for i := range src {
		d := int64(src[i]) - int64(decoded[i])
		if d < 0 {
			d = -d
		}
		total += d
	}
	if mad := float64(total) / float64(len(src)); mad >= 5 {
		t.Errorf("mean absolute difference %.2f, want < 5", mad)
	}
}
