package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/vframe/hwjpeg/codec"
	"github.com/vframe/hwjpeg/codec/codectest"
	"github.com/vframe/hwjpeg/nv12"
	"github.com/vframe/hwjpeg/pipeline"
)

func frame(w, h, seq int) []byte {
	buf := make([]byte, nv12.FrameSize(w, h))
	nv12.FillGradient(buf, w, h, seq)
	return buf
}

func TestTranscoderRoundtrip(t *testing.T) {
	t.Parallel()
	engine := &codectest.Engine{RowPadding: 9}
	const w, h = 96, 64

	tr, err := pipeline.NewTranscoder(engine, codec.EncoderConfig{Width: w, Height: h, Quality: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	src := frame(w, h, 4)
	dst := make([]byte, nv12.FrameSize(w, h))
	stats, err := tr.Roundtrip(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(src, dst) {
		t.Error("round-tripped frame differs from source")
	}
	if stats.Width != w || stats.Height != h {
		t.Errorf("stats geometry %dx%d, want %dx%d", stats.Width, stats.Height, w, h)
	}
	if stats.EncodedSize <= 0 {
		t.Errorf("EncodedSize = %d, want > 0", stats.EncodedSize)
	}
	if stats.CompressionRatio() <= 0 {
		t.Errorf("CompressionRatio = %f, want > 0", stats.CompressionRatio())
	}
	if tr.ID() == "" {
		t.Error("transcoder has empty id")
	}
}

func TestTranscoderOpenFailureReleasesEncoder(t *testing.T) {
	t.Parallel()
	engine := &codectest.Engine{}
	_, err := pipeline.NewTranscoder(engine, codec.EncoderConfig{Width: 96, Height: 64, Quality: 99}, nil)
	if !errors.Is(err, codec.ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
	if engine.OpenCount() != engine.CloseCount() {
		t.Errorf("resource leak: %d opens, %d closes", engine.OpenCount(), engine.CloseCount())
	}
}

func TestPoolProcess(t *testing.T) {
	t.Parallel()
	engine := &codectest.Engine{RowPadding: 5}
	const w, h, workers = 64, 48, 3

	p, err := pipeline.NewPool(engine, codec.EncoderConfig{Width: w, Height: h, Quality: 2}, workers, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if p.Size() != workers {
		t.Fatalf("pool size %d, want %d", p.Size(), workers)
	}

	const frames = 11
	inputs := make([][]byte, frames)
	for i := range inputs {
		inputs[i] = frame(w, h, i)
	}

	results, err := p.Process(context.Background(), inputs)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != frames {
		t.Fatalf("got %d results, want %d", len(results), frames)
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result %d has index %d", i, r.Index)
		}
		if !bytes.Equal(inputs[i], r.Decoded) {
			t.Errorf("frame %d: round-tripped bytes differ from input", i)
		}
	}
}

func TestPoolProcessPropagatesFailure(t *testing.T) {
	t.Parallel()
	cause := errors.New("vpu power collapse")
	engine := &codectest.Engine{SubmitErr: cause}

	p, err := pipeline.NewPool(engine, codec.EncoderConfig{Width: 64, Height: 48, Quality: 2}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	inputs := [][]byte{frame(64, 48, 0), frame(64, 48, 1)}
	if _, err := p.Process(context.Background(), inputs); !errors.Is(err, cause) {
		t.Fatalf("got %v, want wrapped submit failure", err)
	}
}

func TestPoolProcessCancelled(t *testing.T) {
	t.Parallel()
	engine := &codectest.Engine{}
	p, err := pipeline.NewPool(engine, codec.EncoderConfig{Width: 64, Height: 48, Quality: 2}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inputs := make([][]byte, 100)
	for i := range inputs {
		inputs[i] = frame(64, 48, i)
	}
	if _, err := p.Process(ctx, inputs); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestPoolInvalidSize(t *testing.T) {
	t.Parallel()
	engine := &codectest.Engine{}
	for _, n := range []int{0, -1} {
		if _, err := pipeline.NewPool(engine, codec.EncoderConfig{Width: 64, Height: 48, Quality: 2}, n, nil); err == nil {
			t.Errorf("pool size %d: expected error", n)
		}
	}
}

func TestPoolCloseBalancesSessions(t *testing.T) {
	t.Parallel()
	engine := &codectest.Engine{}
	p, err := pipeline.NewPool(engine, codec.EncoderConfig{Width: 64, Height: 48, Quality: 2}, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if engine.OpenCount() != engine.CloseCount() {
		t.Errorf("resource leak: %d opens, %d closes", engine.OpenCount(), engine.CloseCount())
	}
}
