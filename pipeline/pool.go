package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/vframe/hwjpeg/codec"
	"github.com/vframe/hwjpeg/nv12"
)

// Result is the outcome of transcoding one frame through a Pool.
type Result struct {
	// Index identifies the input frame this result belongs to.
	Index int
	// Decoded is the round-tripped NV12 frame.
	Decoded []byte
	Stats   RoundtripStats
}

// Pool runs N independent Transcoders, one per worker goroutine.
// Hardware handles are not shareable, so parallel throughput comes from
// independent sessions rather than sharing one.
type Pool struct {
	log     *slog.Logger
	workers []*Transcoder
}

// NewPool opens n transcoders on the engine. If any open fails, the
// ones already opened are closed before returning.
func NewPool(engine codec.Engine, cfg codec.EncoderConfig, n int, log *slog.Logger) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("pipeline: pool size %d, want > 0", n)
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Pool{log: log.With("component", "pool")}
	for i := 0; i < n; i++ {
		t, err := NewTranscoder(engine, cfg, log)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("pipeline: opening worker %d: %w", i, err)
		}
		p.workers = append(p.workers, t)
		p.log.Info("worker ready", "worker", t.ID())
	}
	return p, nil
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int { return len(p.workers) }

// Process round-trips every frame through the pool and returns results
// ordered by input index. Each input must be one full NV12 frame of the
// pool's configured geometry. The first failure cancels remaining work.
func (p *Pool) Process(ctx context.Context, frames [][]byte) ([]Result, error) {
	results := make([]Result, len(frames))
	jobs := make(chan int)

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range p.workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case i, ok := <-jobs:
					if !ok {
						return nil
					}
					dst := nv12.Alloc(t.enc.Width(), t.enc.Height())
					stats, err := t.Roundtrip(frames[i], dst)
					if err != nil {
						nv12.Free(dst)
						return fmt.Errorf("frame %d on worker %s: %w", i, t.ID(), err)
					}
					results[i] = Result{Index: i, Decoded: dst, Stats: stats}
				}
			}
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for i := range frames {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case jobs <- i:
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close closes every worker's sessions.
func (p *Pool) Close() error {
	var err error
	for _, t := range p.workers {
		if cerr := t.Close(); err == nil {
			err = cerr
		}
	}
	p.workers = nil
	return err
}
