// Command jpegbench benchmarks persistent hardware NV12-to-MJPEG
// transcoding sessions: one encode session and one decode session are
// opened once, then driven for many frames so per-frame cost reflects
// steady-state hardware throughput rather than setup.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/vframe/hwjpeg/codec"
	"github.com/vframe/hwjpeg/internal/rawio"
	"github.com/vframe/hwjpeg/nv12"
	"github.com/vframe/hwjpeg/pipeline"
	"github.com/vframe/hwjpeg/rkmpp"
)

func main() {
	width := flag.Int("width", 1600, "frame width in pixels (even)")
	height := flag.Int("height", 1200, "frame height in pixels (even)")
	quality := flag.Int("quality", 2, "fixed quantization parameter, 1..31 (lower = higher fidelity)")
	frames := flag.Int("frames", 100, "number of frames to push through each session")
	workers := flag.Int("workers", 0, "also run a pool with this many parallel session pairs (0 = skip)")
	input := flag.String("input", "", "raw NV12 frame to encode (default: synthetic gradient)")
	output := flag.String("output", "", "write the last decoded frame to this file")
	encoderName := flag.String("encoder", "", "FFmpeg encoder name override (default mjpeg_rkmpp)")
	decoderName := flag.String("decoder", "", "FFmpeg decoder name override (default mjpeg_rkmpp)")
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*width, *height, *quality, *frames, *workers, *input, *output, *encoderName, *decoderName); err != nil {
		slog.Error("benchmark failed", "error", err)
		os.Exit(1)
	}
}

func run(width, height, quality, frames, workers int, input, output, encoderName, decoderName string) error {
	engine := rkmpp.New(rkmpp.Options{
		EncoderName: encoderName,
		DecoderName: decoderName,
	})

	src := nv12.Alloc(width, height)
	defer nv12.Free(src)
	if input != "" {
		data, err := rawio.ReadFrame(input, width, height)
		if err != nil {
			return err
		}
		copy(src, data)
	} else {
		nv12.FillGradient(src, width, height, 0)
	}

	cfg := codec.EncoderConfig{Width: width, Height: height, Quality: quality}
	enc, err := codec.NewEncoder(engine, cfg, nil)
	if err != nil {
		return err
	}
	defer enc.Close()

	dec, err := codec.NewDecoder(engine, nil)
	if err != nil {
		return err
	}
	defer dec.Close()

	compressed := make([]byte, enc.MaxOutputSize())
	decoded := nv12.Alloc(width, height)
	defer nv12.Free(decoded)

	fmt.Printf("NV12 <-> MJPEG session benchmark\n")
	fmt.Printf("  resolution: %dx%d  quality: %d  frames: %d\n\n", width, height, quality, frames)

	var encodeTotal, decodeTotal time.Duration
	var encodedBytes int64
	var n int
	for i := 0; i < frames; i++ {
		start := time.Now()
		n, err = enc.EncodeToBuffer(src, compressed)
		if err != nil {
			return fmt.Errorf("encode frame %d: %w", i, err)
		}
		encodeTotal += time.Since(start)
		encodedBytes += int64(n)

		start = time.Now()
		w, h, err := dec.DecodeToBuffer(compressed[:n], decoded)
		if err != nil {
			return fmt.Errorf("decode frame %d: %w", i, err)
		}
		decodeTotal += time.Since(start)
		if w != width || h != height {
			return fmt.Errorf("decoded %dx%d, want %dx%d", w, h, width, height)
		}
	}

	rawSize := nv12.FrameSize(width, height)
	avgEncoded := float64(encodedBytes) / float64(frames)
	report("encode", encodeTotal, frames)
	report("decode", decodeTotal, frames)
	fmt.Printf("compression: %.2f:1 (%d -> %.0f bytes avg)\n",
		float64(rawSize)/avgEncoded, rawSize, avgEncoded)

	if output != "" {
		if err := rawio.WriteFrame(output, decoded, width, height); err != nil {
			return err
		}
		fmt.Printf("decoded frame written to %s\n", output)
	}

	if workers > 0 {
		return runPool(engine, cfg, workers, frames)
	}
	return nil
}

func report(name string, total time.Duration, frames int) {
	per := total / time.Duration(frames)
	fmt.Printf("%s: %v total, %v/frame, %.2f fps\n",
		name, total.Round(time.Microsecond), per.Round(time.Microsecond), float64(time.Second)/float64(per))
}

// runPool measures parallel throughput with one independent session
// pair per worker, the only way to use more than one hardware handle.
func runPool(engine codec.Engine, cfg codec.EncoderConfig, workers, frames int) error {
	pool, err := pipeline.NewPool(engine, cfg, workers, nil)
	if err != nil {
		return err
	}
	defer pool.Close()

	batch := make([][]byte, frames)
	for i := range batch {
		f := nv12.Alloc(cfg.Width, cfg.Height)
		nv12.FillGradient(f, cfg.Width, cfg.Height, i)
		batch[i] = f
	}

	start := time.Now()
	results, err := pool.Process(context.Background(), batch)
	if err != nil {
		return err
	}
	total := time.Since(start)

	for _, r := range results {
		nv12.Free(r.Decoded)
	}
	fmt.Printf("\npool (%d workers): %d round trips in %v, %.2f fps\n",
		workers, len(results), total.Round(time.Millisecond),
		float64(len(results))/total.Seconds())
	return nil
}
