package rkmpp

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"github.com/vframe/hwjpeg/codec"
	"github.com/vframe/hwjpeg/nv12"
)

// encoderBackend is one open MJPEG encode handle. It owns a codec
// context bound to a fixed geometry and quality, reusable input frames,
// a reusable output packet, and a stride-padded staging buffer that
// codec.Encoder packs caller planes into.
//
// The software mjpeg encoder does not accept NV12 input, so the
// fallback path encodes from a yuvj420p frame that each submit converts
// the NV12 staging frame into.
type encoderBackend struct {
	log     *slog.Logger
	closer  *astikit.Closer
	codec   *astiav.Codec
	cfg     codec.EncoderConfig
	inputPF astiav.PixelFormat

	codecCtx *astiav.CodecContext
	srcFrame *astiav.Frame
	encFrame *astiav.Frame
	ssc      *astiav.SoftwareScaleContext
	pkt      *astiav.Packet
	staging  []byte
	view     codec.HardwareFrame

	// resetPending is set after an end-of-stream flush. Draining mode is
	// terminal for a codec context and the bindings expose no
	// avcodec_flush_buffers, so the context is rebuilt on the next submit.
	resetPending bool
}

func openEncoder(e *Engine, cfg codec.EncoderConfig) (_ codec.EncoderBackend, err error) {
	b := &encoderBackend{
		log:    e.log,
		closer: astikit.NewCloser(),
		cfg:    cfg,
	}
	// Any failure below must release everything acquired so far.
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	b.codec = astiav.FindEncoderByName(e.opts.EncoderName)
	if b.codec == nil && e.opts.EncoderName == defaultEncoderName {
		// Same fallback the Rockchip harness uses on machines without MPP.
		e.log.Warn("hardware MJPEG encoder not found, falling back to software", "name", e.opts.EncoderName)
		b.codec = astiav.FindEncoderByName(softwareCodecName)
	}
	if b.codec == nil {
		return nil, fmt.Errorf("rkmpp: MJPEG encoder %q not found", e.opts.EncoderName)
	}

	b.inputPF = astiav.PixelFormatNv12
	if b.codec.Name() == softwareCodecName {
		b.inputPF = astiav.PixelFormatYuvj420P
	}

	b.codecCtx, err = newEncoderContext(b.codec, cfg, b.inputPF)
	if err != nil {
		return nil, err
	}
	e.log.Info("encoder opened",
		"codec", b.codec.Name(),
		"width", cfg.Width,
		"height", cfg.Height,
		"quality", cfg.Quality,
		"input", b.inputPF.String(),
	)

	b.srcFrame = astiav.AllocFrame()
	if b.srcFrame == nil {
		return nil, errors.New("rkmpp: allocating frame failed")
	}
	b.closer.Add(b.srcFrame.Free)
	b.srcFrame.SetWidth(cfg.Width)
	b.srcFrame.SetHeight(cfg.Height)
	b.srcFrame.SetPixelFormat(astiav.PixelFormatNv12)
	if err := b.srcFrame.AllocBuffer(frameAlign); err != nil {
		return nil, fmt.Errorf("rkmpp: allocating frame buffer: %w", err)
	}

	if b.inputPF == astiav.PixelFormatNv12 {
		b.encFrame = b.srcFrame
	} else {
		b.encFrame = astiav.AllocFrame()
		if b.encFrame == nil {
			return nil, errors.New("rkmpp: allocating conversion frame failed")
		}
		b.closer.Add(b.encFrame.Free)
		b.encFrame.SetWidth(cfg.Width)
		b.encFrame.SetHeight(cfg.Height)
		b.encFrame.SetPixelFormat(b.inputPF)
		if err := b.encFrame.AllocBuffer(frameAlign); err != nil {
			return nil, fmt.Errorf("rkmpp: allocating conversion frame buffer: %w", err)
		}
		b.ssc, err = astiav.CreateSoftwareScaleContext(
			cfg.Width, cfg.Height, astiav.PixelFormatNv12,
			cfg.Width, cfg.Height, b.inputPF,
			astiav.NewSoftwareScaleContextFlags(),
		)
		if err != nil {
			return nil, fmt.Errorf("rkmpp: creating nv12 to %s scaler: %w", b.inputPF, err)
		}
		b.closer.Add(b.ssc.Free)
	}

	b.pkt = astiav.AllocPacket()
	if b.pkt == nil {
		return nil, errors.New("rkmpp: allocating packet failed")
	}
	b.closer.Add(b.pkt.Free)

	// Stride-padded staging. av_image_fill_arrays with frameAlign
	// interprets the buffer with these exact per-plane strides.
	stride := alignUp(cfg.Width, frameAlign)
	b.staging = make([]byte, stride*cfg.Height+stride*cfg.Height/2)
	b.view = codec.HardwareFrame{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: "nv12",
		Y:      nv12.Plane{Data: b.staging[:stride*cfg.Height], Stride: stride},
		UV:     nv12.Plane{Data: b.staging[stride*cfg.Height:], Stride: stride},
	}

	return b, nil
}

// newEncoderContext allocates, configures, and opens a codec context.
// Contexts are rebuilt from scratch after an end-of-stream flush, so
// everything configuration-related lives here.
func newEncoderContext(c *astiav.Codec, cfg codec.EncoderConfig, pf astiav.PixelFormat) (*astiav.CodecContext, error) {
	ctx := astiav.AllocCodecContext(c)
	if ctx == nil {
		return nil, errors.New("rkmpp: allocating encoder context failed")
	}

	ctx.SetWidth(cfg.Width)
	ctx.SetHeight(cfg.Height)
	ctx.SetPixelFormat(pf)
	ctx.SetTimeBase(astiav.NewRational(1, 30))
	ctx.SetFramerate(astiav.NewRational(30, 1))
	ctx.SetStrictStdCompliance(astiav.StrictStdComplianceExperimental)

	opts := astiav.NewDictionary()
	defer opts.Free()
	// Fixed-QP quality: pin qmin == qmax == quality, plus the MPP
	// encoder's initial QP when driving the hardware codec.
	q := strconv.Itoa(cfg.Quality)
	_ = opts.Set("qmin", q, 0)
	_ = opts.Set("qmax", q, 0)
	if strings.Contains(c.Name(), "rkmpp") {
		_ = opts.Set("qp_init", q, 0)
	}

	if err := ctx.Open(c, opts); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("rkmpp: opening encoder %q: %w", c.Name(), err)
	}
	return ctx, nil
}

func (b *encoderBackend) Frame() *codec.HardwareFrame {
	return &b.view
}

func (b *encoderBackend) MaxUnitSize() int {
	// The bound the original C harness sizes its packet buffers with: an
	// intra-only JPEG never exceeds the raw frame.
	return nv12.FrameSize(b.cfg.Width, b.cfg.Height)
}

func (b *encoderBackend) Submit(pts int64) error {
	if b.resetPending {
		ctx, err := newEncoderContext(b.codec, b.cfg, b.inputPF)
		if err != nil {
			return fmt.Errorf("rkmpp: reopening encoder after flush: %w", err)
		}
		b.codecCtx.Free()
		b.codecCtx = ctx
		b.resetPending = false
	}

	// SendFrame refs the frame's buffers, so they must be made writable
	// again before the next fill.
	if err := b.srcFrame.MakeWritable(); err != nil {
		return fmt.Errorf("rkmpp: making frame writable: %w", err)
	}
	if err := b.srcFrame.Data().SetBytes(b.staging, frameAlign); err != nil {
		return fmt.Errorf("rkmpp: filling frame data: %w", err)
	}
	if b.ssc != nil {
		if err := b.encFrame.MakeWritable(); err != nil {
			return fmt.Errorf("rkmpp: making conversion frame writable: %w", err)
		}
		if err := b.ssc.ScaleFrame(b.srcFrame, b.encFrame); err != nil {
			return fmt.Errorf("rkmpp: converting nv12 to %s: %w", b.inputPF, err)
		}
	}
	b.encFrame.SetPts(pts)
	if err := b.codecCtx.SendFrame(b.encFrame); err != nil {
		return fmt.Errorf("rkmpp: sending frame: %w", err)
	}
	return nil
}

func (b *encoderBackend) Poll() ([]byte, error) {
	b.pkt.Unref()
	if err := b.codecCtx.ReceivePacket(b.pkt); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEagain):
			return nil, codec.ErrNotReady
		case errors.Is(err, astiav.ErrEof):
			return nil, codec.ErrEndOfStream
		}
		return nil, fmt.Errorf("rkmpp: receiving packet: %w", err)
	}
	return b.pkt.Data(), nil
}

func (b *encoderBackend) Flush() error {
	b.resetPending = true
	if err := b.codecCtx.SendFrame(nil); err != nil {
		return fmt.Errorf("rkmpp: flushing encoder: %w", err)
	}
	return nil
}

func (b *encoderBackend) Close() error {
	if b.codecCtx != nil {
		b.codecCtx.Free()
		b.codecCtx = nil
	}
	return b.closer.Close()
}
