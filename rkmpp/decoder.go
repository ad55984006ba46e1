package rkmpp

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"github.com/vframe/hwjpeg/codec"
	"github.com/vframe/hwjpeg/nv12"
)

// decoderBackend is one open MJPEG decode handle. Resolution is not
// fixed at open time: each decoded frame reports its own geometry, and
// the copy-out buffer grows to fit the largest frame seen.
//
// The software mjpeg decoder emits yuvj420p rather than NV12, so the
// fallback path runs decoded frames through a software pixel-format
// conversion sized to whatever geometry arrives.
type decoderBackend struct {
	log      *slog.Logger
	closer   *astikit.Closer
	codecCtx *astiav.CodecContext
	frame    *astiav.Frame
	pkt      *astiav.Packet
	buf      []byte
	view     codec.HardwareFrame
	fallback bool

	// conversion state, created lazily and rebuilt on geometry change
	ssc          *astiav.SoftwareScaleContext
	conv         *astiav.Frame
	convW, convH int
	convPF       astiav.PixelFormat

	haveFrame bool
}

func openDecoder(e *Engine) (_ codec.DecoderBackend, err error) {
	b := &decoderBackend{
		log:    e.log,
		closer: astikit.NewCloser(),
	}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	c := astiav.FindDecoderByName(e.opts.DecoderName)
	if c == nil && e.opts.DecoderName == defaultDecoderName {
		e.log.Warn("hardware MJPEG decoder not found, falling back to software", "name", e.opts.DecoderName)
		c = astiav.FindDecoderByName(softwareCodecName)
	}
	if c == nil {
		return nil, fmt.Errorf("rkmpp: MJPEG decoder %q not found", e.opts.DecoderName)
	}
	b.fallback = c.Name() == softwareCodecName

	b.codecCtx = astiav.AllocCodecContext(c)
	if b.codecCtx == nil {
		return nil, errors.New("rkmpp: allocating decoder context failed")
	}
	b.closer.Add(b.codecCtx.Free)

	if e.opts.HardwareDeviceType != astiav.HardwareDeviceTypeNone {
		hwCtx, err := astiav.CreateHardwareDeviceContext(
			e.opts.HardwareDeviceType,
			e.opts.HardwareDeviceName,
			nil,
			0,
		)
		if err != nil {
			return nil, fmt.Errorf("rkmpp: creating %s device context: %w", e.opts.HardwareDeviceType, err)
		}
		b.closer.Add(hwCtx.Free)
		b.codecCtx.SetHardwareDeviceContext(hwCtx)
	}

	if err := b.codecCtx.Open(c, nil); err != nil {
		return nil, fmt.Errorf("rkmpp: opening decoder %q: %w", c.Name(), err)
	}
	e.log.Info("decoder opened", "codec", c.Name())

	b.frame = astiav.AllocFrame()
	if b.frame == nil {
		return nil, errors.New("rkmpp: allocating frame failed")
	}
	b.closer.Add(b.frame.Free)

	b.pkt = astiav.AllocPacket()
	if b.pkt == nil {
		return nil, errors.New("rkmpp: allocating packet failed")
	}
	b.closer.Add(b.pkt.Free)

	return b, nil
}

func (b *decoderBackend) Submit(data []byte) error {
	// The packet wrapper holds the bytes only until SendPacket returns;
	// the caller's buffer is never retained.
	if err := b.pkt.FromData(data); err != nil {
		return fmt.Errorf("rkmpp: wrapping packet: %w", err)
	}
	err := b.codecCtx.SendPacket(b.pkt)
	b.pkt.Unref()
	if err != nil {
		return fmt.Errorf("rkmpp: sending packet: %w", err)
	}
	return nil
}

func (b *decoderBackend) Poll() (*codec.HardwareFrame, error) {
	if err := b.codecCtx.ReceiveFrame(b.frame); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEagain):
			return nil, codec.ErrNotReady
		case errors.Is(err, astiav.ErrEof):
			return nil, codec.ErrEndOfStream
		}
		return nil, fmt.Errorf("rkmpp: receiving frame: %w", err)
	}
	b.haveFrame = true

	w, h := b.frame.Width(), b.frame.Height()
	pf := b.frame.PixelFormat()
	out := b.frame
	if pf != astiav.PixelFormatNv12 {
		if !b.fallback {
			// Leave planes empty; the session rejects the format before
			// touching them.
			b.view = codec.HardwareFrame{Width: w, Height: h, Format: pf.String()}
			return &b.view, nil
		}
		if err := b.ensureConverter(w, h, pf); err != nil {
			return nil, err
		}
		if err := b.ssc.ScaleFrame(b.frame, b.conv); err != nil {
			return nil, fmt.Errorf("rkmpp: converting %s to nv12: %w", pf, err)
		}
		out = b.conv
	}

	// go-astiav does not expose the frame's raw plane pointers, so the
	// result is materialized at our own alignment and the matching
	// strides reported alongside it.
	size, err := out.ImageBufferSize(frameAlign)
	if err != nil {
		return nil, fmt.Errorf("rkmpp: sizing frame buffer: %w", err)
	}
	if cap(b.buf) < size {
		b.buf = make([]byte, size)
	}
	b.buf = b.buf[:size]
	if _, err := out.ImageCopyToBuffer(b.buf, frameAlign); err != nil {
		return nil, fmt.Errorf("rkmpp: copying frame out: %w", err)
	}

	stride := alignUp(w, frameAlign)
	b.view = codec.HardwareFrame{
		Width:  w,
		Height: h,
		Format: "nv12",
		Y:      nv12.Plane{Data: b.buf[:stride*h], Stride: stride},
		UV:     nv12.Plane{Data: b.buf[stride*h:], Stride: stride},
	}
	return &b.view, nil
}

// ensureConverter (re)builds the scaler and its NV12 target frame
// whenever the incoming geometry or pixel format changes.
func (b *decoderBackend) ensureConverter(w, h int, pf astiav.PixelFormat) error {
	if b.ssc != nil && w == b.convW && h == b.convH && pf == b.convPF {
		return nil
	}
	b.freeConverter()

	ssc, err := astiav.CreateSoftwareScaleContext(
		w, h, pf,
		w, h, astiav.PixelFormatNv12,
		astiav.NewSoftwareScaleContextFlags(),
	)
	if err != nil {
		return fmt.Errorf("rkmpp: creating %dx%d %s to nv12 scaler: %w", w, h, pf, err)
	}

	conv := astiav.AllocFrame()
	if conv == nil {
		ssc.Free()
		return errors.New("rkmpp: allocating conversion frame failed")
	}
	conv.SetWidth(w)
	conv.SetHeight(h)
	conv.SetPixelFormat(astiav.PixelFormatNv12)
	if err := conv.AllocBuffer(frameAlign); err != nil {
		conv.Free()
		ssc.Free()
		return fmt.Errorf("rkmpp: allocating conversion frame buffer: %w", err)
	}

	b.ssc, b.conv = ssc, conv
	b.convW, b.convH, b.convPF = w, h, pf
	b.log.Debug("software conversion ready", "width", w, "height", h, "from", pf.String())
	return nil
}

func (b *decoderBackend) freeConverter() {
	if b.conv != nil {
		b.conv.Free()
		b.conv = nil
	}
	if b.ssc != nil {
		b.ssc.Free()
		b.ssc = nil
	}
}

func (b *decoderBackend) Release() {
	if b.haveFrame {
		b.frame.Unref()
		b.haveFrame = false
	}
	b.view = codec.HardwareFrame{}
}

func (b *decoderBackend) Close() error {
	b.freeConverter()
	return b.closer.Close()
}
