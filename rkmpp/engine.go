// Package rkmpp is the production hardware backend for the codec
// session layer, driving FFmpeg's MJPEG codecs through go-astiav. It
// targets the Rockchip MPP accelerator (mjpeg_rkmpp) by default and can
// be pointed at any other FFmpeg MJPEG encoder/decoder by name.
package rkmpp

import (
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/vframe/hwjpeg/codec"
)

const (
	defaultEncoderName = "mjpeg_rkmpp"
	defaultDecoderName = "mjpeg_rkmpp"

	// softwareCodecName is FFmpeg's software MJPEG codec, used as the
	// fallback on machines without the Rockchip stack. Its pixel formats
	// differ from the hardware codec's, so the fallback backends stage
	// frames through a software pixel-format conversion.
	softwareCodecName = "mjpeg"

	// frameAlign is the row alignment used for staged and copied-out
	// plane buffers. Hardware codecs want aligned strides; 64 covers the
	// MPP requirement and common cache lines.
	frameAlign = 64
)

// Options configures an Engine. The zero value targets the Rockchip
// hardware codecs with no explicit device context.
type Options struct {
	// EncoderName and DecoderName select the FFmpeg codecs by name.
	// Empty selects mjpeg_rkmpp.
	EncoderName string
	DecoderName string

	// HardwareDeviceType, when not HardwareDeviceTypeNone, makes opened
	// decoders create and attach a hardware device context of this type
	// (e.g. astiav.HardwareDeviceTypeDrm for Rockchip).
	HardwareDeviceType astiav.HardwareDeviceType
	// HardwareDeviceName is the device to open, e.g. "/dev/dri/card0".
	HardwareDeviceName string

	// Log receives backend diagnostics. Nil means slog.Default().
	Log *slog.Logger
}

// Engine opens go-astiav encode and decode backends. It implements
// codec.Engine.
type Engine struct {
	opts Options
	log  *slog.Logger
}

// New creates an Engine with the given options.
func New(opts Options) *Engine {
	if opts.EncoderName == "" {
		opts.EncoderName = defaultEncoderName
	}
	if opts.DecoderName == "" {
		opts.DecoderName = defaultDecoderName
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		opts: opts,
		log:  log.With("component", "rkmpp"),
	}
}

// OpenEncoder implements codec.Engine.
func (e *Engine) OpenEncoder(cfg codec.EncoderConfig) (codec.EncoderBackend, error) {
	return openEncoder(e, cfg)
}

// OpenDecoder implements codec.Engine.
func (e *Engine) OpenDecoder() (codec.DecoderBackend, error) {
	return openDecoder(e)
}

// alignUp rounds n up to the next multiple of a (a must be a power of two).
func alignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}
