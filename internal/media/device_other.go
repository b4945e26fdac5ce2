//go:build !linux || !cgo

package media

import (
	"github.com/rs/zerolog"

	"github.com/medibridge/telecall/internal/rtcerr"
)

// Device is unavailable off Linux: pion/mediadevices needs platform capture
// drivers (V4L2 + malgo). Callers fall back to the Synthetic provider or
// receive-only operation.
type Device struct {
	logger zerolog.Logger
}

func NewDevice(logger *zerolog.Logger) *Device {
	return &Device{logger: logger.With().Str("component", "media").Logger()}
}

func (d *Device) Acquire(_ Constraints) (*Acquisition, error) {
	return nil, rtcerr.Wrap("acquire media", rtcerr.ErrDeviceUnavailable, "no capture drivers on this platform")
}
