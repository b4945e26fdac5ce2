//go:build linux && cgo

package media

import (
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/medibridge/telecall/internal/rtcerr"
)

// Device captures camera and microphone through V4L2 and malgo.
type Device struct {
	logger zerolog.Logger
}

func NewDevice(logger *zerolog.Logger) *Device {
	return &Device{logger: logger.With().Str("component", "media").Logger()}
}

// Acquire captures local media with VP8+Opus encoding. GetUserMedia fails as
// a unit if either track can't be opened, so requested combinations degrade:
// video+audio, then video-only, then audio-only.
func (d *Device) Acquire(constraints Constraints) (*Acquisition, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, rtcerr.New("acquire media", err)
	}
	vpxParams.BitRate = 1_500_000 // 1.5 Mbps

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, rtcerr.New("acquire media", err)
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := &webrtc.MediaEngine{}
	codecSelector.Populate(mediaEngine)

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, rtcerr.New("acquire media", err)
	}

	se := iceSettingEngine()
	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	devices := mediadevices.EnumerateDevices()
	if len(devices) == 0 {
		return nil, rtcerr.Wrap("acquire media", rtcerr.ErrDeviceUnavailable, "no media devices found")
	}
	for _, dev := range devices {
		d.logger.Debug().Interface("kind", dev.Kind).Str("label", dev.Label).Msg("media device")
	}

	type attempt struct {
		video bool
		audio bool
		label string
	}
	attempts := []attempt{}
	if constraints.Video && constraints.Audio {
		attempts = append(attempts, attempt{true, true, "video+audio"})
	}
	if constraints.Video {
		attempts = append(attempts, attempt{true, false, "video-only"})
	}
	if constraints.Audio {
		attempts = append(attempts, attempt{false, true, "audio-only"})
	}
	if len(attempts) == 0 {
		return nil, rtcerr.Wrap("acquire media", rtcerr.ErrDeviceUnavailable, "no media kinds requested")
	}

	var lastErr error
	for _, a := range attempts {
		mc := mediadevices.MediaStreamConstraints{Codec: codecSelector}
		if a.video {
			mc.Video = func(c *mediadevices.MediaTrackConstraints) {
				// Exclude MJPEG: some cameras expose an MJPEG V4L2 node with
				// malformed JPEG frames that poison the VP8 encoder.
				c.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				c.Width = prop.IntRanged{Max: 640}
				c.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			mc.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(mc)
		if err != nil {
			lastErr = err
			d.logger.Warn().Err(err).Str("attempt", a.label).Msg("capture attempt failed")
			continue
		}

		tracks := stream.GetTracks()
		locals := make([]webrtc.TrackLocal, 0, len(tracks))
		for _, track := range tracks {
			track.OnEnded(func(err error) {
				if err != nil {
					d.logger.Warn().Err(err).Msg("local track ended")
				}
			})
			locals = append(locals, track)
		}

		d.logger.Info().Str("attempt", a.label).Int("tracks", len(tracks)).Msg("local media captured")
		return &Acquisition{
			API:    api,
			Tracks: locals,
			closeFn: func() {
				for _, t := range tracks {
					t.Close()
				}
			},
		}, nil
	}

	if lastErr != nil && strings.Contains(strings.ToLower(lastErr.Error()), "permission") {
		return nil, rtcerr.Wrap("acquire media", rtcerr.ErrPermissionDenied, lastErr.Error())
	}
	details := "all capture attempts failed"
	if lastErr != nil {
		details = lastErr.Error()
	}
	return nil, rtcerr.Wrap("acquire media", rtcerr.ErrDeviceUnavailable, details)
}
