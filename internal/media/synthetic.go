package media

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/medibridge/telecall/internal/rtcerr"
)

// Synthetic fabricates local sample tracks without touching hardware. Used by
// tests and by endpoints that want a media session without capture drivers.
type Synthetic struct{}

func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

func (s *Synthetic) Acquire(constraints Constraints) (*Acquisition, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, rtcerr.New("acquire media", err)
	}

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

	var tracks []webrtc.TrackLocal
	if constraints.Video {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", "telecall-synthetic",
		)
		if err != nil {
			return nil, rtcerr.New("acquire media", err)
		}
		tracks = append(tracks, video)
	}
	if constraints.Audio {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", "telecall-synthetic",
		)
		if err != nil {
			return nil, rtcerr.New("acquire media", err)
		}
		tracks = append(tracks, audio)
	}

	return &Acquisition{API: api, Tracks: tracks}, nil
}
