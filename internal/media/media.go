// Package media acquires the local audio/video stream for a call. On Linux
// it captures real camera/microphone devices through pion/mediadevices; the
// synthetic provider produces sample tracks for tests, demos and platforms
// without native capture drivers.
package media

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// Constraints selects which kinds of local media to acquire.
type Constraints struct {
	Audio bool
	Video bool
}

// Acquisition owns the local media for exactly one call. Tracks are never
// shared between acquisitions; Close stops capture and is idempotent.
type Acquisition struct {
	// API is the webrtc API configured with the codecs the captured tracks
	// produce. Peer connections for this call must be created from it.
	API *webrtc.API

	// Tracks are the local tracks to publish. May be empty (receive-only).
	Tracks []webrtc.TrackLocal

	closeFn func()
	closed  bool
}

// Close stops all local tracks. Safe to call multiple times.
func (a *Acquisition) Close() {
	if a.closed {
		return
	}
	a.closed = true
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Provider acquires local media. Device captures hardware; Synthetic
// fabricates tracks.
type Provider interface {
	Acquire(constraints Constraints) (*Acquisition, error)
}

// iceSettingEngine returns a SettingEngine with generous ICE timeouts so a
// brief relay/NAT hiccup does not immediately terminate the call. The
// default disconnected timeout of 5s is far too short for relay paths with
// short outages during re-keying or failover.
func iceSettingEngine() webrtc.SettingEngine {
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)
	return se
}
