// Package peer owns the negotiated media connection for one call: local
// media, offer/answer exchange, ICE candidate handling and teardown.
package peer

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/medibridge/telecall/internal/media"
	"github.com/medibridge/telecall/internal/rtcerr"
	"github.com/medibridge/telecall/internal/signaling"
)

// State of the connection manager.
// new -> have-local-media -> negotiating -> connected -> closed, with error
// reachable from any non-closed state.
type State string

const (
	StateNew            State = "new"
	StateHaveLocalMedia State = "have-local-media"
	StateNegotiating    State = "negotiating"
	StateConnected      State = "connected"
	StateClosed         State = "closed"
	StateError          State = "error"
)

// Publisher sends signaling messages for the manager's room.
type Publisher interface {
	Publish(msg signaling.Message)
}

// Config carries the manager dependencies.
type Config struct {
	// EndpointID is this endpoint's stable identifier. It tags outgoing
	// messages and breaks offer glare deterministically.
	EndpointID string
	ICEServers []webrtc.ICEServer
	// ForceRelay restricts ICE to TURN relay candidates.
	ForceRelay bool
	Publisher  Publisher
	Media      media.Provider
	Logger     *zerolog.Logger

	// OnRemoteTrack is invoked for each negotiated remote track. The remote
	// stream is received, not owned: it dies with the connection.
	OnRemoteTrack func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
}

// Manager drives one endpoint's side of a call. All events (signaling
// arrivals, pion callbacks, user actions) are serialized through mu; async
// completions re-check liveness before touching state and no-op once the
// connection has closed.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	mu         sync.Mutex
	state      State
	roomID     string
	pc         *webrtc.PeerConnection
	acq        *media.Acquisition
	remoteSet  bool
	offerOut   bool // local offer published, answer outstanding
	answerSeen bool

	// pending holds ICE candidates that arrived before the remote
	// description. They are buffered, never dropped, and applied in arrival
	// order once the description is set.
	pending []webrtc.ICECandidateInit

	connectedCh chan struct{}
	connOnce    sync.Once
	closedCh    chan struct{}
	closeOnce   sync.Once
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:         cfg,
		logger:      cfg.Logger.With().Str("component", "peer").Str("endpoint", cfg.EndpointID).Logger(),
		state:       StateNew,
		connectedCh: make(chan struct{}),
		closedCh:    make(chan struct{}),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected is closed once the transport reports a usable media path.
func (m *Manager) Connected() <-chan struct{} {
	return m.connectedCh
}

// Done is closed when the connection is torn down.
func (m *Manager) Done() <-chan struct{} {
	return m.closedCh
}

// AcquireMedia requests local capture. On refusal or missing hardware the
// manager moves to the error state and the failure is surfaced to the user.
func (m *Manager) AcquireMedia(constraints media.Constraints) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateNew {
		return rtcerr.Wrap("acquire media", rtcerr.ErrPeerClosed, string(m.state))
	}

	acq, err := m.cfg.Media.Acquire(constraints)
	if err != nil {
		m.state = StateError
		return err
	}
	m.acq = acq
	m.state = StateHaveLocalMedia
	m.logger.Debug().Int("tracks", len(acq.Tracks)).Msg("local media acquired")
	return nil
}

// CreateOffer starts negotiation on the caller side: it publishes a session
// description offer for roomID and moves to negotiating.
func (m *Manager) CreateOffer(roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateHaveLocalMedia {
		return rtcerr.Wrap("create offer", rtcerr.ErrNegotiationFailed, "no local media")
	}
	m.roomID = roomID

	if err := m.ensurePCLocked(); err != nil {
		return m.failLocked("create offer", err)
	}

	offer, err := m.pc.CreateOffer(nil)
	if err != nil {
		return m.failLocked("create offer", err)
	}
	if err := m.pc.SetLocalDescription(offer); err != nil {
		return m.failLocked("set local description", err)
	}

	m.offerOut = true
	m.state = StateNegotiating
	m.cfg.Publisher.Publish(signaling.NewOffer(roomID, m.cfg.EndpointID, m.pc.LocalDescription().SDP))
	m.logger.Info().Str("roomID", roomID).Msg("offer published")
	return nil
}

// HandleSignal dispatches one incoming signaling message. Self-originated
// echo from the broker is discarded here by the from field rather than by
// transport-level filtering.
func (m *Manager) HandleSignal(msg signaling.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed || m.state == StateError {
		return nil
	}
	if msg.From == m.cfg.EndpointID {
		return nil
	}
	if m.roomID != "" && msg.RoomID != m.roomID {
		return rtcerr.Wrap("handle signal", rtcerr.ErrRoomMismatch, msg.RoomID)
	}

	switch msg.Type {
	case signaling.KindOffer:
		return m.handleOfferLocked(msg)
	case signaling.KindAnswer:
		return m.handleAnswerLocked(msg)
	case signaling.KindCandidate:
		return m.handleCandidateLocked(msg)
	default:
		return rtcerr.Wrap("handle signal", rtcerr.ErrNegotiationFailed,
			"unexpected signal type "+string(msg.Type))
	}
}

// handleOfferLocked answers an incoming offer. A second offer on an already
// negotiating connection is a renegotiation request and replaces the prior
// one (last-offer-wins). Simultaneous offers resolve deterministically: the
// endpoint with the lower id yields and answers the rival offer, the higher
// one ignores it and keeps its own.
func (m *Manager) handleOfferLocked(msg signaling.Message) error {
	if m.roomID == "" {
		m.roomID = msg.RoomID
	}

	if m.offerOut {
		if m.cfg.EndpointID > msg.From {
			m.logger.Debug().Str("rival", msg.From).Msg("offer glare, holding our offer")
			return nil
		}
		// Yield: drop the pending local offer. pion has no SDP rollback, so
		// the peer connection is rebuilt before answering.
		m.logger.Debug().Str("rival", msg.From).Msg("offer glare, yielding")
		m.offerOut = false
		m.resetPCLocked()
	} else if m.remoteSet {
		// renegotiation, replace prior remote offer
		m.logger.Debug().Msg("renegotiation offer received")
	}

	if err := m.ensurePCLocked(); err != nil {
		return m.failLocked("handle offer", err)
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP}
	if err := m.pc.SetRemoteDescription(offer); err != nil {
		return m.failLocked("set remote description", err)
	}
	m.remoteSet = true
	if err := m.flushCandidatesLocked(); err != nil {
		return m.failLocked("apply buffered candidates", err)
	}

	answer, err := m.pc.CreateAnswer(nil)
	if err != nil {
		return m.failLocked("create answer", err)
	}
	if err := m.pc.SetLocalDescription(answer); err != nil {
		return m.failLocked("set local description", err)
	}

	m.state = StateNegotiating
	m.cfg.Publisher.Publish(signaling.NewAnswer(m.roomID, m.cfg.EndpointID, m.pc.LocalDescription().SDP))
	m.logger.Info().Str("roomID", m.roomID).Msg("answer published")
	return nil
}

// handleAnswerLocked applies the callee's answer. Valid only while a local
// offer is outstanding, and only once.
func (m *Manager) handleAnswerLocked(msg signaling.Message) error {
	if !m.offerOut || m.answerSeen {
		m.logger.Debug().Str("from", msg.From).Msg("unexpected answer ignored")
		return nil
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}
	if err := m.pc.SetRemoteDescription(answer); err != nil {
		return m.failLocked("set remote description", err)
	}
	m.remoteSet = true
	m.answerSeen = true
	m.offerOut = false
	if err := m.flushCandidatesLocked(); err != nil {
		return m.failLocked("apply buffered candidates", err)
	}
	m.logger.Info().Str("roomID", m.roomID).Msg("answer applied")
	return nil
}

// handleCandidateLocked adds a remote ICE candidate, buffering it while the
// remote description is still missing. Applying a candidate before the
// description exists is an error in the transport, so buffering is
// mandatory, not an optimization.
func (m *Manager) handleCandidateLocked(msg signaling.Message) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(msg.Candidate, &init); err != nil {
		return rtcerr.New("parse candidate", err)
	}

	if !m.remoteSet {
		m.pending = append(m.pending, init)
		m.logger.Debug().Int("buffered", len(m.pending)).Msg("candidate buffered")
		return nil
	}
	if err := m.pc.AddICECandidate(init); err != nil {
		return rtcerr.New("add candidate", err)
	}
	return nil
}

// flushCandidatesLocked applies buffered candidates in arrival order.
func (m *Manager) flushCandidatesLocked() error {
	for _, init := range m.pending {
		if err := m.pc.AddICECandidate(init); err != nil {
			return err
		}
	}
	if n := len(m.pending); n > 0 {
		m.logger.Debug().Int("applied", n).Msg("buffered candidates applied")
	}
	m.pending = nil
	return nil
}

// ensurePCLocked builds the peer connection on first use, publishing local
// tracks or falling back to receive-only transceivers.
func (m *Manager) ensurePCLocked() error {
	if m.pc != nil {
		return nil
	}
	if m.acq == nil {
		return rtcerr.Wrap("peer connection", rtcerr.ErrNegotiationFailed, "no media acquisition")
	}

	rtcConfig := webrtc.Configuration{ICEServers: m.cfg.ICEServers}
	if m.cfg.ForceRelay {
		rtcConfig.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}
	pc, err := m.acq.API.NewPeerConnection(rtcConfig)
	if err != nil {
		return err
	}

	if len(m.acq.Tracks) == 0 {
		if err := addRecvOnlyTransceivers(pc); err != nil {
			pc.Close()
			return err
		}
	}
	for _, track := range m.acq.Tracks {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return err
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		m.mu.Lock()
		roomID, closed := m.roomID, m.state == StateClosed || m.state == StateError
		m.mu.Unlock()
		if closed {
			return
		}
		m.cfg.Publisher.Publish(signaling.NewCandidate(roomID, m.cfg.EndpointID, payload))
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		m.logger.Info().
			Str("kind", track.Kind().String()).
			Str("id", track.ID()).
			Msg("remote track")
		if m.cfg.OnRemoteTrack != nil {
			m.cfg.OnRemoteTrack(track, receiver)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.onConnectionState(pc, state)
	})

	m.pc = pc
	return nil
}

// onConnectionState maps transport state to manager state. Stale callbacks
// from a replaced or closed connection are ignored.
func (m *Manager) onConnectionState(pc *webrtc.PeerConnection, state webrtc.PeerConnectionState) {
	m.mu.Lock()
	if m.pc != pc || m.state == StateClosed || m.state == StateError {
		m.mu.Unlock()
		return
	}
	m.logger.Debug().Str("state", state.String()).Msg("connection state")

	switch state {
	case webrtc.PeerConnectionStateConnected:
		m.state = StateConnected
		m.mu.Unlock()
		m.connOnce.Do(func() { close(m.connectedCh) })

	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		// ICE already waited out its disconnection grace period before
		// reporting failed (see media.iceSettingEngine).
		m.mu.Unlock()
		m.Close()

	default:
		m.mu.Unlock()
	}
}

// resetPCLocked discards the current peer connection but keeps local media.
func (m *Manager) resetPCLocked() {
	if m.pc != nil {
		m.pc.Close()
		m.pc = nil
	}
	m.remoteSet = false
	m.answerSeen = false
	m.pending = nil
}

// failLocked records the failure, tears everything down and returns the
// wrapped error.
func (m *Manager) failLocked(op string, err error) error {
	m.state = StateError
	m.logger.Error().Err(err).Str("op", op).Msg("negotiation failed")
	m.teardownLocked()
	m.closeOnce.Do(func() { close(m.closedCh) })
	return rtcerr.Wrap(op, rtcerr.ErrNegotiationFailed, err.Error())
}

// teardownLocked releases the connection and stops local media.
func (m *Manager) teardownLocked() {
	if m.pc != nil {
		m.pc.Close()
		m.pc = nil
	}
	if m.acq != nil {
		m.acq.Close()
		m.acq = nil
	}
	m.pending = nil
}

// Close stops local media tracks and releases the connection. Idempotent and
// safe from any state, including concurrently with in-flight negotiation:
// later completions observe the closed state and no-op.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state != StateError {
		m.state = StateClosed
	}
	m.teardownLocked()
	m.mu.Unlock()
	m.closeOnce.Do(func() { close(m.closedCh) })
}

// Run consumes signals until the stream closes, the context is cancelled or
// the connection ends. Serialization happens inside HandleSignal; Run only
// feeds it.
func (m *Manager) Run(ctx context.Context, signals <-chan signaling.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.closedCh:
			return
		case msg, ok := <-signals:
			if !ok {
				return
			}
			if err := m.HandleSignal(msg); err != nil {
				m.logger.Warn().Err(err).Str("type", string(msg.Type)).Msg("signal handling failed")
			}
		}
	}
}

func addRecvOnlyTransceivers(pc *webrtc.PeerConnection) error {
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}
	return nil
}
