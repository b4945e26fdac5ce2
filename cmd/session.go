package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/medibridge/telecall/internal/config"
	"github.com/medibridge/telecall/internal/invite"
	"github.com/medibridge/telecall/internal/logging"
	"github.com/medibridge/telecall/internal/media"
	"github.com/medibridge/telecall/internal/peer"
	"github.com/medibridge/telecall/internal/rtcerr"
	"github.com/medibridge/telecall/internal/session"
	"github.com/medibridge/telecall/internal/signaling"
	"github.com/medibridge/telecall/internal/ui"
)

// CallContext bundles everything one endpoint needs for a live call: the
// broker subscription, the message router, the registry client and the
// endpoint identity.
type CallContext struct {
	Channel    *signaling.Channel
	Handler    *signaling.Handler
	Registry   *session.Client
	Config     *config.Config
	Logger     zerolog.Logger
	EndpointID string
}

// NewCallContext connects to the broker, subscribes to roomID and starts
// routing the room traffic.
func NewCallContext(ctx context.Context, cfg *config.Config, roomID string) (*CallContext, error) {
	logger := logging.NewConsole()

	// The endpoint id doubles as the glare tie-breaker, so it must be
	// unique per process, not per user.
	endpointID := uuid.NewString()

	channel := signaling.NewChannel(signaling.ChannelConfig{
		BrokerURL:  cfg.WebSocketURL,
		EndpointID: endpointID,
		Reconnect:  signaling.DefaultReconnectPolicy(),
		Logger:     &logger,
	})
	if err := channel.Connect(ctx, roomID); err != nil {
		return nil, err
	}

	handler := signaling.NewHandler()
	go handler.Run(channel.Incoming())

	registry := session.NewClient(session.ClientConfig{
		BaseURL: cfg.RegistryURL,
		Logger:  &logger,
	})

	return &CallContext{
		Channel:    channel,
		Handler:    handler,
		Registry:   registry,
		Config:     cfg,
		Logger:     logger,
		EndpointID: endpointID,
	}, nil
}

// markActive records in the registry that the call's media path is up. The
// registry is best effort on the call path: locally generated room codes are
// unknown to it, so failures are logged, never fatal.
func (c *CallContext) markActive(ctx context.Context, roomID string) {
	if err := c.Registry.SetActive(ctx, roomID); err != nil {
		c.Logger.Debug().Err(err).Str("roomID", roomID).Msg("session not marked active")
	}
}

// markEnded records the session end. It runs on its own timeout because the
// command context is usually already cancelled at hangup.
func (c *CallContext) markEnded(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Registry.EndSession(ctx, roomID); err != nil {
		c.Logger.Debug().Err(err).Str("roomID", roomID).Msg("session not marked ended")
	}
}

func (c *CallContext) Close() {
	if c.Handler != nil {
		c.Handler.Close()
	}
	if c.Channel != nil {
		c.Channel.Disconnect()
	}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, rtcerr.New("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// iceServers builds the webrtc ICE server list from config.
func iceServers(cfg *config.Config) []webrtc.ICEServer {
	servers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}
	if turn := cfg.GetTURNServers(); turn != nil {
		user, pass := cfg.GetTURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   user,
			Credential: pass,
		})
	}
	return servers
}

// callConstraints maps the CLI opt-out flags to media constraints.
func callConstraints(noVideo, noAudio bool) media.Constraints {
	return media.Constraints{Video: !noVideo, Audio: !noAudio}
}

// mediaProvider picks hardware capture or the synthetic generator.
func mediaProvider(synthetic bool, logger *zerolog.Logger) media.Provider {
	if synthetic {
		return media.NewSynthetic()
	}
	return media.NewDevice(logger)
}

func newPeerManager(cc *CallContext, provider media.Provider) *peer.Manager {
	return peer.NewManager(peer.Config{
		EndpointID: cc.EndpointID,
		ICEServers: iceServers(cc.Config),
		ForceRelay: cc.Config.ForceRelay,
		Publisher:  cc.Channel,
		Media:      provider,
		Logger:     &cc.Logger,
		OnRemoteTrack: func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			ui.PrintInfof("%s Receiving remote %s", ui.IconVideo, track.Kind().String())
		},
	})
}

func newInviteCoordinator(cc *CallContext) *invite.Coordinator {
	return invite.New(invite.Config{
		Publisher: cc.Channel,
		Handler:   cc.Handler,
		SelfID:    cc.EndpointID,
		Timeout:   cc.Config.InviteTimeout,
		Logger:    &cc.Logger,
	})
}

// waitConnected blocks until the peer connection reports a usable media path
// or the connect timeout elapses.
func waitConnected(ctx context.Context, cc *CallContext, mgr *peer.Manager) error {
	stopSpinner := ui.RunConnectionSpinner("Establishing media connection...")
	defer stopSpinner()

	timer := time.NewTimer(cc.Config.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-mgr.Connected():
		return nil
	case <-mgr.Done():
		return rtcerr.Wrap("connect call", rtcerr.ErrNegotiationFailed, "connection closed during setup")
	case <-timer.C:
		return rtcerr.Wrap("connect call", rtcerr.ErrNegotiationFailed, "timed out waiting for media path")
	case <-ctx.Done():
		return rtcerr.New("connect call", ctx.Err())
	}
}

// runLive holds the established call until either side hangs up or the
// transport dies. On local interrupt it publishes a hangup first so the far
// end tears down promptly instead of waiting out ICE timeouts. The session
// record follows the call: active while media flows, ended on every exit.
func runLive(ctx context.Context, cc *CallContext, mgr *peer.Manager, roomID string) error {
	ui.PrintSuccessf("Call connected %s  (Ctrl+C to hang up)", ui.IconCall)

	cc.markActive(ctx, roomID)
	defer cc.markEnded(roomID)

	select {
	case <-ctx.Done():
		cc.Channel.Publish(signaling.Message{
			Type:   signaling.KindHangup,
			RoomID: roomID,
			From:   cc.EndpointID,
		})
		mgr.Close()
		ui.PrintInfo("Call ended")
		return nil

	case msg := <-cc.Handler.Hangups:
		if msg.From != cc.EndpointID {
			mgr.Close()
			ui.PrintInfof("%s The other party hung up", ui.IconBell)
		}
		return nil

	case <-mgr.Done():
		if mgr.State() == peer.StateError {
			return rtcerr.Wrap("call", rtcerr.ErrPeerClosed, "media connection failed")
		}
		ui.PrintWarning("Media connection lost")
		return nil
	}
}
