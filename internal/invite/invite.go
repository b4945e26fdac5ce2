// Package invite implements the call invitation handshake: a caller announces
// intent to call before any media negotiation, and the callee accepts or
// declines. The handshake runs over the same signaling channel as media
// negotiation; Bus is the in-process stand-in for single-machine demos.
package invite

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/medibridge/telecall/internal/rtcerr"
	"github.com/medibridge/telecall/internal/signaling"
)

// Status is the invitation state. Transitions: idle -> ringing ->
// accepted | declined | timed-out. An invitation resolves exactly once and
// is not persisted beyond the handshake.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRinging  Status = "ringing"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusTimedOut Status = "timed-out"
)

// Invitation is one pending handshake.
type Invitation struct {
	Caller    string
	RoomID    string
	Status    Status
	CreatedAt time.Time
}

// Publisher sends invitation messages to every endpoint sharing the
// signaling scope. Satisfied by *signaling.Channel and *Bus.
type Publisher interface {
	Publish(msg signaling.Message)
}

// Coordinator drives invitation handshakes on both ends.
type Coordinator struct {
	pub     Publisher
	handler *signaling.Handler
	selfID  string
	timeout time.Duration
	logger  zerolog.Logger
}

// Config carries the coordinator dependencies.
type Config struct {
	Publisher Publisher
	Handler   *signaling.Handler
	SelfID    string
	Timeout   time.Duration
	Logger    *zerolog.Logger
}

func New(cfg Config) *Coordinator {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Coordinator{
		pub:     cfg.Publisher,
		handler: cfg.Handler,
		selfID:  cfg.SelfID,
		timeout: timeout,
		logger:  cfg.Logger.With().Str("component", "invite").Logger(),
	}
}

// Invite broadcasts a call-request for roomID and blocks until the callee
// responds or the timeout elapses. Timeout resolves the invitation as
// timed-out and is reported like a decline.
func (c *Coordinator) Invite(ctx context.Context, callerName, roomID string) (*Invitation, error) {
	inv := &Invitation{
		Caller:    callerName,
		RoomID:    roomID,
		Status:    StatusRinging,
		CreatedAt: time.Now(),
	}

	c.pub.Publish(signaling.Message{
		Type:   signaling.KindCallRequest,
		RoomID: roomID,
		From:   c.selfID,
		Caller: callerName,
	})
	c.logger.Info().Str("roomID", roomID).Str("caller", callerName).Msg("ringing")

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			inv.Status = StatusDeclined
			return inv, rtcerr.New("invite", ctx.Err())

		case <-timer.C:
			inv.Status = StatusTimedOut
			c.logger.Info().Str("roomID", roomID).Msg("invitation timed out")
			return inv, rtcerr.Wrap("invite", rtcerr.ErrInviteTimeout, roomID)

		case msg := <-c.handler.Accepts:
			if msg.RoomID != roomID || msg.From == c.selfID {
				continue
			}
			inv.Status = StatusAccepted
			c.logger.Info().Str("roomID", roomID).Msg("invitation accepted")
			return inv, nil

		case msg := <-c.handler.Declines:
			if msg.RoomID != roomID || msg.From == c.selfID {
				continue
			}
			inv.Status = StatusDeclined
			c.logger.Info().Str("roomID", roomID).Msg("invitation declined")
			return inv, rtcerr.Wrap("invite", rtcerr.ErrInviteDeclined, roomID)
		}
	}
}

// AwaitInvite blocks until a call-request arrives. When several invitations
// race, only the most recent one is kept (last-write-wins): this handshake
// has no server-side queuing, so stale requests are not worth presenting.
func (c *Coordinator) AwaitInvite(ctx context.Context) (*Invitation, error) {
	var latest *signaling.Message

	for latest == nil {
		select {
		case <-ctx.Done():
			return nil, rtcerr.New("await invite", ctx.Err())
		case msg := <-c.handler.Invites:
			if msg.From == c.selfID {
				continue
			}
			latest = &msg
		}
	}

	// drain anything that queued behind the first request
	for {
		select {
		case msg := <-c.handler.Invites:
			if msg.From == c.selfID {
				continue
			}
			latest = &msg
		default:
			return &Invitation{
				Caller:    latest.Caller,
				RoomID:    latest.RoomID,
				Status:    StatusRinging,
				CreatedAt: time.Now(),
			}, nil
		}
	}
}

// Accept resolves inv and notifies the caller. The caller may already be
// gone; negotiation then fails on its own connect timeout.
func (c *Coordinator) Accept(inv *Invitation) error {
	if inv.Status != StatusRinging {
		return rtcerr.Wrap("accept", rtcerr.ErrInviteDeclined, "invitation already resolved")
	}
	inv.Status = StatusAccepted
	c.pub.Publish(signaling.Message{
		Type:   signaling.KindCallAccepted,
		RoomID: inv.RoomID,
		From:   c.selfID,
	})
	c.logger.Info().Str("roomID", inv.RoomID).Msg("accepted")
	return nil
}

// Decline resolves inv and notifies the caller. No negotiation follows.
func (c *Coordinator) Decline(inv *Invitation) error {
	if inv.Status != StatusRinging {
		return rtcerr.Wrap("decline", rtcerr.ErrInviteDeclined, "invitation already resolved")
	}
	inv.Status = StatusDeclined
	c.pub.Publish(signaling.Message{
		Type:   signaling.KindCallDeclined,
		RoomID: inv.RoomID,
		From:   c.selfID,
	})
	c.logger.Info().Str("roomID", inv.RoomID).Msg("declined")
	return nil
}
