package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/medibridge/telecall/internal/config"
	"github.com/medibridge/telecall/internal/logging"
	"github.com/medibridge/telecall/internal/rtcerr"
	"github.com/medibridge/telecall/internal/session"
	"github.com/medibridge/telecall/internal/ui"
)

var (
	flagCallDomain    string
	flagCallBroker    string
	flagCallRegistry  string
	flagCallSTUN      string
	flagCallTURN      string
	flagCallTURNUser  string
	flagCallTURNPass  string
	flagCallRelay     bool
	flagCallName      string
	flagCallEncounter string
	flagCallCallee    string
	flagCallRoom      string
	flagCallNoVideo   bool
	flagCallNoAudio   bool
	flagCallSynthetic bool
)

var callCmd = &cobra.Command{
	Use:     "call",
	Aliases: []string{"c"},
	Short:   "Place a video call",
	Long: `Place a video call to the other party of an encounter.

A call session is registered for the encounter, the other party is rung
through the signaling broker, and once they accept, audio and video flow
directly between the two endpoints.

Examples:
  telecall call --encounter ENC-2041 --callee dr.haynes --name "Alex Moran"
  telecall call --room X7KQ2M --name "Alex Moran"
  telecall call --encounter ENC-2041 --callee dr.haynes --relay`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return placeCall(cmd.Context())
	},
}

func placeCall(parent context.Context) error {
	cfg, err := LoadConfig(config.Options{
		Domain:     flagCallDomain,
		BrokerURL:  flagCallBroker,
		Registry:   flagCallRegistry,
		STUNServer: flagCallSTUN,
		TURNServer: flagCallTURN,
		TURNUser:   flagCallTURNUser,
		TURNPass:   flagCallTURNPass,
		ForceRelay: flagCallRelay,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	roomID, err := resolveRoom(ctx, cfg)
	if err != nil {
		return err
	}
	ui.RenderRoomInfo(roomID)

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to signaling broker...")
	cc, err := NewCallContext(ctx, cfg, roomID)
	if err != nil {
		stopSpinner()
		return err
	}
	defer cc.Close()
	stopSpinner()

	// a call that never reaches runLive still ends its session record
	established := false
	defer func() {
		if !established {
			cc.markEnded(roomID)
		}
	}()

	provider := mediaProvider(flagCallSynthetic, &cc.Logger)
	mgr := newPeerManager(cc, provider)
	defer mgr.Close()

	if err := mgr.AcquireMedia(callConstraints(flagCallNoVideo, flagCallNoAudio)); err != nil {
		return err
	}

	if err := ringCallee(ctx, cc, roomID); err != nil {
		return err
	}

	go mgr.Run(ctx, cc.Handler.Signals)
	if err := mgr.CreateOffer(roomID); err != nil {
		return err
	}

	if err := waitConnected(ctx, cc, mgr); err != nil {
		return err
	}
	established = true
	return runLive(ctx, cc, mgr, roomID)
}

// resolveRoom obtains the room id: an explicit --room joins an existing
// session, otherwise the registry creates one for the encounter. A degraded
// registry falls back to a locally generated code inside the client.
func resolveRoom(ctx context.Context, cfg *config.Config) (string, error) {
	if flagCallRoom != "" {
		return flagCallRoom, nil
	}
	if flagCallEncounter == "" || flagCallCallee == "" {
		return "", fmt.Errorf("either --room or both --encounter and --callee are required")
	}

	logger := logging.NewConsole()
	client := session.NewClient(session.ClientConfig{
		BaseURL: cfg.RegistryURL,
		Logger:  &logger,
	})
	return client.CreateSession(ctx, flagCallEncounter, flagCallCallee)
}

// ringCallee runs the invitation handshake and reports the outcome.
func ringCallee(ctx context.Context, cc *CallContext, roomID string) error {
	fmt.Println()
	sp := ui.NewWaitingSpinner(fmt.Sprintf("Ringing %s...", ui.IconBell))
	sp.Start()

	coordinator := newInviteCoordinator(cc)
	_, err := coordinator.Invite(ctx, flagCallName, roomID)
	switch {
	case errors.Is(err, rtcerr.ErrInviteTimeout):
		sp.Error("No answer")
		return err
	case errors.Is(err, rtcerr.ErrInviteDeclined):
		sp.Error("Call declined")
		return err
	case err != nil:
		sp.Stop()
		return err
	}

	sp.Success("Call accepted")
	return nil
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVarP(&flagCallEncounter, "encounter", "e", "", "Encounter identifier to register the call under")
	callCmd.Flags().StringVarP(&flagCallCallee, "callee", "c", "", "User id of the party being called")
	callCmd.Flags().StringVarP(&flagCallName, "name", "n", "TeleCall user", "Display name shown to the callee")
	callCmd.Flags().StringVar(&flagCallRoom, "room", "", "Join an existing call room instead of registering a new session")
	callCmd.Flags().StringVarP(&flagCallDomain, "domain", "d", "", "Custom domain")
	callCmd.Flags().StringVar(&flagCallBroker, "broker", "", "Custom signaling broker websocket URL")
	callCmd.Flags().StringVar(&flagCallRegistry, "registry", "", "Custom session registry URL")
	callCmd.Flags().StringVarP(&flagCallSTUN, "stun", "s", "", "Custom STUN server")
	callCmd.Flags().StringVarP(&flagCallTURN, "turn", "t", "", "Custom TURN server")
	callCmd.Flags().StringVar(&flagCallTURNUser, "turn-user", "", "TURN username")
	callCmd.Flags().StringVar(&flagCallTURNPass, "turn-pass", "", "TURN password")
	callCmd.Flags().BoolVarP(&flagCallRelay, "relay", "r", false, "Force relay mode")
	callCmd.Flags().BoolVar(&flagCallNoVideo, "no-video", false, "Audio-only call")
	callCmd.Flags().BoolVar(&flagCallNoAudio, "no-audio", false, "Video without microphone")
	callCmd.Flags().BoolVar(&flagCallSynthetic, "synthetic-media", false, "Use generated media instead of camera and microphone")
}
