package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/medibridge/telecall/internal/config"
	"github.com/medibridge/telecall/internal/ui"
)

var (
	flagAnswerDomain    string
	flagAnswerBroker    string
	flagAnswerSTUN      string
	flagAnswerTURN      string
	flagAnswerTURNUser  string
	flagAnswerTURNPass  string
	flagAnswerRelay     bool
	flagAnswerAuto      bool
	flagAnswerDecline   bool
	flagAnswerNoVideo   bool
	flagAnswerNoAudio   bool
	flagAnswerSynthetic bool
)

var answerCmd = &cobra.Command{
	Use:     "answer <room-code>",
	Aliases: []string{"a"},
	Short:   "Wait for and answer an incoming call",
	Long: `Wait in a call room for an incoming call and answer it.

The room code comes from the caller or from the session registry. When the
call arrives you are prompted to accept or decline; --accept answers
immediately without prompting.

Examples:
  telecall answer X7KQ2M
  telecall answer X7KQ2M --accept
  telecall answer X7KQ2M --relay`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return answerCall(cmd.Context(), strings.TrimSpace(args[0]))
	},
}

func answerCall(parent context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room code cannot be empty")
	}

	cfg, err := LoadConfig(config.Options{
		Domain:     flagAnswerDomain,
		BrokerURL:  flagAnswerBroker,
		STUNServer: flagAnswerSTUN,
		TURNServer: flagAnswerTURN,
		TURNUser:   flagAnswerTURNUser,
		TURNPass:   flagAnswerTURNPass,
		ForceRelay: flagAnswerRelay,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to signaling broker...")
	cc, err := NewCallContext(ctx, cfg, roomID)
	if err != nil {
		stopSpinner()
		return err
	}
	defer cc.Close()
	stopSpinner()

	// an answered call that never reaches runLive still ends its session
	// record; a declined or failed one does too
	established := false
	defer func() {
		if !established {
			cc.markEnded(roomID)
		}
	}()

	coordinator := newInviteCoordinator(cc)

	sp := ui.NewWaitingSpinner("Waiting for incoming call...")
	sp.Start()
	inv, err := coordinator.AwaitInvite(ctx)
	if err != nil {
		sp.Stop()
		return err
	}
	sp.Stop()

	ui.PrintInfof("%s Incoming call from %s", ui.IconBell, ui.BoldStyle.Render(inv.Caller))

	if !acceptIncoming() {
		if err := coordinator.Decline(inv); err != nil {
			return err
		}
		ui.PrintInfo("Call declined")
		return nil
	}

	provider := mediaProvider(flagAnswerSynthetic, &cc.Logger)
	mgr := newPeerManager(cc, provider)
	defer mgr.Close()

	// Media is acquired before accepting so a device failure turns into a
	// decline instead of a dead accepted call.
	if err := mgr.AcquireMedia(callConstraints(flagAnswerNoVideo, flagAnswerNoAudio)); err != nil {
		declineErr := coordinator.Decline(inv)
		if declineErr != nil {
			cc.Logger.Warn().Err(declineErr).Msg("decline after media failure")
		}
		return err
	}

	if err := coordinator.Accept(inv); err != nil {
		return err
	}

	// The caller's offer follows the accept; the manager answers it.
	go mgr.Run(ctx, cc.Handler.Signals)

	if err := waitConnected(ctx, cc, mgr); err != nil {
		return err
	}
	established = true
	return runLive(ctx, cc, mgr, roomID)
}

// acceptIncoming resolves the accept/decline decision: flags first, then an
// interactive prompt defaulting to accept.
func acceptIncoming() bool {
	if flagAnswerDecline {
		return false
	}
	if flagAnswerAuto {
		return true
	}

	fmt.Printf("%s Accept call? [Y/n] ", ui.IconCall)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return true
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes"
}

func init() {
	rootCmd.AddCommand(answerCmd)

	answerCmd.Flags().StringVarP(&flagAnswerDomain, "domain", "d", "", "Custom domain")
	answerCmd.Flags().StringVar(&flagAnswerBroker, "broker", "", "Custom signaling broker websocket URL")
	answerCmd.Flags().StringVarP(&flagAnswerSTUN, "stun", "s", "", "Custom STUN server")
	answerCmd.Flags().StringVarP(&flagAnswerTURN, "turn", "t", "", "Custom TURN server")
	answerCmd.Flags().StringVar(&flagAnswerTURNUser, "turn-user", "", "TURN username")
	answerCmd.Flags().StringVar(&flagAnswerTURNPass, "turn-pass", "", "TURN password")
	answerCmd.Flags().BoolVarP(&flagAnswerRelay, "relay", "r", false, "Force relay mode")
	answerCmd.Flags().BoolVar(&flagAnswerAuto, "accept", false, "Accept the call without prompting")
	answerCmd.Flags().BoolVar(&flagAnswerDecline, "decline", false, "Decline the call and exit")
	answerCmd.Flags().BoolVar(&flagAnswerNoVideo, "no-video", false, "Answer with audio only")
	answerCmd.Flags().BoolVar(&flagAnswerNoAudio, "no-audio", false, "Answer without microphone")
	answerCmd.Flags().BoolVar(&flagAnswerSynthetic, "synthetic-media", false, "Use generated media instead of camera and microphone")
}
