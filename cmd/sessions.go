package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medibridge/telecall/internal/config"
	"github.com/medibridge/telecall/internal/logging"
	"github.com/medibridge/telecall/internal/session"
	"github.com/medibridge/telecall/internal/ui"
)

var (
	flagSessionsDomain   string
	flagSessionsRegistry string
	flagSessionsUser     string
	flagSessionsPass     string
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List call sessions known to the registry",
	Long: `List the call sessions tracked by the session registry.

Examples:
  telecall sessions --user dr.haynes --pass secret
  telecall sessions --registry https://calls.example.org --user dr.haynes --pass secret`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSessions(cmd.Context())
	},
}

func listSessions(ctx context.Context) error {
	cfg, err := LoadConfig(config.Options{
		Domain:   flagSessionsDomain,
		Registry: flagSessionsRegistry,
	})
	if err != nil {
		return err
	}

	logger := logging.NewConsole()
	client := session.NewClient(session.ClientConfig{
		BaseURL: cfg.RegistryURL,
		Logger:  &logger,
	})

	stopSpinner := ui.RunSpinner("Fetching sessions...")
	defer stopSpinner()

	if flagSessionsUser != "" {
		if err := client.Login(ctx, flagSessionsUser, flagSessionsPass); err != nil {
			return err
		}
	}

	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return err
	}
	stopSpinner()

	items := make([]ui.SessionTableItem, len(sessions))
	for i, s := range sessions {
		items[i] = ui.SessionTableItem{
			Index:     i + 1,
			Code:      s.Code,
			Encounter: s.EncounterID,
			Caller:    s.CallerID,
			Callee:    s.CalleeID,
			Status:    string(s.Status),
			Created:   s.CreatedAt.Format("2006-01-02 15:04"),
		}
	}
	fmt.Println()
	ui.RenderSessionTable(items)
	return nil
}

func init() {
	rootCmd.AddCommand(sessionsCmd)

	sessionsCmd.Flags().StringVarP(&flagSessionsDomain, "domain", "d", "", "Custom domain")
	sessionsCmd.Flags().StringVar(&flagSessionsRegistry, "registry", "", "Custom session registry URL")
	sessionsCmd.Flags().StringVarP(&flagSessionsUser, "user", "u", "", "Registry username")
	sessionsCmd.Flags().StringVarP(&flagSessionsPass, "pass", "p", "", "Registry password")
}
