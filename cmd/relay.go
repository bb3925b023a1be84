package cmd

import (
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/relay"
	"github.com/BioHazard786/Warpcall/internal/session"
	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagAddr  string
	flagDebug bool
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay",
	Long: `Run the signaling relay that pairs two participants per room and forwards
their offers, answers and ICE candidates.

Examples:
  warpcall relay
  warpcall relay --addr :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(config.Options{RelayAddr: flagAddr})
		if err != nil {
			return err
		}

		// the relay logs at info or lower, unlike the client default of error
		if !slog.Default().Enabled(cmd.Context(), slog.LevelInfo) {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), slog.LevelInfo))
		}

		ui.PrintInfof("%s relay listening on %s", ui.IconRelay, cfg.RelayAddr)
		srv := &relay.Server{
			Addr:   cfg.RelayAddr,
			Debug:  flagDebug,
			Logger: logging.Component("relay"),
		}
		if err := srv.ListenAndServe(cmd.Context()); err != nil {
			return session.NewError("run relay", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default :8080)")
	relayCmd.Flags().BoolVar(&flagDebug, "debug", false, "Run gin in debug mode")
}
