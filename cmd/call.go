package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/session"
	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagUser      string
	flagSTUN      string
	flagTURN      string
	flagTURNUser  string
	flagTURNPass  string
	flagRelayOnly bool
	flagCodec     string
	flagAudioOnly bool
)

var callCmd = &cobra.Command{
	Use:     "call <room-id>",
	Aliases: []string{"c"},
	Short:   "Join a room and call the other participant",
	Long: `Join a room on the signaling relay. Once the other participant is there,
press c to call them; an incoming call is answered automatically.

Examples:
  warpcall call 1234
  warpcall call 1234 --user alice --audio-only
  warpcall call 1234 --server ws://localhost:8080/ws --codec msgpack
  warpcall call 1234 --turn turn:turn.example.com --turn-user u --turn-pass p --relay-only`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinCall(cmd.Context(), args[0])
	},
}

func joinCall(ctx context.Context, roomID string) error {
	cfg, err := LoadConfig(config.Options{
		ServerURL:  flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelayOnly,
		RoomID:     roomID,
		UserID:     flagUser,
		Codec:      flagCodec,
		AudioOnly:  flagAudioOnly,
	})
	if err != nil {
		return err
	}
	if err := cfg.RequireRoom(); err != nil {
		return err
	}
	if cfg.UserID == "" {
		cfg.UserID = "guest-" + lo.RandomString(6, lo.LowerCaseLettersCharset)
	}
	if !media.HardwareCapture {
		ui.PrintInfo("built without device drivers, sending test pattern and tone")
	}

	sp := ui.NewConnectionSpinner("Connecting to relay...")
	sp.Start()
	connCtx, err := NewConnectionContext(ctx, cfg)
	if err != nil {
		sp.Error("Could not reach the relay")
		return err
	}
	defer connCtx.Close()
	sp.Stop()

	ctrl := connCtx.Controller

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(runCtx) }()

	if err := ctrl.Join(runCtx); err != nil {
		return err
	}
	go acquireMedia(runCtx, ctrl)

	fmt.Fprintln(ui.Out, ui.RoomInfo{RoomID: cfg.RoomID, UserID: cfg.UserID, Server: cfg.ServerURL}.View())

	go func() {
		select {
		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				connCtx.log.Error("session stopped", "error", err)
			}
			_ = ctrl.Leave()
		case <-runCtx.Done():
		}
	}()

	final, duration, err := ui.RunCallView(ctrl.Snapshot(), ctrl.Updates(), ui.Actions{
		StartCall: func() error { return ctrl.StartCall(runCtx) },
		RetryMedia: func() error { return ctrl.RetryMedia(runCtx) },
	})
	if err != nil {
		return session.NewError("call view", err)
	}

	fmt.Fprintln(ui.Out)
	ui.RenderCallSummary(ui.SummaryFromSnapshot(final, duration))
	ui.PrintInfo(ui.IconHangup + " call ended")
	return nil
}

// acquireMedia runs the first capture in the background; failures end up in the snapshot.
func acquireMedia(ctx context.Context, ctrl *session.Controller) {
	if err := ctrl.AcquireMedia(ctx); err != nil {
		slog.Debug("initial media acquisition failed", "error", err)
	}
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVarP(&flagServer, "server", "S", "", "Signaling relay websocket URL")
	callCmd.Flags().StringVarP(&flagUser, "user", "n", "", "Display name announced to the room")
	callCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	callCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	callCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	callCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	callCmd.Flags().BoolVarP(&flagRelayOnly, "relay-only", "r", false, "Force relay mode")
	callCmd.Flags().StringVar(&flagCodec, "codec", "", "Signaling wire format (json or msgpack)")
	callCmd.Flags().BoolVarP(&flagAudioOnly, "audio-only", "a", false, "Do not request the camera")
}
