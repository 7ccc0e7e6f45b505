package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neboloop/ytvoice/internal/ai"
	"github.com/neboloop/ytvoice/internal/logging"
	"github.com/neboloop/ytvoice/internal/server"
	"github.com/neboloop/ytvoice/internal/voice"
)

// ServeCmd runs the WebSocket server used by the browser extension.
func ServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the voice server for the browser extension",
		Long: `Serve the voice WebSocket (/ws/voice) and the subtitle API (/v1/subtitles).

Each browser connection gets its own assistant and conversation history.
The page streams microphone audio to the server and plays the reply audio it
receives back.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				AppConfig.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")

	return cmd
}

func runServe(ctx context.Context) error {
	cfg := AppConfig
	logger := logging.L()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Enforce single instance with lock file
	lockFile, err := acquireLock(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("%w (is another ytvoice server running?)", err)
	}
	defer releaseLock(lockFile)

	clients, err := ai.FromConfig(cfg, logger)
	if err != nil {
		return err
	}
	a.watchSettings(ctx)

	format := voice.Format{SampleRate: cfg.Voice.SampleRate, FrameSamples: cfg.Voice.FrameSamples}
	handler := server.NewRouter(server.Deps{
		NewAssistant: func(mic voice.Microphone, player voice.Player, logger *slog.Logger) (server.Assistant, error) {
			asst, err := a.newAssistant(clients, mic, player, logger)
			if err != nil {
				return nil, err
			}
			return asst, nil
		},
		Subtitles: a.subs,
		Version:   Version,
	}, server.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Format:         format,
		Logger:         logger,
	})

	logger.Info("ytvoice server starting", "addr", cfg.Server.Addr, "provider", clients.Completer.ID())
	return server.Run(ctx, cfg.Server.Addr, handler, logger)
}
