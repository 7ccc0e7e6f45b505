package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/neboloop/ytvoice/internal/voice"
)

// ModelsCmd manages the Silero voice detection model.
func ModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage voice detection models",
		Long: `The Silero detector needs silero_vad.onnx in the models directory and the
ONNX Runtime shared library (set YTVOICE_ONNXRUNTIME_LIB if it is not in a
standard location). Without them the energy detector is used.`,
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show which models are present",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			m := voice.DefaultModels()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Models directory: %s\n", m.Dir)
			for _, s := range m.Status() {
				mark := "\033[31m✗\033[0m"
				if s.Downloaded {
					mark = "\033[32m✓\033[0m"
				}
				fmt.Fprintf(out, "  %s %s (%s)\n", mark, s.Name, formatBytes(s.Size))
			}
		},
	}

	download := &cobra.Command{
		Use:   "download",
		Short: "Download missing models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			m := voice.DefaultModels()
			if m.Ready() {
				fmt.Fprintln(cmd.OutOrStdout(), "All models present")
				return nil
			}
			out := cmd.OutOrStdout()
			err := m.Download(ctx, func(p voice.DownloadProgress) {
				switch {
				case p.Error != "":
					fmt.Fprintf(out, "\n%s: %s\n", p.Model, p.Error)
				case p.Done:
					fmt.Fprintf(out, "\r%s: done%20s\n", p.Model, "")
				case p.Total > 0:
					fmt.Fprintf(out, "\r%s: %s / %s", p.Model, formatBytes(p.Downloaded), formatBytes(p.Total))
				}
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Models ready")
			return nil
		},
	}

	cmd.AddCommand(status, download)
	return cmd
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
