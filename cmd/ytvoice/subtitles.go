package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/neboloop/ytvoice/internal/subtitles"
)

// SubtitlesCmd manages the subtitle cache.
func SubtitlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subtitles",
		Aliases: []string{"subs"},
		Short:   "Manage cached subtitles",
	}
	cmd.AddCommand(subtitlesImportCmd(), subtitlesListCmd(), subtitlesShowCmd(), subtitlesDeleteCmd())
	return cmd
}

func subtitlesImportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <video-id> <file>",
		Short: "Import an SRT, timedtext XML or JSON subtitle file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, path := args[0], args[1]
			if !subtitles.ValidVideoID(videoID) {
				return fmt.Errorf("invalid video id %q", videoID)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			a, err := openApp(AppConfig)
			if err != nil {
				return err
			}
			defer a.Close()

			track, err := a.subs.Import(cmd.Context(), videoID, subtitles.Format(format), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cues for %s\n", len(track.Entries), videoID)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json, srt or xml (default: detect)")
	return cmd
}

func subtitlesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached subtitles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(AppConfig)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.subs.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached subtitles")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VIDEO\tSOURCE\tFETCHED")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.VideoID, r.Source, r.FetchedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func subtitlesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <video-id>",
		Short: "Print the cues for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(AppConfig)
			if err != nil {
				return err
			}
			defer a.Close()

			track, err := a.subs.Fetch(cmd.Context(), args[0])
			if errors.Is(err, subtitles.ErrNotFound) {
				return fmt.Errorf("no subtitles for %s", args[0])
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range track.Entries {
				fmt.Fprintf(out, "[%s] %s\n", formatPosition(e.Start), e.Text)
			}
			return nil
		},
	}
}

func subtitlesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <video-id>",
		Aliases: []string{"rm"},
		Short:   "Remove cached subtitles for a video",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(AppConfig)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.subs.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted subtitles for %s\n", args[0])
			return nil
		},
	}
}
