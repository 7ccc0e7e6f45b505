package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/ytvoice/internal/ai"
	"github.com/neboloop/ytvoice/internal/assistant"
	"github.com/neboloop/ytvoice/internal/events"
	"github.com/neboloop/ytvoice/internal/logging"
	"github.com/neboloop/ytvoice/internal/voice"
)

// AskCmd records one spoken question on the local microphone and speaks the answer.
func AskCmd() *cobra.Command {
	var (
		videoID     string
		title       string
		position    float64
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask a spoken question about a video",
		Long: `Record a question from the local microphone, answer it using the video's
subtitles and earlier questions, and play the spoken answer.

Subtitles are looked up in the cache and then in <data dir>/subtitles/<video id>.{json,srt,xml};
import them first with 'ytvoice subtitles import'.

Examples:
  ytvoice ask --video dQw4w9WgXcQ --position 42
  ytvoice ask --video dQw4w9WgXcQ --interactive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			q := assistant.Query{VideoID: videoID, Title: title, Position: position}
			return runAsk(ctx, q, interactive, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&videoID, "video", "", "YouTube video id (required)")
	cmd.Flags().StringVar(&title, "title", "", "video title")
	cmd.Flags().Float64Var(&position, "position", 0, "playback position in seconds")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "keep asking until 'q'")
	cmd.MarkFlagRequired("video")

	return cmd
}

func runAsk(ctx context.Context, q assistant.Query, interactive bool, in io.Reader, out io.Writer) error {
	a, err := openApp(AppConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := logging.L()
	clients, err := ai.FromConfig(AppConfig, logger)
	if err != nil {
		return err
	}

	mic := voice.NewCommandMicrophone(AppConfig.Voice.InputCommand, logger)
	player := voice.NewCommandPlayer(AppConfig.Voice.PlayerCommand, logger)
	asst, err := a.newAssistant(clients, mic, player, logger)
	if err != nil {
		return err
	}
	defer asst.Close()

	sub := events.Subscribe(a.bus, events.TopicStatus, func(ctx context.Context, e statusEvent) error {
		logger.DebugContext(ctx, "status", "message", e.Message, "phase", e.Phase)
		return nil
	})
	defer sub.Unsubscribe()
	publish := a.publishStatus()
	status := func(message string, phase assistant.Phase) {
		printStatus(out, statusEvent{Message: message, Phase: phase})
		publish(message, phase)
	}

	if !interactive {
		res, err := asst.Ask(ctx, q, status)
		printResult(out, res)
		return err
	}

	fmt.Fprintln(out, "Press Enter to ask. Commands: p <seconds>, replay, reset, history, q")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "\n[%s @ %s] > ", q.VideoID, formatPosition(q.Position))
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "":
			res, _ := asst.Ask(ctx, q, status)
			printResult(out, res)
		case "p", "pos", "position":
			p, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
			if err != nil || p < 0 {
				fmt.Fprintln(out, "usage: p <seconds>")
				continue
			}
			q.Position = p
		case "replay":
			if err := asst.Replay(ctx); err != nil {
				fmt.Fprintf(out, "Replay failed: %v\n", err)
			}
		case "reset":
			if err := asst.Reset(q.VideoID); err != nil {
				fmt.Fprintf(out, "Reset failed: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "Conversation cleared")
		case "history":
			for _, v := range asst.Summary() {
				marker := " "
				if v.Current {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s  %d questions  %d answers\n", marker, v.VideoID, v.UserTurns, v.AssistantTurns)
			}
		case "q", "quit", "exit":
			return nil
		default:
			fmt.Fprintf(out, "unknown command %q\n", cmd)
		}
	}
}

func printStatus(w io.Writer, e statusEvent) {
	switch e.Phase {
	case assistant.PhaseError:
		fmt.Fprintf(w, "\033[31m%s\033[0m\n", e.Message)
	case assistant.PhaseSuccess:
		fmt.Fprintf(w, "\033[32m%s\033[0m\n", e.Message)
	case assistant.PhaseInfo:
		fmt.Fprintf(w, "\033[33m%s\033[0m\n", e.Message)
	default:
		fmt.Fprintf(w, "\033[2m%s\033[0m\n", e.Message)
	}
}

// printResult shows the exchange. A failed query that still produced an
// answer (playback failure) is printed too.
func printResult(w io.Writer, res *assistant.Result) {
	if res == nil || res.Answer == "" {
		return
	}
	fmt.Fprintf(w, "\n\033[1mQ:\033[0m %s\n", res.Question)
	fmt.Fprintf(w, "\033[1mA:\033[0m %s\n", res.Answer)
	if res.UsedFallback {
		fmt.Fprintln(w, "\033[2m(recorded with fixed-duration fallback)\033[0m")
	}
	fmt.Fprintf(w, "\033[2mrecording %s, transcription %s, completion %s, playback %s\033[0m\n",
		res.Timings.Recording.Round(msRound), res.Timings.Transcription.Round(msRound),
		res.Timings.Completion.Round(msRound), res.Timings.Playback.Round(msRound))
}

// formatPosition renders seconds as m:ss.
func formatPosition(sec float64) string {
	s := int(sec)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

const msRound = time.Millisecond
