package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/ytvoice/internal/ai"
	"github.com/neboloop/ytvoice/internal/analytics"
	"github.com/neboloop/ytvoice/internal/crashlog"
	"github.com/neboloop/ytvoice/internal/db"
	"github.com/neboloop/ytvoice/internal/keyring"
	"github.com/neboloop/ytvoice/internal/logging"
	"github.com/neboloop/ytvoice/internal/voice"
)

// DoctorCmd creates the doctor command for health checks
func DoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system health and diagnose issues",
		Long: `Run diagnostics on your ytvoice installation.

Checks:
  - Data directory and database
  - API keys and keychain
  - Microphone and audio player commands
  - Voice detection engine
  - Ollama connectivity (when selected)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if n := runDoctor(ctx, cmd.OutOrStdout()); n > 0 {
				return fmt.Errorf("%d check(s) failed", n)
			}
			return nil
		},
	}
}

type checkResult struct {
	name    string
	status  string // "ok", "warn", "error"
	message string
}

// runDoctor prints every check and returns the number of errors.
func runDoctor(ctx context.Context, out io.Writer) int {
	fmt.Fprintln(out, "\033[1mytvoice doctor\033[0m")
	fmt.Fprintln(out, "==============")
	fmt.Fprintln(out)

	var results []checkResult
	results = append(results, checkDataDir()...)
	results = append(results, checkAPIKeys()...)
	results = append(results, checkAudio()...)
	results = append(results, checkVoiceDetection()...)
	results = append(results, checkOllama(ctx)...)

	errors := 0
	for _, r := range results {
		var icon string
		switch r.status {
		case "ok":
			icon = "\033[32m✓\033[0m"
		case "warn":
			icon = "\033[33m⚠\033[0m"
		default:
			icon = "\033[31m✗\033[0m"
			errors++
		}
		fmt.Fprintf(out, "%s %-20s %s\n", icon, r.name, r.message)
	}
	fmt.Fprintln(out)
	return errors
}

func checkDataDir() []checkResult {
	cfg := AppConfig
	var results []checkResult

	if info, err := os.Stat(cfg.DataDir); err != nil || !info.IsDir() {
		results = append(results, checkResult{"data directory", "warn", cfg.DataDir + " does not exist yet"})
		return results
	}
	results = append(results, checkResult{"data directory", "ok", cfg.DataDir})

	store, err := db.NewSQLite(cfg.DBPath(), logging.L())
	if err != nil {
		return append(results, checkResult{"database", "error", err.Error()})
	}
	defer store.Close()
	n, err := store.CountEvents(context.Background(), analytics.EventVoiceQuery)
	if err != nil {
		return append(results, checkResult{"database", "error", err.Error()})
	}
	results = append(results, checkResult{"database", "ok", fmt.Sprintf("%d voice queries recorded", n)})

	crashes, err := store.CountEvents(context.Background(), crashlog.EventName)
	if err == nil && crashes > 0 {
		results = append(results, checkResult{"crash log", "warn", fmt.Sprintf("%d crash records in %s", crashes, cfg.DBPath())})
	}
	return results
}

func checkAPIKeys() []checkResult {
	cfg := AppConfig
	var results []checkResult

	if keyring.Available() {
		results = append(results, checkResult{"keychain", "ok", "available"})
	} else {
		results = append(results, checkResult{"keychain", "warn", "unavailable; keys must come from config or environment"})
	}

	if cfg.ResolveAPIKey("openai") == "" {
		results = append(results, checkResult{"openai key", "error", "missing (needed for transcription)"})
	} else {
		results = append(results, checkResult{"openai key", "ok", "set"})
	}
	if cfg.Provider == "anthropic" {
		if cfg.ResolveAPIKey("anthropic") == "" {
			results = append(results, checkResult{"anthropic key", "error", "missing"})
		} else {
			results = append(results, checkResult{"anthropic key", "ok", "set"})
		}
	}
	return results
}

func checkAudio() []checkResult {
	cfg := AppConfig
	var results []checkResult

	if argv, err := voice.CaptureCommand(cfg.Voice.InputCommand, cfg.Voice.SampleRate); err != nil {
		results = append(results, checkResult{"microphone", "warn", err.Error() + " (only needed for 'ytvoice ask')"})
	} else {
		results = append(results, checkResult{"microphone", "ok", argv[0]})
	}
	if argv, err := voice.PlayerCommand(cfg.Voice.PlayerCommand, "reply.wav"); err != nil {
		results = append(results, checkResult{"audio player", "warn", err.Error() + " (only needed for 'ytvoice ask')"})
	} else {
		results = append(results, checkResult{"audio player", "ok", argv[0]})
	}
	return results
}

func checkVoiceDetection() []checkResult {
	cfg := AppConfig
	if cfg.Voice.Engine == "energy" {
		return []checkResult{{"voice detection", "ok", "energy detector"}}
	}
	scorer, err := voice.NewScorer(voice.ScorerOptions{
		Engine:       "silero",
		SampleRate:   cfg.Voice.SampleRate,
		FrameSamples: cfg.Voice.FrameSamples,
	})
	if err != nil {
		status := "warn"
		if cfg.Voice.Engine == "silero" {
			status = "error"
		}
		return []checkResult{{"voice detection", status, "silero unavailable: " + err.Error() + " (run 'ytvoice models download')"}}
	}
	scorer.Close()
	return []checkResult{{"voice detection", "ok", "silero"}}
}

func checkOllama(ctx context.Context) []checkResult {
	cfg := AppConfig
	if cfg.Provider != "ollama" {
		return nil
	}
	p, err := ai.NewOllamaProvider(ai.OllamaConfig{BaseURL: cfg.Ollama.BaseURL, Model: cfg.Ollama.Model, Timeout: 5 * time.Second})
	if err != nil {
		return []checkResult{{"ollama", "error", err.Error()}}
	}
	if err := p.Ping(ctx); err != nil {
		return []checkResult{{"ollama", "error", fmt.Sprintf("not reachable at %s: %v", cfg.Ollama.BaseURL, err)}}
	}
	return []checkResult{{"ollama", "ok", cfg.Ollama.BaseURL + " (" + cfg.Ollama.Model + ")"}}
}
