package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neboloop/ytvoice/internal/config"
	"github.com/neboloop/ytvoice/internal/logging"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Shared CLI flags (used across multiple command files)
var (
	cfgFile     string
	providerArg string
	verbose     bool
)

// AppConfig holds the loaded configuration (set by main, reloaded when
// --config is given).
var AppConfig *config.Config

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	AppConfig = c

	rootCmd := &cobra.Command{
		Use:   "ytvoice",
		Short: "ytvoice - ask questions about the video you are watching",
		Long: `ytvoice records a spoken question, transcribes it, answers it with the
video's subtitles and your earlier questions as context, and speaks the answer.

Run 'ytvoice serve' for the browser extension, or 'ytvoice ask' to use the
local microphone and speakers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return prepare()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <data dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&providerArg, "provider", "p", "", "completion provider: openai, anthropic or ollama")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add commands
	rootCmd.AddCommand(AskCmd())
	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(SubtitlesCmd())
	rootCmd.AddCommand(AuthCmd())
	rootCmd.AddCommand(ConfigCmd())
	rootCmd.AddCommand(SettingsCmd())
	rootCmd.AddCommand(ModelsCmd())
	rootCmd.AddCommand(DoctorCmd())

	return rootCmd
}

// prepare applies the global flags and installs the process logger.
func prepare() error {
	if cfgFile != "" {
		c, err := config.LoadFrom(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		AppConfig = c
	}
	if providerArg != "" {
		AppConfig.Provider = providerArg
		if err := AppConfig.Validate(); err != nil {
			return err
		}
	}
	if verbose {
		AppConfig.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Options{
		Level:  AppConfig.Logging.Level,
		Format: AppConfig.Logging.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	return nil
}
