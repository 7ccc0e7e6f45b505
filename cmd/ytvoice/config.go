package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/neboloop/ytvoice/internal/defaults"
	"github.com/neboloop/ytvoice/internal/local"
)

// ConfigCmd inspects and resets the configuration.
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or reset configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (API keys redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *AppConfig
			c.OpenAI.APIKey = redact(c.OpenAI.APIKey)
			c.Anthropic.APIKey = redact(c.Anthropic.APIKey)
			data, err := yaml.Marshal(&c)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print data directory paths",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "data:      %s\n", AppConfig.DataDir)
			fmt.Fprintf(out, "config:    %s\n", filepath.Join(AppConfig.DataDir, "config.yaml"))
			fmt.Fprintf(out, "settings:  %s\n", AppConfig.SettingsPath())
			fmt.Fprintf(out, "database:  %s\n", AppConfig.DBPath())
			fmt.Fprintf(out, "subtitles: %s\n", AppConfig.SubtitlesDir())
			fmt.Fprintf(out, "models:    %s\n", defaults.ModelsDir())
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore config.yaml and settings.json to defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := defaults.Reset(AppConfig.DataDir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored defaults in %s\n", AppConfig.DataDir)
			return nil
		},
	}

	cmd.AddCommand(show, path, reset)
	return cmd
}

// SettingsCmd reads and writes the user settings shared with a running server.
func SettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Get or set user settings",
		Long: `User settings live in settings.json and are picked up by a running
server without a restart.

Keys:
  enhanced_voice_mode  keep the microphone open between questions (true/false)
  custom_prompt        replaces the default assistant instructions
  analytics_enabled    record usage events (true/false)`,
	}

	get := &cobra.Command{
		Use:   "get [key]",
		Short: "Print one or all settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := local.OpenSettings(AppConfig.SettingsPath(), nil)
			if err != nil {
				return err
			}
			keys := []string{local.KeyEnhancedVoiceMode, local.KeyCustomPrompt, local.KeyAnalyticsEnabled}
			if len(args) == 1 {
				keys = args
			}
			for _, k := range keys {
				v, _ := s.Get(k)
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, v)
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting (use \"\" to clear custom_prompt)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := local.OpenSettings(AppConfig.SettingsPath(), nil)
			if err != nil {
				return err
			}
			key, raw := args[0], args[1]
			var value any
			switch key {
			case local.KeyEnhancedVoiceMode, local.KeyAnalyticsEnabled:
				b, err := parseBool(raw)
				if err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
				value = b
			case local.KeyCustomPrompt:
				if raw != "" {
					value = raw
				}
			default:
				return fmt.Errorf("unknown setting %q", key)
			}
			return s.Set(key, value)
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}

func parseBool(s string) (bool, error) {
	switch s {
	case "true", "on", "yes", "1":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("want true or false, got %q", s)
}

func redact(key string) string {
	if len(key) <= 8 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
