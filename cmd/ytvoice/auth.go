package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neboloop/ytvoice/internal/keyring"
)

var keyProviders = []string{"openai", "anthropic"}

// AuthCmd stores provider API keys in the OS keychain.
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API keys",
		Long: `Store API keys in the OS keychain. Keys set in config.yaml or the
environment (OPENAI_API_KEY, ANTHROPIC_API_KEY) take precedence.`,
	}

	setKey := &cobra.Command{
		Use:       "set-key <provider>",
		Short:     "Save an API key (read from stdin)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: keyProviders,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := keyProvider(args[0])
			if err != nil {
				return err
			}
			if !keyring.Available() {
				return fmt.Errorf("OS keychain unavailable; set the key in the environment instead")
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Paste the %s API key and press Enter: ", provider)
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read key: %w", err)
			}
			if err := keyring.SetAPIKey(provider, line); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s key to the keychain\n", provider)
			return nil
		},
	}

	deleteKey := &cobra.Command{
		Use:       "delete-key <provider>",
		Short:     "Remove a stored API key",
		Args:      cobra.ExactArgs(1),
		ValidArgs: keyProviders,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := keyProvider(args[0])
			if err != nil {
				return err
			}
			if err := keyring.DeleteAPIKey(provider); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s key\n", provider)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show which providers have a key",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range keyProviders {
				state := "missing"
				if AppConfig.ResolveAPIKey(p) != "" {
					state = "set"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", p, state)
			}
		},
	}

	cmd.AddCommand(setKey, deleteKey, status)
	return cmd
}

func keyProvider(arg string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(arg))
	for _, known := range keyProviders {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q (want one of %s)", arg, strings.Join(keyProviders, ", "))
}
