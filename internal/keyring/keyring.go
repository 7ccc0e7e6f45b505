package keyring

import (
	"fmt"
	"os"
	"strings"

	zkr "github.com/zalando/go-keyring"
)

const serviceName = "ytvoice"

// GetAPIKey retrieves the API key stored for provider from the OS keychain.
func GetAPIKey(provider string) (string, error) {
	if disabled() {
		return "", fmt.Errorf("keychain disabled")
	}
	key, err := zkr.Get(serviceName, account(provider))
	if err != nil {
		return "", fmt.Errorf("keychain get: %w", err)
	}
	return key, nil
}

// SetAPIKey stores the API key for provider in the OS keychain.
func SetAPIKey(provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty API key")
	}
	return zkr.Set(serviceName, account(provider), key)
}

// DeleteAPIKey removes the API key for provider from the OS keychain.
func DeleteAPIKey(provider string) error {
	return zkr.Delete(serviceName, account(provider))
}

// Available returns true if the OS keychain is functional.
// Returns false if YTVOICE_KEYRING_DISABLED=1 is set (opt-in for headless/CI/Docker).
// Otherwise probes the keychain with a test write/read/delete cycle.
func Available() bool {
	if disabled() {
		return false
	}
	testService := "ytvoice-keyring-probe"
	testAccount := "probe"
	if err := zkr.Set(testService, testAccount, "ok"); err != nil {
		return false
	}
	_ = zkr.Delete(testService, testAccount)
	return true
}

func disabled() bool {
	return os.Getenv("YTVOICE_KEYRING_DISABLED") == "1"
}

func account(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider)) + "-api-key"
}
