package keyring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabled(t *testing.T) {
	t.Setenv("YTVOICE_KEYRING_DISABLED", "1")
	assert.False(t, Available())
	_, err := GetAPIKey("openai")
	assert.ErrorContains(t, err, "keychain disabled")
}

func TestSetAPIKey_RejectsEmpty(t *testing.T) {
	assert.Error(t, SetAPIKey("openai", "  \n"))
}

func TestAccount(t *testing.T) {
	assert.Equal(t, "openai-api-key", account(" OpenAI "))
	assert.Equal(t, "anthropic-api-key", account("anthropic"))
}
