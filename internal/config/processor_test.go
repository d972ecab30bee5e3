package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorActiveSelectsMode(t *testing.T) {
	p, err := NewProcessor(map[string]string{
		EnvAccessToken:         "live-token",
		EnvSandboxAccessToken:  "sandbox-token",
		EnvLocationID:          "LIVE_LOC",
		EnvSignatureKey:        "live-key",
		EnvSandboxSignatureKey: "sandbox-key",
	})
	require.NoError(t, err)

	live := p.Active()
	assert.False(t, live.TestMode)
	assert.Equal(t, "live-token", live.AccessToken)
	assert.Equal(t, "live-key", live.WebhookSignatureKey)
	assert.Equal(t, ProductionBaseURL, live.APIBaseURL)
	assert.Equal(t, DefaultAPIVersion, live.APIVersion)
	assert.Equal(t, "production", live.Mode())

	p.SetTestMode(true)
	sandbox := p.Active()
	assert.True(t, sandbox.TestMode)
	assert.Equal(t, "sandbox-token", sandbox.AccessToken)
	assert.Equal(t, "sandbox-key", sandbox.WebhookSignatureKey)
	assert.Equal(t, "LIVE_LOC", sandbox.LocationID, "sandbox falls back to live location")
	assert.Equal(t, SandboxBaseURL, sandbox.APIBaseURL)
}

func TestProcessorApplyReportsChangedKeys(t *testing.T) {
	p, err := NewProcessor(map[string]string{EnvAccessToken: "a", EnvLocationID: "L"})
	require.NoError(t, err)

	changed, err := p.Apply(map[string]string{EnvAccessToken: "b", EnvLocationID: "L", "UNRELATED": "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{EnvAccessToken}, changed)
	assert.Equal(t, "b", p.Active().AccessToken)
	assert.Equal(t, "L", p.Active().LocationID, "absent keys keep their value")
}

func TestProcessorApplyRejectsBadTestMode(t *testing.T) {
	p, err := NewProcessor(nil)
	require.NoError(t, err)

	_, err = p.Apply(map[string]string{EnvTestMode: "sometimes"})
	require.Error(t, err)
}

func TestProcessorBaseURLOverride(t *testing.T) {
	p, err := NewProcessor(map[string]string{EnvAPIBaseURL: "http://127.0.0.1:9999/"})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999", p.Active().APIBaseURL)
}
