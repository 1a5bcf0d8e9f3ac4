package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "api_key: ${TEST_API_KEY}",
			envVars: map[string]string{
				"TEST_API_KEY": "test_key_123",
			},
			expected: "api_key: test_key_123",
		},
		{
			name:  "expand multiple env vars",
			input: "api_key: ${API_KEY}\nsecret: ${SECRET_KEY}",
			envVars: map[string]string{
				"API_KEY":    "key_value",
				"SECRET_KEY": "secret_value",
			},
			expected: "api_key: key_value\nsecret: secret_value",
		},
		{
			name:     "missing env var returns empty string",
			input:    "api_key: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "api_key: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-test-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	configContent := `app:
  venue: "bittrex"

venue:
  api_key: "${TEST_VENUE_API_KEY}"
  secret_key: "${TEST_VENUE_SECRET_KEY}"

trading:
  symbols: ["BTC-USDT"]

timing:
  tick_interval_ms: 250
  balance_reconcile_sec: 30
  open_orders_reconcile_sec: 15
  trading_rule_reconcile_sec: 3600
  cancel_dedup_ttl_sec: 10
  rest_rate_limit_per_sec: 10
  rest_rate_limit_burst: 20

system:
  log_level: "INFO"
  cancel_on_exit: true
`

	_, err = tmpFile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpFile.Close()

	os.Setenv("TEST_VENUE_API_KEY", "key_from_env")
	os.Setenv("TEST_VENUE_SECRET_KEY", "secret_from_env")
	defer os.Unsetenv("TEST_VENUE_API_KEY")
	defer os.Unsetenv("TEST_VENUE_SECRET_KEY")

	cfg, err := LoadConfig(tmpFile.Name())
	require.NoError(t, err, "LoadConfig() error")

	assert.Equal(t, Secret("key_from_env"), cfg.Venue.APIKey)
	assert.Equal(t, Secret("secret_from_env"), cfg.Venue.SecretKey)
}

func TestConfig_Validate_RejectsUnknownVenue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.Venue = "coinbase"
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestConfig_Validate_HitbtcRequiresPassphrase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.Venue = "hitbtc"
	err := cfg.Validate()
	assert.Error(t, err)

	cfg.Venue.Passphrase = "pw"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_MockSkipsCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.Venue = "mock"
	cfg.Venue.APIKey = ""
	cfg.Venue.SecretKey = ""
	assert.NoError(t, cfg.Validate())
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Venue: VenueConfig{
			APIKey:    Secret("my_super_secret_api_key"),
			SecretKey: Secret("my_super_secret_secret_key"),
		},
	}
	output := cfg.String()

	assert.Contains(t, output, "REDACTED")
	assert.NotContains(t, output, "my_super_secret_api_key")
	assert.NotContains(t, output, "my_super_secret_secret_key")
}
