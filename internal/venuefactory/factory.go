// Package venuefactory selects and constructs the configured venue.Adapter.
// Kept separate from internal/venue itself so the venue package's adapter
// interface never has to import its own concrete implementations (bittrex,
// hitbtc, mock), which would be an import cycle.
package venuefactory

import (
	"fmt"
	"strings"

	"exchangeconnector/internal/config"
	"exchangeconnector/internal/core"
	"exchangeconnector/internal/venue"
	"exchangeconnector/internal/venue/bittrex"
	"exchangeconnector/internal/venue/hitbtc"
	mockvenue "exchangeconnector/internal/venue/mock"
)

// New builds the configured Adapter. "mock" returns an empty in-memory
// adapter seeded with no balances or rules — callers that need seeded mock
// state should construct mockvenue.Adapter directly instead of going through
// this factory.
func New(cfg *config.Config, logger core.ILogger) (venue.Adapter, error) {
	switch strings.ToLower(cfg.App.Venue) {
	case "bittrex":
		return bittrex.New(
			string(cfg.Venue.APIKey),
			string(cfg.Venue.SecretKey),
			cfg.Venue.BaseURL,
			cfg.Venue.StreamURL,
			logger,
		), nil
	case "hitbtc":
		return hitbtc.New(
			string(cfg.Venue.APIKey),
			string(cfg.Venue.SecretKey),
			string(cfg.Venue.Passphrase),
			cfg.Venue.BaseURL,
			cfg.Venue.StreamURL,
			logger,
		), nil
	case "mock":
		return mockvenue.New(core.BalanceSnapshot{}, nil), nil
	default:
		return nil, fmt.Errorf("venue: unsupported venue %q", cfg.App.Venue)
	}
}
