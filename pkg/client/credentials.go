package client

import (
	"github.com/Sternrassler/fediverse-client/pkg/credentials"
)

// FromData builds a client for the instance in data with the default
// configuration. A token in data makes it a bearer client.
func FromData(data *credentials.Data, userAgent string) (*Client, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig(data.Base, userAgent)
	if data.Token != "" {
		cfg.Auth = BearerToken(data.Token)
	}
	return New(cfg)
}
