// Package credentials persists the registration and token of an
// application on one instance, either as a YAML file or in Redis.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrNotFound is returned by Load when nothing has been saved yet.
	ErrNotFound = errors.New("credentials not found")

	// ErrInvalid is returned for data that cannot address an instance.
	ErrInvalid = errors.New("invalid credentials")
)

// Data is everything needed to talk to an instance as a registered
// application. Token may be empty for an app that has not logged in yet.
type Data struct {
	Base         string `yaml:"base" json:"base"`
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	Redirect     string `yaml:"redirect" json:"redirect"`
	Token        string `yaml:"token" json:"token"`
}

// Validate checks that Base is an absolute URL.
func (d *Data) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil data", ErrInvalid)
	}
	if strings.TrimSpace(d.Base) == "" {
		return fmt.Errorf("%w: base is required", ErrInvalid)
	}
	u, err := url.Parse(d.Base)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: base must be an absolute URL (got %q)", ErrInvalid, d.Base)
	}
	return nil
}

// Instance returns the host of Base.
func (d *Data) Instance() string {
	u, err := url.Parse(d.Base)
	if err != nil {
		return ""
	}
	return u.Host
}

// Store loads and saves Data.
type Store interface {
	Load(ctx context.Context) (*Data, error)
	Save(ctx context.Context, data *Data) error
}
