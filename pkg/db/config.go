package db

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoActiveProfile = errors.New("no active profile found")

// Config represents the complete runtime configuration loaded from the
// database for the active profile.
type Config struct {
	Profile   *Profile
	APIServer *APIServer
	BLE       *BLEConfig
}

// APIAddress returns the API server listen address.
func (c *Config) APIAddress() string {
	if c.APIServer == nil {
		return "0.0.0.0:8080"
	}
	return c.APIServer.Address()
}

// SerialPort returns the configured USB serial display port, if any.
func (c *Config) SerialPort() string {
	if c.APIServer == nil {
		return ""
	}
	return c.APIServer.SerialPort
}

// ActiveConfig loads the complete configuration for the active profile.
func (db *DB) ActiveConfig(ctx context.Context) (*Config, error) {
	profile, err := db.Profiles().GetActive(ctx)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrNoActiveProfile
		}
		return nil, fmt.Errorf("failed to get active profile: %w", err)
	}

	config := &Config{Profile: profile}

	apiServer, err := db.APIServers().Get(ctx, profile.ID)
	if err != nil && !errors.Is(err, ErrAPIServerNotFound) {
		return nil, fmt.Errorf("failed to get API server config: %w", err)
	}
	config.APIServer = apiServer

	bleConfig, err := db.BLEConfigs().Get(ctx, profile.ID)
	if err != nil && !errors.Is(err, ErrBLEConfigNotFound) {
		return nil, fmt.Errorf("failed to get BLE config: %w", err)
	}
	config.BLE = bleConfig

	return config, nil
}
