// Package config handles configuration for the sync CLI, including defaults,
// JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the Nimbus sync CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the backend gRPC endpoint.
//   - DeviceID: stable identifier of this device; every change it makes is
//     stamped with it.
//   - DataDir: subdirectory (under the working directory) holding the
//     offline queue database.
//   - Strategy: conflict-resolution strategy name.
//   - SyncInterval: how often the background loop runs a sync cycle.
type Config struct {
	ServerEndpointAddr string
	DeviceID           string
	DataDir            string
	Strategy           string
	SyncInterval       time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DeviceID = ""
	c.DataDir = "nimbus-data"
	c.Strategy = "last_write_wins"
	c.SyncInterval = 5 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
