package config

import "time"

// Config holds runtime settings for the FinSync client.
//
// Fields:
//   - ServerEndpointAddr: base URL of the backend RPC endpoint.
//   - AuthPhrase, AuthID: static application credentials sent as headers.
//   - DataDir: directory holding the meta database and cache snapshots;
//     a relative path resolves against the working directory.
//   - DeviceName: human-readable device label sent with long-poll requests.
//   - RequestTimeout / PollTimeout: per-call deadlines; the poll timeout
//     must exceed the server's blocking window.
type Config struct {
	ServerEndpointAddr string
	AuthPhrase         string
	AuthID             string
	DataDir            string
	DeviceName         string
	RequestTimeout     time.Duration
	PollTimeout        time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.AuthPhrase = "finsync"
	c.AuthID = "finsync-client"
	c.DataDir = "."
	c.DeviceName = "finsync-cli"
	c.RequestTimeout = 60 * time.Second
	c.PollTimeout = 130 * time.Second
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
