// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads landscaped's own bootstrap configuration: listen
// addresses, the persistent state layout under the home directory, and DNS
// and Geo tuning values (parsed and validated here, but not read by the DNS
// pipeline or the Geo cache). Entity configuration
// (DNS rules, flow rules, per-interface service configs, ...) is not a
// daemon concern; it lives in the repository layer and is reached through
// Config Services instead.
package config

import (
	"fmt"
	"time"
)

// CurrentSchemaVersion is the schema version this build understands.
const CurrentSchemaVersion = "1.0"

// Config is landscaped's top-level bootstrap configuration.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	// HomeDir is the root of the persistent state layout (default
	// ~/.landscape-router): landscape.toml, landscape_db.sqlite, logs/,
	// static/, geo_tmp/, hostapd_tmp/, metric/, landscape_api_token,
	// cert.pem/key.pem.
	HomeDir string `hcl:"home_dir,optional" json:"home_dir,omitempty"`

	// HTTPListen is the address the REST/WebSocket API binds to.
	HTTPListen string `hcl:"http_listen,optional" json:"http_listen,omitempty"`
	// TLSListen is the address for a TLS-terminated API. It and TLSCert/
	// TLSKey are validated, but cmd/landscaped serves only HTTPListen.
	TLSListen string `hcl:"tls_listen,optional" json:"tls_listen,omitempty"`
	TLSCert   string `hcl:"tls_cert,optional" json:"tls_cert,omitempty"`
	TLSKey    string `hcl:"tls_key,optional" json:"tls_key,omitempty"`

	// DatabaseDSN points at the relational store backing the repository
	// façade: a sqlite file path, or a postgres:// URL.
	DatabaseDSN string `hcl:"database_dsn,optional" json:"database_dsn,omitempty"`

	// APIToken holds the token for privileged /sys endpoints. SecureString
	// hides it from JSON/log output. internal/api does not check it on any
	// request.
	APIToken SecureString `hcl:"api_token,optional" json:"api_token,omitempty"`

	DNS   DNSConfig   `hcl:"dns,block" json:"dns,omitempty"`
	Geo   GeoConfig   `hcl:"geo,block" json:"geo,omitempty"`
	Flow  FlowConfig  `hcl:"flow,block" json:"flow,omitempty"`
	Debug bool        `hcl:"debug,optional" json:"debug,omitempty"`
}

// DNSConfig holds DNS steering tuning values (§4.5, §5). They are parsed and
// validated, but internal/steering/dns does not read them: it uses its own
// constants (4096-entry cache, 3s query timeout, 120s negative TTL, 10s
// redirect TTL).
type DNSConfig struct {
	CacheCapacity    int           `hcl:"cache_capacity,optional" json:"cache_capacity,omitempty"`
	QueryTimeout     time.Duration `hcl:"query_timeout,optional" json:"query_timeout,omitempty"`
	NegativeTTL      time.Duration `hcl:"negative_ttl,optional" json:"negative_ttl,omitempty"`
	RedirectTTL      time.Duration `hcl:"redirect_ttl,optional" json:"redirect_ttl,omitempty"`
}

// GeoConfig holds Geo source refresh settings (§7 "Geo refresh failures").
// They are parsed but not read: no package refreshes Geo sources on a timer.
type GeoConfig struct {
	RefreshInterval time.Duration `hcl:"refresh_interval,optional" json:"refresh_interval,omitempty"`
	CacheDir        string        `hcl:"cache_dir,optional" json:"cache_dir,omitempty"` // geo_tmp/
}

// FlowConfig tunes the event bus backlog for IfaceEvent (lossless) delivery.
type FlowConfig struct {
	IfaceEventBacklog int `hcl:"iface_event_backlog,optional" json:"iface_event_backlog,omitempty"`
}

// Default returns the daemon's default bootstrap configuration.
func Default() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		HomeDir:       "~/.landscape-router",
		HTTPListen:    "127.0.0.1:6070",
		DatabaseDSN:   "landscape_db.sqlite",
		DNS: DNSConfig{
			CacheCapacity: 4096,
			QueryTimeout:  3 * time.Second,
			NegativeTTL:   120 * time.Second,
			RedirectTTL:   5 * time.Second,
		},
		Geo: GeoConfig{
			RefreshInterval: 24 * time.Hour,
			CacheDir:        "geo_tmp",
		},
		Flow: FlowConfig{
			IfaceEventBacklog: 64,
		},
	}
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	if c.HomeDir == "" {
		return fmt.Errorf("home_dir must not be empty")
	}
	if c.HTTPListen == "" && c.TLSListen == "" {
		return fmt.Errorf("at least one of http_listen or tls_listen must be set")
	}
	if c.TLSListen != "" && (c.TLSCert == "" || c.TLSKey == "") {
		return fmt.Errorf("tls_listen requires tls_cert and tls_key")
	}
	if c.DNS.CacheCapacity <= 0 {
		return fmt.Errorf("dns.cache_capacity must be positive")
	}
	if c.DNS.QueryTimeout <= 0 {
		return fmt.Errorf("dns.query_timeout must be positive")
	}
	return nil
}
