// Package config holds the tunables for both Relay processes (the
// rendezvous server and the client daemon). This package only owns
// defaults and the shape. ChunkSize is read by the sender; the two
// config structs are not read by cmd/relay-server or cmd/relay-client,
// which define their own flags with the same defaults.
package config

import "time"

// ChunkSize is fixed at 256 KiB per §6; it is not configurable
// because both peers must agree on it without negotiation.
const ChunkSize = 262144

// ServerConfig configures the rendezvous server (§6).
type ServerConfig struct {
	ListenAddr     string
	MaxSessions    int
	SessionTTL     time.Duration
	RelayRateBytes float64
	LogLevel       string
}

// DefaultServerConfig matches the CLI defaults in §6.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		MaxSessions:    1000,
		SessionTTL:     10 * time.Minute,
		RelayRateBytes: 10 * 1024 * 1024,
		LogLevel:       "info",
	}
}

// ClientConfig configures the sending/receiving daemon (§6, §4.4).
type ClientConfig struct {
	RendezvousAddr    string
	DialPublicTimeout time.Duration
	DialLocalTimeout  time.Duration
	KeepAlivePeriod   time.Duration
	IdleTimeout       time.Duration
	DownloadDir       string
	LogLevel          string
}

// DefaultClientConfig matches the CLI defaults used by cmd/relay-client.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RendezvousAddr:    "wss://relay.example.org/ws",
		DialPublicTimeout: 5 * time.Second,
		DialLocalTimeout:  3 * time.Second,
		KeepAlivePeriod:   5 * time.Second,
		IdleTimeout:       30 * time.Second,
		DownloadDir:       ".",
		LogLevel:          "info",
	}
}
