// Package config loads signald and huddle configuration with the priority
// CLI flags > environment variables > defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

// Default configuration values.
const (
	DefaultListenAddr   = ":8080"
	DefaultServerURL    = "ws://localhost:8080/ws"
	DefaultRoomCapacity = 55
	DefaultSTUN         = "stun:stun.l.google.com:19302"

	// DefaultICETimeout bounds how long a PeerLink may sit below the
	// connected state before it is treated as failed.
	DefaultICETimeout = 30 * time.Second
)

// Server holds the signald configuration.
type Server struct {
	// ListenAddr is the HTTP/WebSocket bind address.
	ListenAddr string

	// RoomCapacity is the fixed member ceiling per room.
	RoomCapacity int

	// RedisAddr points at the identity directory; empty disables the lookup
	// and members keep the display info they supplied at join.
	RedisAddr string

	// AMQPURL points at the call-history broker; empty disables recording.
	AMQPURL string
}

// ServerOptions carries CLI flag overrides for LoadServer.
type ServerOptions struct {
	ListenAddr   string
	RoomCapacity int
	RedisAddr    string
	AMQPURL      string
}

// LoadServer reads the signald configuration.
func LoadServer(opts ServerOptions) *Server {
	addr := pick(opts.ListenAddr, "SIGNALD_LISTEN_ADDR", DefaultListenAddr)

	capacity := opts.RoomCapacity
	if capacity <= 0 {
		if v, err := strconv.Atoi(os.Getenv("SIGNALD_ROOM_CAPACITY")); err == nil && v > 0 {
			capacity = v
		}
	}
	if capacity <= 0 {
		capacity = DefaultRoomCapacity
	}

	return &Server{
		ListenAddr:   addr,
		RoomCapacity: capacity,
		RedisAddr:    pick(opts.RedisAddr, "SIGNALD_REDIS_ADDR", ""),
		AMQPURL:      pick(opts.AMQPURL, "SIGNALD_AMQP_URL", ""),
	}
}

// Client holds the huddle CLI configuration.
type Client struct {
	// ServerURL is the signaling websocket endpoint.
	ServerURL string

	// ICE servers for WebRTC. TURN is optional and empty by default.
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ICETimeout bounds each PeerLink's path to a connected state.
	ICETimeout time.Duration
}

// Options carries CLI flag overrides for Load.
type Options struct {
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Load reads the huddle client configuration.
func Load(opts Options) *Client {
	return &Client{
		ServerURL:  pick(opts.ServerURL, "HUDDLE_SERVER_URL", DefaultServerURL),
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ICETimeout: DefaultICETimeout,
	}
}

// GetSTUNServers returns the STUN URL list for the ICE configuration.
func (c *Client) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns the TURN URL list, nil when TURN is not configured.
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{c.TURNServer}
}

// GetTURNCredentials returns the TURN username and password.
func (c *Client) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// pick resolves a value with flag > env > default priority.
func pick(flag, envKey, fallback string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fallback
}
