package model

import "time"

// ConnectionStatus is the lifecycle phase of the server connection.
type ConnectionStatus string

const (
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionReconnecting ConnectionStatus = "reconnecting"
	// ConnectionFailed is terminal: reconnection was exhausted.
	ConnectionFailed ConnectionStatus = "failed"
)

// ConnectionState is a snapshot of the connection manager's state.
type ConnectionState struct {
	Status          ConnectionStatus `json:"status"`
	LastConnectedAt time.Time        `json:"last_connected_at"`

	// Attempt is the current reconnect attempt (0 while connected).
	Attempt int `json:"attempt"`

	// LastError is the most recent transport error, if any.
	LastError string `json:"last_error,omitempty"`
}

// IsStale reports whether the connection has not been (re)established
// within maxAge of now.
func (s ConnectionState) IsStale(now time.Time, maxAge time.Duration) bool {
	if s.LastConnectedAt.IsZero() {
		return true
	}
	return s.Status != ConnectionConnected || now.Sub(s.LastConnectedAt) > maxAge
}
