// Package channels holds what chat adapters share: connection status,
// structured errors and outbound rate limiting.
package channels

import (
	"context"

	"github.com/haasonsaas/relay/pkg/models"
)

// Adapter is a chat platform connection feeding inbound messages to the
// dispatcher.
type Adapter interface {
	// Start connects to the platform and begins receiving messages.
	Start(ctx context.Context) error

	// Stop disconnects and closes the Messages channel.
	Stop(ctx context.Context) error

	// Messages returns the inbound message stream. It is closed by Stop.
	Messages() <-chan *models.Message

	// Status returns the current connection status.
	Status() Status
}

// Status represents the connection status of a channel.
type Status struct {
	Connected bool   `json:"connected"`
	Degraded  bool   `json:"degraded,omitempty"`
	Error     string `json:"error,omitempty"`
	LastPing  int64  `json:"last_ping,omitempty"` // Unix timestamp
}
