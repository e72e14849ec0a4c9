package listener

import (
	"context"
)

// Listener represents a network listener that accepts site connections
type Listener interface {
	// Start begins accepting connections
	Start(ctx context.Context) error
	// Stop gracefully shuts down the listener
	Stop(ctx context.Context) error
	// Addr returns the listener address
	Addr() string
}
