package vote

import "context"

// Vote is a decoded notification asserting that a user voted for this
// service on an external voting-list website. It is immutable once built;
// only the protocol decoders construct one.
type Vote struct {
	ServiceName string `json:"serviceName"`
	Username    string `json:"username"`
	Address     string `json:"address"`
	Timestamp   string `json:"timestamp"`
}

// Consumer receives decoded votes. Implementations must tolerate concurrent
// calls: votes from different connections may arrive at the same time.
type Consumer interface {
	// Name identifies the consumer in logs and status output
	Name() string
	// Accept processes a single vote. A returned error is logged and
	// isolated; it does not affect delivery to other consumers.
	Accept(ctx context.Context, v *Vote) error
}
