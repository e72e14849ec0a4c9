// Package forward contains the built-in vote consumers. External consumers
// implement vote.Consumer and are registered before the listener starts;
// dynamic discovery is deliberately not supported.
package forward

import (
	"context"

	"github.com/rs/zerolog"

	"votegate/internal/vote"
)

// LogConsumer writes every delivered vote to the structured log. It is
// always registered, so an operator can confirm delivery without any
// downstream consumer in place.
type LogConsumer struct {
	log zerolog.Logger
}

// NewLogConsumer creates the log consumer.
func NewLogConsumer(log zerolog.Logger) *LogConsumer {
	return &LogConsumer{
		log: log.With().Str("component", "forward").Logger(),
	}
}

// Name identifies the consumer.
func (c *LogConsumer) Name() string {
	return "log"
}

// Accept logs the vote fields. It never fails.
func (c *LogConsumer) Accept(ctx context.Context, v *vote.Vote) error {
	c.log.Info().
		Str("service_name", v.ServiceName).
		Str("username", v.Username).
		Str("address", v.Address).
		Str("timestamp", v.Timestamp).
		Msg("vote received")
	return nil
}
