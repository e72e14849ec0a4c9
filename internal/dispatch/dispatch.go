// Package dispatch delivers decoded votes to the registered consumers.
package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"votegate/internal/vote"
)

// ConsumerError wraps a failure from one registered consumer. It never
// aborts delivery to the others.
type ConsumerError struct {
	Consumer string
	Err      error
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("consumer %q failed: %v", e.Consumer, e.Err)
}

func (e *ConsumerError) Unwrap() error {
	return e.Err
}

// Registry holds consumers in registration order. It is populated before
// the listener starts and read-only afterwards.
type Registry struct {
	consumers []vote.Consumer
}

// NewRegistry creates a registry with the given consumers.
func NewRegistry(consumers ...vote.Consumer) *Registry {
	return &Registry{consumers: consumers}
}

// Register appends a consumer. Must not be called once the listener is
// accepting connections.
func (r *Registry) Register(c vote.Consumer) {
	r.consumers = append(r.consumers, c)
}

// Names returns the consumer names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.consumers))
	for i, c := range r.consumers {
		names[i] = c.Name()
	}
	return names
}

// Len reports how many consumers are registered.
func (r *Registry) Len() int {
	return len(r.consumers)
}

// Dispatcher invokes every registered consumer for each decoded vote,
// synchronously on the connection-handling goroutine. There is no queue
// and no retry.
type Dispatcher struct {
	registry *Registry
	log      zerolog.Logger
}

// New creates a dispatcher over a registry.
func New(registry *Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		log:      log.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch delivers the vote to all consumers in registration order and
// returns how many accepted it. A failing or panicking consumer is logged
// and skipped; it cannot block delivery to the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, v *vote.Vote) int {
	delivered := 0
	for _, c := range d.registry.consumers {
		if err := d.deliver(ctx, c, v); err != nil {
			d.log.Error().Err(err).
				Str("consumer", c.Name()).
				Str("username", v.Username).
				Str("site_service", v.ServiceName).
				Msg("vote delivery failed")
			continue
		}
		delivered++
	}
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, c vote.Consumer, v *vote.Vote) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ConsumerError{Consumer: c.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := c.Accept(ctx, v); err != nil {
		return &ConsumerError{Consumer: c.Name(), Err: err}
	}
	return nil
}
