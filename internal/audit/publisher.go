package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sink receives events after they are persisted, e.g. a Kafka topic feeding
// operator tooling. Sink failures are logged, never propagated: losing a
// side-channel copy must not fail the entry that produced the event.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only; the store
// is authoritative and sinks fan out best-effort.
type Publisher struct {
	store Store
	sinks []Sink
	log   *zap.Logger
}

func NewPublisher(store Store, log *zap.Logger, sinks ...Sink) *Publisher {
	return &Publisher{store: store, sinks: sinks, log: log}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			p.log.Warn("audit sink publish failed",
				zap.String("action", string(event.Action)),
				zap.String("endpoint_id", event.EndpointID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (p *Publisher) ListByEndpoint(ctx context.Context, endpointID string) ([]Event, error) {
	return p.store.ListByEndpoint(ctx, endpointID)
}
