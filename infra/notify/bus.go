package notify

import (
	"context"

	"github.com/homefixr/dispatch/core/notify"
	"github.com/homefixr/dispatch/internal/eventbus"
)

// BusSink republishes notifications on the in-process event bus so live
// feeds (admin dashboard stream, tests) can subscribe without a broker.
type BusSink struct {
	bus eventbus.EventBus
}

var _ notify.Sink = (*BusSink)(nil)

// NewBusSink wraps bus as a notification sink.
func NewBusSink(bus eventbus.EventBus) *BusSink {
	return &BusSink{bus: bus}
}

func (s *BusSink) Emit(_ context.Context, n notify.Notification) error {
	s.bus.Publish(n)
	return nil
}
