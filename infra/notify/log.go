package notify

import (
	"context"

	"github.com/homefixr/dispatch/core/notify"
	"github.com/homefixr/dispatch/infra/logger"
)

// LogSink writes every notification to the structured log. Used in dev mode
// and as a fallback when no broker is configured.
type LogSink struct {
	log logger.Logger
}

var _ notify.Sink = (*LogSink)(nil)

// NewLogSink creates a sink logging under the given component name.
func NewLogSink(component string) *LogSink {
	return &LogSink{log: logger.New(component)}
}

func (s *LogSink) Emit(_ context.Context, n notify.Notification) error {
	s.log.Infof("notify %s %s/%s booking=%s title=%q", n.Event, n.Recipient, n.RecipientID, n.BookingID, n.Title)
	return nil
}
