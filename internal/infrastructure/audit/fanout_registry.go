package audit

import (
	"context"

	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/pkg/logger"
)

// FanOutRegistry publishes every lifecycle event to all of its sinks. A
// failing sink is logged and does not stop delivery to the remaining sinks,
// so a database outage does not block the Kafka stream (or vice versa); the
// first sink error is returned to the caller.
type FanOutRegistry struct {
	sinks []service.KeyLifecycleRegistry
	log   logger.Logger
}

// NewFanOutRegistry constructs a FanOutRegistry over sinks.
func NewFanOutRegistry(log logger.Logger, sinks ...service.KeyLifecycleRegistry) *FanOutRegistry {
	return &FanOutRegistry{sinks: sinks, log: log.WithFields(logger.Fields{"component": "fanout_registry"})}
}

func (f *FanOutRegistry) LogEvent(ctx context.Context, event service.LifecycleEvent) error {
	var firstErr error
	for _, sink := range f.sinks {
		if err := sink.LogEvent(ctx, event); err != nil {
			f.log.Warn(ctx, "lifecycle event sink failed", logger.Fields{"error": err.Error()})
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

var _ service.KeyLifecycleRegistry = (*FanOutRegistry)(nil)
