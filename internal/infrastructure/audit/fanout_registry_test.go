package audit_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/internal/infrastructure/audit"
	"github.com/turtacn/ckms/pkg/constants"
	"github.com/turtacn/ckms/pkg/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	events []service.LifecycleEvent
	failOn error
}

func (s *recordingSink) LogEvent(ctx context.Context, event service.LifecycleEvent) error {
	if s.failOn != nil {
		return s.failOn
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestFanOutRegistry_PublishesToEverySink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	registry := audit.NewFanOutRegistry(logger.NewNoopLogger(), a, b)

	event := service.LifecycleEvent{
		EventType:     constants.AuditEventKeyMinted,
		ApplicationID: "KERNEL",
		Alias:         "alias-1",
		Timestamp:     time.Now(),
	}

	err := registry.LogEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestFanOutRegistry_FailingSinkDoesNotBlockOthers(t *testing.T) {
	failing := &recordingSink{failOn: fmt.Errorf("kafka unavailable")}
	healthy := &recordingSink{}
	registry := audit.NewFanOutRegistry(logger.NewNoopLogger(), failing, healthy)

	event := service.LifecycleEvent{EventType: constants.AuditEventKeyMinted, ApplicationID: "KERNEL", Alias: "alias-1"}
	err := registry.LogEvent(context.Background(), event)

	require.Error(t, err, "the first failing sink's error is surfaced for visibility")
	assert.Equal(t, 1, healthy.count(), "a failing sink must not prevent the others from receiving the event")
}
