// Package audit implements service.KeyLifecycleRegistry sinks.
package audit

import (
	"context"

	"github.com/turtacn/ckms/internal/domain/service"
)

// SignedRegistry wraps a service.KeyLifecycleRegistry and stamps every event
// with an HMAC-SHA256 signature before delegating, so a compromised sink
// cannot insert or alter events without detection by anyone who holds the
// secret.
type SignedRegistry struct {
	inner     service.KeyLifecycleRegistry
	secretKey string
}

// NewSignedRegistry wraps inner with HMAC signing under secretKey.
func NewSignedRegistry(inner service.KeyLifecycleRegistry, secretKey string) *SignedRegistry {
	return &SignedRegistry{inner: inner, secretKey: secretKey}
}

// LogEvent signs event and delegates to the wrapped registry.
func (s *SignedRegistry) LogEvent(ctx context.Context, event service.LifecycleEvent) error {
	signature, err := SignLifecycleEvent(event, s.secretKey)
	if err != nil {
		return err
	}
	if event.Metadata == nil {
		event.Metadata = make(map[string]interface{})
	}
	event.Metadata["hmac_signature"] = signature
	return s.inner.LogEvent(ctx, event)
}

var _ service.KeyLifecycleRegistry = (*SignedRegistry)(nil)
