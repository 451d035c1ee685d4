package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/turtacn/ckms/internal/domain/service"
)

// SignLifecycleEvent calculates the HMAC-SHA256 signature for a lifecycle
// event, over its fields excluding Metadata so an event's integrity can be
// checked independently of the freeform metadata a caller attaches to it.
func SignLifecycleEvent(event service.LifecycleEvent, secretKey string) (string, error) {
	signable := struct {
		EventType     string `json:"event_type"`
		ApplicationID string `json:"application_id"`
		ReferenceID   string `json:"reference_id"`
		Alias         string `json:"alias"`
		Timestamp     string `json:"timestamp"`
	}{
		EventType:     string(event.EventType),
		ApplicationID: event.ApplicationID,
		ReferenceID:   event.ReferenceID,
		Alias:         event.Alias,
		Timestamp:     event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
	}

	payload, err := json.Marshal(signable)
	if err != nil {
		return "", err
	}

	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write(payload)
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
