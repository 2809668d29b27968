package progress

import (
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/Lllllllleong/stickerflow/internal/models"
)

// EventSource is the CloudEvents source attribute of every progress event.
const EventSource = "stickerflow/upload-processor"

// CloudEvents type attributes, one per event kind.
const (
	TypeProgress = "com.stickerflow.upload.progress"
	TypeComplete = "com.stickerflow.upload.complete"
	TypeError    = "com.stickerflow.upload.error"
)

func eventType(kind models.EventKind) string {
	switch kind {
	case models.EventComplete:
		return TypeComplete
	case models.EventError:
		return TypeError
	default:
		return TypeProgress
	}
}

// Encode wraps a ProgressEvent in a structured-mode CloudEvent. The run ID is
// carried in the subject so observers can filter without decoding data.
func Encode(ev models.ProgressEvent) ([]byte, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(uuid.NewString())
	ce.SetSource(EventSource)
	ce.SetType(eventType(ev.Kind))
	ce.SetSubject(ev.RunID)
	ce.SetTime(time.Now().UTC())
	if err := ce.SetData(cloudevents.ApplicationJSON, ev); err != nil {
		return nil, fmt.Errorf("failed to set event data: %w", err)
	}
	if err := ce.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cloudevent: %w", err)
	}
	return json.Marshal(ce)
}

// Decode is the inverse of Encode.
func Decode(data []byte) (models.ProgressEvent, error) {
	ce := cloudevents.NewEvent()
	if err := json.Unmarshal(data, &ce); err != nil {
		return models.ProgressEvent{}, fmt.Errorf("failed to decode cloudevent: %w", err)
	}
	var ev models.ProgressEvent
	if err := ce.DataAs(&ev); err != nil {
		return models.ProgressEvent{}, fmt.Errorf("failed to decode event data: %w", err)
	}
	if ev.RunID == "" {
		ev.RunID = ce.Subject()
	}
	return ev, nil
}
