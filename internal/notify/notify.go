// Package notify is the activity/notification side-channel. Everything here
// is fire-and-forget: failures are logged and must never surface on the
// primary request path.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"xentro.org/internal/feed"
	"xentro.org/internal/ids"
	"xentro.org/internal/obs"
	"xentro.org/internal/platform"
)

type ctxKey string

const requestIDKey ctxKey = "notify_request_id"

// WithRequestID attaches the request identifier to the context for activity logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Notifier records activity events and pushes notifications. Both the store
// and the live stream are optional; a nil Notifier is safe to call.
type Notifier struct {
	store  platform.NotificationStore
	stream *feed.Stream
}

// New constructs a Notifier.
func New(store platform.NotificationStore, stream *feed.Stream) *Notifier {
	return &Notifier{store: store, stream: stream}
}

// LogActivity writes a structured activity entry enriched with request context.
func LogActivity(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "activity",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// Notify records a notification for a recipient and publishes it to the live
// feed. Errors are swallowed after logging.
func (n *Notifier) Notify(ctx context.Context, recipient, institutionID, event, message string, meta map[string]string) {
	if n == nil {
		return
	}
	fields := map[string]any{
		"recipient": recipient,
		"message":   message,
	}
	if institutionID != "" {
		fields["institution_id"] = institutionID
	}
	_ = LogActivity(ctx, event, fields)

	if n.store != nil {
		rec := &platform.Notification{
			ID:            ids.New(),
			Recipient:     strings.TrimSpace(strings.ToLower(recipient)),
			InstitutionID: institutionID,
			Event:         event,
			Message:       message,
			Metadata:      meta,
			CreatedAt:     time.Now().UTC(),
		}
		if err := n.store.Append(ctx, rec); err != nil {
			_ = LogActivity(ctx, "notify.store.failed", map[string]any{"error": err.Error(), "event": event})
		}
	}
	if n.stream != nil {
		n.stream.Publish(feed.Event{
			Event:         event,
			Recipient:     recipient,
			InstitutionID: institutionID,
			Message:       message,
			Metadata:      meta,
		})
	}
}
