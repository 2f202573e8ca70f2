package tiktokwebhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
)

// InboundEvent is the normalized form of a webhook delivery. Raw keeps the
// original body so the worker can re-extract anything the normalizer missed.
type InboundEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	SenderID   string          `json:"sender_id"`
	Username   string          `json:"username,omitempty"`
	Text       string          `json:"text,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// rawPayload covers the delivery shapes the platform has been observed to
// send: a flat data object, a nested message object, and the entry/changes
// envelope used by older webhook versions.
type rawPayload struct {
	EventID string `json:"event_id"`
	ID      string `json:"id"`
	Event   string `json:"event"`
	Type    string `json:"type"`
	Data    struct {
		EventID  string `json:"event_id"`
		SenderID string `json:"sender_id"`
		Username string `json:"username"`
		Content  string `json:"content"`
		Text     string `json:"text"`
		Body     string `json:"body"`
		Message  struct {
			FromUserID string `json:"from_user_id"`
			Content    string `json:"content"`
			Text       string `json:"text"`
		} `json:"message"`
	} `json:"data"`
	Entry []struct {
		Changes []struct {
			Value changeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type changeValue struct {
	Sender senderRef `json:"sender"`
	Text   string    `json:"text"`
}

// senderRef accepts both shapes the envelope carries for the sender: a bare
// string id and an {id, username} object.
type senderRef struct {
	ID       string
	Username string
}

func (s *senderRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		s.ID = id
		return nil
	}

	var obj struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	s.ID = obj.ID
	s.Username = obj.Username
	return nil
}

// ParseEvent normalizes a raw webhook body. It never rejects a delivery for a
// missing event id; a synthetic id derived from the payload hash keeps the
// idempotency guard meaningful for platforms that omit ids on retries.
func ParseEvent(body []byte, now time.Time) (*InboundEvent, error) {
	if len(body) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "empty webhook body")
	}

	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook body")
	}

	event := &InboundEvent{
		EventID:    firstNonEmpty(raw.EventID, raw.Data.EventID, raw.ID),
		EventType:  firstNonEmpty(raw.Event, raw.Type),
		SenderID:   firstNonEmpty(raw.Data.SenderID, raw.Data.Message.FromUserID),
		Username:   raw.Data.Username,
		Text:       firstNonEmpty(raw.Data.Content, raw.Data.Text, raw.Data.Body, raw.Data.Message.Content, raw.Data.Message.Text),
		ReceivedAt: now.UTC(),
		Raw:        json.RawMessage(body),
	}

	if event.SenderID == "" || event.Text == "" {
		if v, ok := entryValue(raw); ok {
			if event.SenderID == "" {
				event.SenderID = v.Sender.ID
			}
			if event.Username == "" {
				event.Username = v.Sender.Username
			}
			if event.Text == "" {
				event.Text = v.Text
			}
		}
	}

	if event.EventID == "" {
		event.EventID = syntheticEventID(body, now)
	}

	return event, nil
}

// HasMessage reports whether the event carries enough to run a conversation.
func (e *InboundEvent) HasMessage() bool {
	return e != nil && strings.TrimSpace(e.SenderID) != "" && strings.TrimSpace(e.Text) != ""
}

func entryValue(raw rawPayload) (changeValue, bool) {
	for _, entry := range raw.Entry {
		for _, change := range entry.Changes {
			if change.Value.Sender.ID != "" || change.Value.Text != "" {
				return change.Value, true
			}
		}
	}
	return changeValue{}, false
}

func syntheticEventID(body []byte, now time.Time) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("unknown_%d_%s", now.UTC().Unix(), hex.EncodeToString(sum[:])[:12])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
