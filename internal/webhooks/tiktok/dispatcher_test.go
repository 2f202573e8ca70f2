package tiktokwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type fakePublishResult struct {
	id  string
	err error
}

func (r *fakePublishResult) Get(ctx context.Context) (string, error) {
	return r.id, r.err
}

type fakePublisher struct {
	messages []*gcppubsub.Message
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return &fakePublishResult{id: "srv-1", err: p.err}
}

func TestDispatchPublishesNormalizedEvent(t *testing.T) {
	pub := &fakePublisher{}
	d := &Dispatcher{pub: pub, timeout: time.Second}

	event := &InboundEvent{
		EventID:   "evt-1",
		EventType: "im_message",
		SenderID:  "user-1",
		Text:      "hello",
	}
	if err := d.Dispatch(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.messages) != 1 {
		t.Fatalf("expected one published message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.Attributes["event_id"] != "evt-1" || msg.Attributes["platform"] != "tiktok" {
		t.Fatalf("unexpected attributes: %v", msg.Attributes)
	}

	var decoded InboundEvent
	if err := json.Unmarshal(msg.Data, &decoded); err != nil {
		t.Fatalf("decode published payload: %v", err)
	}
	if decoded.SenderID != "user-1" || decoded.Text != "hello" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestDispatchSurfacesPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("deadline exceeded")}
	d := &Dispatcher{pub: pub, timeout: time.Second}

	err := d.Dispatch(context.Background(), &InboundEvent{EventID: "evt-1"})
	if err == nil {
		t.Fatalf("expected publish failure to surface")
	}
}

func TestDispatchIgnoresCanceledRequestContext(t *testing.T) {
	pub := &fakePublisher{}
	d := &Dispatcher{pub: pub, timeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Dispatch(ctx, &InboundEvent{EventID: "evt-1"}); err != nil {
		t.Fatalf("dispatch must survive a canceled request context: %v", err)
	}
}

type blockingPublishResult struct{}

func (r *blockingPublishResult) Get(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type blockingPublisher struct{}

func (p *blockingPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &blockingPublishResult{}
}

func TestDispatchAsyncReturnsBeforeAck(t *testing.T) {
	d := &Dispatcher{pub: &blockingPublisher{}, timeout: 100 * time.Millisecond}

	failures := make(chan error, 1)
	start := time.Now()
	err := d.DispatchAsync(context.Background(), &InboundEvent{EventID: "evt-1"}, func(err error) {
		failures <- err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("DispatchAsync blocked on the broker ack for %v", elapsed)
	}

	select {
	case ackErr := <-failures:
		if ackErr == nil {
			t.Fatalf("expected ack failure to surface through the callback")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("ack failure callback never fired")
	}
}

func TestDispatchAsyncValidatesSynchronously(t *testing.T) {
	d := &Dispatcher{pub: &fakePublisher{}, timeout: time.Second}
	if err := d.DispatchAsync(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil event")
	}
}

func TestDispatchValidation(t *testing.T) {
	d := &Dispatcher{pub: &fakePublisher{}, timeout: time.Second}
	if err := d.Dispatch(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil event")
	}
	if _, err := NewDispatcher(nil, time.Second); err == nil {
		t.Fatalf("expected error for nil publisher")
	}
}
