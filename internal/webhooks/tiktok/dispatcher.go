package tiktokwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
)

const defaultDispatchTimeout = 10 * time.Second

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

// Dispatcher hands accepted events to the async queue. Publish failures are
// the caller's problem to count; the webhook must still return 200.
type Dispatcher struct {
	pub     publisher
	timeout time.Duration
}

func NewDispatcher(pub *gcppubsub.Publisher, timeout time.Duration) (*Dispatcher, error) {
	wrapped := newGCPPublisher(pub)
	if wrapped == nil {
		return nil, errors.New("publisher is required")
	}
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{pub: wrapped, timeout: timeout}, nil
}

// Dispatch publishes the normalized event and waits for the server ack within
// the dispatcher's own timeout, detached from the inbound request deadline.
func (d *Dispatcher) Dispatch(ctx context.Context, event *InboundEvent) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	result := d.pub.Publish(publishCtx, msg)
	if result == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish event")
	}
	return nil
}

// DispatchAsync publishes without blocking the caller on the broker ack: the
// returned error covers only validation and encoding, and the ack wait runs on
// its own goroutine bounded by the dispatcher's timeout. onFailure, when
// non-nil, runs on that goroutine if the ack fails.
func (d *Dispatcher) DispatchAsync(ctx context.Context, event *InboundEvent, onFailure func(error)) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	result := d.pub.Publish(publishCtx, msg)
	if result == nil {
		cancel()
		return pkgerrors.New(pkgerrors.CodeDependency, "publisher returned nil result")
	}

	go func() {
		defer cancel()
		if _, err := result.Get(publishCtx); err != nil && onFailure != nil {
			onFailure(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish event"))
		}
	}()
	return nil
}

func encodeEvent(event *InboundEvent) (*gcppubsub.Message, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event is required")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode event")
	}

	return &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_id":   event.EventID,
			"event_type": event.EventType,
			"platform":   "tiktok",
		},
	}, nil
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}
