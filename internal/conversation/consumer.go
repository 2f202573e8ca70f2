package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/sethvargo/go-retry"

	tiktokwebhook "github.com/philiathrifts/thriftbot/internal/webhooks/tiktok"
	"github.com/philiathrifts/thriftbot/internal/users"
	"github.com/philiathrifts/thriftbot/pkg/db/models"
	"github.com/philiathrifts/thriftbot/pkg/enums"
	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
	"github.com/philiathrifts/thriftbot/pkg/logger"
	"github.com/philiathrifts/thriftbot/pkg/metrics"
	"github.com/philiathrifts/thriftbot/pkg/tiktok"
)

const (
	defaultMaxAttempts  = 3
	defaultSoftTimeout  = 60 * time.Second
	defaultHardTimeout  = 120 * time.Second
	defaultRetryBackoff = 2 * time.Second
	defaultWindow       = 48 * time.Hour
)

type userTracker interface {
	Upsert(ctx context.Context, tiktokID, username string, at time.Time) (*models.User, error)
}

type replyAgent interface {
	Reply(ctx context.Context, userText string) (string, error)
}

type auditLog interface {
	RecordProcessed(ctx context.Context, eventID string, status enums.EventStatus, at time.Time) error
}

type completionMarker interface {
	MarkCompleted(ctx context.Context, eventID, status string)
}

// Config bounds the per-event pipeline. SoftTimeout caps the agent and send
// steps; HardTimeout caps the whole event including the audit write.
type Config struct {
	Window       time.Duration
	MaxAttempts  int
	SoftTimeout  time.Duration
	HardTimeout  time.Duration
	RetryBackoff time.Duration
	SendFallback bool
	FallbackText string
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.SoftTimeout <= 0 {
		c.SoftTimeout = defaultSoftTimeout
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = defaultHardTimeout
	}
	if c.HardTimeout < c.SoftTimeout {
		c.HardTimeout = c.SoftTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	return c
}

// Consumer runs the conversation pipeline for dispatched webhook events.
//
// Each event goes through: user upsert (failures logged, never fatal),
// messaging-window check, agent reply with bounded retries, outbound send,
// then the durable audit write. The audit write happens whatever the earlier
// steps did. Exhausted retries ack with a FAILED record instead of nacking,
// so a poisoned event cannot loop through the subscription forever.
type Consumer struct {
	subscription *pubsub.Subscriber
	users        userTracker
	agent        replyAgent
	sender       tiktok.MessageSender
	audit        auditLog
	marker       completionMarker
	metrics      *metrics.WorkerMetrics
	logg         *logger.Logger
	cfg          Config
	now          func() time.Time
}

// ConsumerParams carries the consumer's dependencies. Marker and Metrics are
// optional.
type ConsumerParams struct {
	Subscription *pubsub.Subscriber
	Users        userTracker
	Agent        replyAgent
	Sender       tiktok.MessageSender
	Audit        auditLog
	Marker       completionMarker
	Metrics      *metrics.WorkerMetrics
	Logger       *logger.Logger
	Config       Config
}

// NewConsumer validates the wiring and applies config defaults.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Subscription == nil {
		return nil, errors.New("events subscription is required")
	}
	if params.Users == nil {
		return nil, errors.New("user tracker is required")
	}
	if params.Agent == nil {
		return nil, errors.New("conversation agent is required")
	}
	if params.Sender == nil {
		return nil, errors.New("message sender is required")
	}
	if params.Audit == nil {
		return nil, errors.New("audit log is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		subscription: params.Subscription,
		users:        params.Users,
		agent:        params.Agent,
		sender:       params.Sender,
		audit:        params.Audit,
		marker:       params.Marker,
		metrics:      params.Metrics,
		logg:         params.Logger,
		cfg:          params.Config.withDefaults(),
		now:          time.Now,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	start := c.now()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.HardTimeout)
	defer cancel()

	var event tiktokwebhook.InboundEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logCtx := c.logg.WithField(ctx, "message_id", msg.ID)
		c.logg.Error(logCtx, "undecodable event payload, dropping", err)
		c.metrics.IncProcessed("undecodable", "dropped")
		return processResult{ack: true}
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_id":   event.EventID,
		"event_type": event.EventType,
		"user_id":    event.SenderID,
	})

	if !event.HasMessage() {
		c.logg.Info(logCtx, "event carries no message, skipping")
		return c.finish(logCtx, &event, enums.EventStatusSkipped, start)
	}

	pipeCtx, cancel := context.WithTimeout(logCtx, c.cfg.SoftTimeout)
	defer cancel()

	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = c.now()
	}

	lastInteraction := receivedAt
	user, err := c.users.Upsert(pipeCtx, event.SenderID, event.Username, receivedAt)
	if err != nil {
		c.logg.Error(logCtx, "failed to track user, continuing", err)
	} else {
		lastInteraction = user.LastInteractionAt
	}

	if !users.WithinWindow(lastInteraction, c.now(), c.cfg.Window) {
		c.logg.Warn(logCtx, "outside messaging window, reply suppressed")
		return c.finish(logCtx, &event, enums.EventStatusSkipped, start)
	}

	replyText, err := c.replyWithRetry(pipeCtx, event.Text)
	if err != nil {
		c.logg.Error(logCtx, "conversation agent failed", err)
		if !c.cfg.SendFallback {
			return c.finish(logCtx, &event, enums.EventStatusFailed, start)
		}
		replyText = c.cfg.FallbackText
	}
	agentFailed := err != nil

	status := c.deliver(pipeCtx, logCtx, &event, replyText)
	if agentFailed && status == enums.EventStatusSuccess {
		// fallback text went out, but the event itself did not succeed
		status = enums.EventStatusFailed
	}
	return c.finish(logCtx, &event, status, start)
}

// deliver sends the reply and maps the outcome to an audit status.
func (c *Consumer) deliver(ctx, logCtx context.Context, event *tiktokwebhook.InboundEvent, text string) enums.EventStatus {
	var result *tiktok.SendResult
	attempt := 0
	err := retry.Do(ctx, c.retryPolicy(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			c.metrics.IncRetry()
		}
		res, err := c.sender.SendMessage(ctx, event.SenderID, text)
		if err != nil {
			if pkgerrors.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		c.logg.Error(logCtx, "failed to send reply", err)
		label := "terminal_error"
		if pkgerrors.IsRetryable(err) {
			label = "retryable_error"
		}
		c.metrics.IncSend(label)
		return enums.EventStatusFailed
	}

	switch result.Status {
	case tiktok.SendStatusSent:
		c.logg.Info(logCtx, "reply delivered")
		c.metrics.IncSend("sent")
		return enums.EventStatusSuccess
	case tiktok.SendStatusAuthRevoked:
		c.metrics.IncSend("auth_error")
		return enums.EventStatusFailed
	default:
		c.metrics.IncSend("rejected")
		return enums.EventStatusFailed
	}
}

func (c *Consumer) replyWithRetry(ctx context.Context, userText string) (string, error) {
	var text string
	attempt := 0
	err := retry.Do(ctx, c.retryPolicy(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			c.metrics.IncRetry()
		}
		reply, err := c.agent.Reply(ctx, userText)
		if err != nil {
			if pkgerrors.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		text = reply
		return nil
	})
	return text, err
}

func (c *Consumer) retryPolicy() retry.Backoff {
	return retry.WithMaxRetries(uint64(c.cfg.MaxAttempts-1), retry.NewFibonacci(c.cfg.RetryBackoff))
}

// finish writes the audit record and completes the fast-path marker. It uses
// the receive context, not the pipeline one, so an expired soft timeout cannot
// block the audit write.
func (c *Consumer) finish(ctx context.Context, event *tiktokwebhook.InboundEvent, status enums.EventStatus, start time.Time) processResult {
	if err := c.audit.RecordProcessed(ctx, event.EventID, status, c.now()); err != nil {
		c.logg.Error(ctx, "failed to write processed-event record", err)
	}
	if c.marker != nil {
		c.marker.MarkCompleted(ctx, event.EventID, string(status))
	}
	c.metrics.IncProcessed(event.EventType, outcomeLabel(status))
	c.metrics.ObserveDuration(event.EventType, c.now().Sub(start))
	return processResult{ack: true}
}

func outcomeLabel(status enums.EventStatus) string {
	switch status {
	case enums.EventStatusSuccess:
		return "success"
	case enums.EventStatusSkipped:
		return "skipped"
	default:
		return "failed"
	}
}
