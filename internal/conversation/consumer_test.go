package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	tiktokwebhook "github.com/philiathrifts/thriftbot/internal/webhooks/tiktok"
	"github.com/philiathrifts/thriftbot/pkg/db/models"
	"github.com/philiathrifts/thriftbot/pkg/enums"
	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
	"github.com/philiathrifts/thriftbot/pkg/logger"
	"github.com/philiathrifts/thriftbot/pkg/metrics"
	"github.com/philiathrifts/thriftbot/pkg/tiktok"
)

type stubTracker struct {
	user  *models.User
	err   error
	calls int
}

func (s *stubTracker) Upsert(ctx context.Context, tiktokID, username string, at time.Time) (*models.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.user != nil {
		return s.user, nil
	}
	return &models.User{TikTokID: tiktokID, LastInteractionAt: at}, nil
}

type stubAgent struct {
	text     string
	errs     []error
	calls    int
	deadline time.Time
}

func (s *stubAgent) Reply(ctx context.Context, userText string) (string, error) {
	s.calls++
	if d, ok := ctx.Deadline(); ok {
		s.deadline = d
	}
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return "", s.errs[s.calls-1]
	}
	return s.text, nil
}

type stubSender struct {
	result *tiktok.SendResult
	err    error
	texts  []string
}

func (s *stubSender) SendMessage(ctx context.Context, recipientID, text string) (*tiktok.SendResult, error) {
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &tiktok.SendResult{Status: tiktok.SendStatusSent, MessageID: "mid-1"}, nil
}

type stubAudit struct {
	statuses map[string]enums.EventStatus
}

func (s *stubAudit) RecordProcessed(ctx context.Context, eventID string, status enums.EventStatus, at time.Time) error {
	if s.statuses == nil {
		s.statuses = map[string]enums.EventStatus{}
	}
	if _, ok := s.statuses[eventID]; !ok {
		s.statuses[eventID] = status
	}
	return nil
}

type stubMarker struct {
	completed map[string]string
}

func (s *stubMarker) MarkCompleted(ctx context.Context, eventID, status string) {
	if s.completed == nil {
		s.completed = map[string]string{}
	}
	s.completed[eventID] = status
}

type consumerFixture struct {
	consumer *Consumer
	tracker  *stubTracker
	agent    *stubAgent
	sender   *stubSender
	audit    *stubAudit
	marker   *stubMarker
}

func newTestConsumer(t *testing.T, mutate func(*ConsumerParams)) *consumerFixture {
	t.Helper()
	f := &consumerFixture{
		tracker: &stubTracker{},
		agent:   &stubAgent{text: "found it! ✨"},
		sender:  &stubSender{},
		audit:   &stubAudit{},
		marker:  &stubMarker{},
	}
	params := ConsumerParams{
		Subscription: &pubsub.Subscriber{},
		Users:        f.tracker,
		Agent:        f.agent,
		Sender:       f.sender,
		Audit:        f.audit,
		Marker:       f.marker,
		Logger:       logger.New(logger.Options{ServiceName: "test"}),
		Config: Config{
			MaxAttempts:  3,
			RetryBackoff: time.Millisecond,
		},
	}
	if mutate != nil {
		mutate(&params)
	}
	consumer, err := NewConsumer(params)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return f.withConsumer(consumer)
}

func (f *consumerFixture) withConsumer(c *Consumer) *consumerFixture {
	f.consumer = c
	return f
}

func buildMessage(t *testing.T, event tiktokwebhook.InboundEvent) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return &pubsub.Message{ID: "msg-1", Data: data}
}

func messageEvent() tiktokwebhook.InboundEvent {
	return tiktokwebhook.InboundEvent{
		EventID:    "evt-1",
		EventType:  "im_message",
		SenderID:   "user-7",
		Username:   "thriftfan",
		Text:       "got any nike jackets?",
		ReceivedAt: time.Now().UTC(),
	}
}

func TestConsumerHappyPath(t *testing.T) {
	t.Parallel()

	f := newTestConsumer(t, nil)
	result := f.consumer.process(context.Background(), buildMessage(t, messageEvent()))

	if !result.ack || result.nack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if f.tracker.calls != 1 {
		t.Fatalf("expected user tracked once, got %d", f.tracker.calls)
	}
	if len(f.sender.texts) != 1 || f.sender.texts[0] != "found it! ✨" {
		t.Fatalf("unexpected sends %v", f.sender.texts)
	}
	if f.audit.statuses["evt-1"] != enums.EventStatusSuccess {
		t.Fatalf("expected SUCCESS audit, got %v", f.audit.statuses)
	}
	if f.marker.completed["evt-1"] != "SUCCESS" {
		t.Fatalf("expected completion marker, got %v", f.marker.completed)
	}
}

func TestConsumerSkipsNonMessageEvents(t *testing.T) {
	t.Parallel()

	f := newTestConsumer(t, nil)
	event := tiktokwebhook.InboundEvent{EventID: "evt-2", EventType: "authorization_revoked"}

	result := f.consumer.process(context.Background(), buildMessage(t, event))
	if !result.ack {
		t.Fatalf("expected ack")
	}
	if f.agent.calls != 0 || len(f.sender.texts) != 0 {
		t.Fatalf("pipeline must not run for non-message events")
	}
	if f.audit.statuses["evt-2"] != enums.EventStatusSkipped {
		t.Fatalf("expected SKIPPED audit, got %v", f.audit.statuses)
	}
}

func TestConsumerAcksUndecodableMessage(t *testing.T) {
	t.Parallel()

	f := newTestConsumer(t, nil)
	result := f.consumer.process(context.Background(), &pubsub.Message{ID: "msg-1", Data: []byte("not json")})
	if !result.ack {
		t.Fatalf("poison messages must ack")
	}
	if f.tracker.calls != 0 || f.agent.calls != 0 {
		t.Fatalf("pipeline must not run for poison messages")
	}
}

func TestConsumerRetriesAgentThenSucceeds(t *testing.T) {
	t.Parallel()

	f := newTestConsumer(t, nil)
	f.agent.errs = []error{pkgerrors.New(pkgerrors.CodeDependency, "model unavailable")}

	result := f.consumer.process(context.Background(), buildMessage(t, messageEvent()))
	if !result.ack {
		t.Fatalf("expected ack")
	}
	if f.agent.calls != 2 {
		t.Fatalf("expected one retry, got %d calls", f.agent.calls)
	}
	if f.audit.statuses["evt-1"] != enums.EventStatusSuccess {
		t.Fatalf("expected SUCCESS after retry, got %v", f.audit.statuses)
	}
}

func TestConsumerAgentExhaustionWithoutFallback(t *testing.T) {
	t.Parallel()

	f := newTestConsumer(t, nil)
	depErr := pkgerrors.New(pkgerrors.CodeDependency, "model unavailable")
	f.agent.errs = []error{depErr, depErr, depErr}

	result := f.consumer.process(context.Background(), buildMessage(t, messageEvent()))
	if !result.ack || result.nack {
		t.Fatalf("exhausted retries must ack, not loop: %+v", result)
	}
	if f.agent.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.agent.calls)
	}
	if len(f.sender.texts) != 0 {
		t.Fatalf("no reply must be sent without fallback")
	}
	if f.audit.statuses["evt-1"] != enums.EventStatusFailed {
		t.Fatalf("expected FAILED audit, got %v", f.audit.statuses)
	}
}

func TestConsumerAgentNonRetryableFailsFast(t *testing.T) {
	t.Parallel()

	f := newTestConsumer(t, nil)
	f.agent.errs = []error{pkgerrors.New(pkgerrors.CodeValidation, "bad input")}

	f.consumer.process(context.Background(), buildMessage(t, messageEvent()))
	if f.agent.calls != 1 {
		t.Fatalf("non-retryable errors must not retry, got %d calls", f.agent.calls)
	}
	if f.audit.statuses["evt-1"] != enums.EventStatusFailed {
		t.Fatalf("expected FAILED audit, got %v", f.audit.statuses)
	}
}

func TestConsumerSendsFallbackWhenEnabled(t *testing.T) {
	t.Parallel()

	f := newTestConsumer(t, func(p *ConsumerParams) {
		p.Config.SendFallback = true
		p.Config.FallbackText = "sorry, try again"
	})
	depErr := pkgerrors.New(pkgerrors.CodeDependency, "model unavailable")
	f.agent.errs = []error{depErr, depErr, depErr}

	f.consumer.process(context.Background(), buildMessage(t, messageEvent()))
	if len(f.sender.texts) != 1 || f.sender.texts[0] != "sorry, try again" {
		t.Fatalf("expected fallback sent, got %v", f.sender.texts)
	}
	if f.audit.statuses["evt-1"] != enums.EventStatusFailed {
		t.Fatalf("fallback delivery must still audit FAILED, got %v", f.audit.statuses)
	}
}

func TestConsumerSurvivesUserTrackingFailure(t *testing.T) {
	t.Parallel()

	f := newTestConsumer(t, nil)
	f.tracker.err = errors.New("db down")

	f.consumer.process(context.Background(), buildMessage(t, messageEvent()))
	if len(f.sender.texts) != 1 {
		t.Fatalf("pipeline must continue past tracking failure, sends=%v", f.sender.texts)
	}
	if f.audit.statuses["evt-1"] != enums.EventStatusSuccess {
		t.Fatalf("expected SUCCESS audit, got %v", f.audit.statuses)
	}
}

func TestConsumerSuppressesReplyOutsideWindow(t *testing.T) {
	t.Parallel()

	f := newTestConsumer(t, nil)
	f.tracker.user = &models.User{
		TikTokID:          "user-7",
		LastInteractionAt: time.Now().Add(-72 * time.Hour),
	}

	f.consumer.process(context.Background(), buildMessage(t, messageEvent()))
	if f.agent.calls != 0 || len(f.sender.texts) != 0 {
		t.Fatalf("closed window must skip agent and send")
	}
	if f.audit.statuses["evt-1"] != enums.EventStatusSkipped {
		t.Fatalf("expected SKIPPED audit, got %v", f.audit.statuses)
	}
}

func TestConsumerAuthRevokedIsTerminal(t *testing.T) {
	t.Parallel()

	f := newTestConsumer(t, nil)
	f.sender.result = &tiktok.SendResult{Status: tiktok.SendStatusAuthRevoked}

	result := f.consumer.process(context.Background(), buildMessage(t, messageEvent()))
	if !result.ack {
		t.Fatalf("expected ack")
	}
	if len(f.sender.texts) != 1 {
		t.Fatalf("revoked auth must not retry the send, got %d attempts", len(f.sender.texts))
	}
	if f.audit.statuses["evt-1"] != enums.EventStatusFailed {
		t.Fatalf("expected FAILED audit, got %v", f.audit.statuses)
	}
}

func TestConsumerRetriesRateLimitedSend(t *testing.T) {
	t.Parallel()

	f := newTestConsumer(t, nil)
	f.sender.err = pkgerrors.New(pkgerrors.CodeRateLimit, "throttled")

	f.consumer.process(context.Background(), buildMessage(t, messageEvent()))
	if len(f.sender.texts) != 3 {
		t.Fatalf("expected 3 send attempts, got %d", len(f.sender.texts))
	}
	if f.audit.statuses["evt-1"] != enums.EventStatusFailed {
		t.Fatalf("expected FAILED audit, got %v", f.audit.statuses)
	}
}

func TestConsumerSendFailureLabels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		err   error
		label string
		sends int
	}{
		{"retryable", pkgerrors.New(pkgerrors.CodeRateLimit, "throttled"), "retryable_error", 3},
		{"terminal", pkgerrors.New(pkgerrors.CodeValidation, "bad recipient"), "terminal_error", 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			reg := prometheus.NewRegistry()
			f := newTestConsumer(t, func(p *ConsumerParams) {
				p.Metrics = metrics.NewWorkerMetrics(reg)
			})
			f.sender.err = tc.err

			f.consumer.process(context.Background(), buildMessage(t, messageEvent()))
			if len(f.sender.texts) != tc.sends {
				t.Fatalf("expected %d send attempts, got %d", tc.sends, len(f.sender.texts))
			}

			mfs, err := reg.Gather()
			if err != nil {
				t.Fatalf("gather metrics: %v", err)
			}
			if got := sendCounterValue(t, mfs, tc.label); got != 1 {
				t.Fatalf("expected %s=1, got %f", tc.label, got)
			}
		})
	}
}

func sendCounterValue(t *testing.T, mfs []*dto.MetricFamily, result string) float64 {
	t.Helper()
	for _, mf := range mfs {
		if mf.GetName() != "worker_message_sends" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" && lp.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestConsumerHardTimeoutBoundsPipeline(t *testing.T) {
	t.Parallel()

	f := newTestConsumer(t, func(p *ConsumerParams) {
		p.Config.SoftTimeout = time.Hour
		p.Config.HardTimeout = time.Minute
	})

	before := time.Now()
	f.consumer.process(context.Background(), buildMessage(t, messageEvent()))

	if f.agent.deadline.IsZero() {
		t.Fatalf("expected a pipeline deadline")
	}
	if limit := before.Add(time.Minute + time.Second); f.agent.deadline.After(limit) {
		t.Fatalf("pipeline deadline %v exceeds the hard ceiling %v", f.agent.deadline, limit)
	}
}

func TestNewConsumerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewConsumer(ConsumerParams{})
	if err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}
