package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
	"github.com/angelmondragon/partnerledger-backend/pkg/metrics"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	ackTimeout          = 15 * time.Second
	maxIdleBackoff      = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

type ledgerDB interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type brokerClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRows interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
	CountUnpublished(tx *gorm.DB, maxAttempts int) (int64, error)
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// settings are the relay knobs after defaults are applied.
type settings struct {
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
	orderByAffiliate bool
	logPayloads      bool
}

func settingsFrom(cfg *config.Config) settings {
	out := settings{
		batchSize:        cfg.Outbox.BatchSize,
		maxAttempts:      cfg.Outbox.MaxAttempts,
		pollInterval:     time.Duration(cfg.Outbox.PollIntervalMS) * time.Millisecond,
		orderByAffiliate: cfg.Outbox.OrderByAffiliate,
		logPayloads:      cfg.FeatureFlags.PublishOutboxLogs,
	}
	if out.batchSize <= 0 {
		out.batchSize = defaultBatchSize
	}
	if out.maxAttempts <= 0 {
		out.maxAttempts = defaultMaxAttempts
	}
	if out.pollInterval <= 0 {
		out.pollInterval = defaultPollInterval
	}
	return out
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               ledgerDB
	PubSub           brokerClient
	Repository       outboxRows
	Registry         eventResolver
	PublisherFactory publisherFactory
	Metrics          *metrics.OutboxMetrics
}

// Service relays committed outbox rows to Pub/Sub. Each poll claims a batch
// under FOR UPDATE SKIP LOCKED, hands every message to the client at once and
// then settles the rows as the acks come back.
type Service struct {
	settings
	logg             *logger.Logger
	db               ledgerDB
	repo             outboxRows
	pubsub           brokerClient
	registry         eventResolver
	publisherFactory publisherFactory
	metrics          *metrics.OutboxMetrics

	mu         sync.Mutex
	publishers map[string]publisher
}

func NewService(params ServiceParams) (*Service, error) {
	var missing error
	for name, ok := range map[string]bool{
		"config":            params.Config != nil,
		"logger":            params.Logger != nil,
		"database client":   params.DB != nil,
		"pubsub client":     params.PubSub != nil,
		"outbox repository": params.Repository != nil,
		"event registry":    params.Registry != nil,
	} {
		if !ok {
			missing = multierr.Append(missing, fmt.Errorf("%s is required", name))
		}
	}
	if missing != nil {
		return nil, missing
	}

	s := &Service{
		settings:         settingsFrom(params.Config),
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		publisherFactory: params.PublisherFactory,
		metrics:          params.Metrics,
		publishers:       make(map[string]publisher),
	}
	if s.publisherFactory == nil {
		s.publisherFactory = s.topicPublisher
	}
	return s, nil
}

func (s *Service) topicPublisher(topic string) publisher {
	p := s.pubsub.Publisher(topic)
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = s.orderByAffiliate
	return &gcpPublisher{Publisher: p}
}

// publisherFor reuses one publisher per topic so the client's batching
// survives across polls.
func (s *Service) publisherFor(topic string) publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.publishers[topic]; ok {
		return p
	}
	p := s.publisherFactory(topic)
	if p != nil {
		s.publishers[topic] = p
	}
	return p
}

// Close flushes and stops every cached topic publisher.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, p := range s.publishers {
		if stopper, ok := p.(interface{ Stop() }); ok {
			stopper.Stop()
		}
		delete(s.publishers, topic)
	}
}

func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := newBackoff(s.pollInterval, maxIdleBackoff)
	for ctx.Err() == nil {
		claimed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			if err := sleepCtx(ctx, wait.next()); err != nil {
				return err
			}
		case claimed:
			wait.reset()
		default:
			wait.reset()
			if err := sleepCtx(ctx, withJitter(s.pollInterval)); err != nil {
				return err
			}
		}
	}
	s.logg.Info(ctx, "outbox publisher context canceled")
	return ctx.Err()
}

// inflight is one claimed row between publish and settle.
type inflight struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	result   publishResult
	err      error
}

func (f *inflight) topic() string {
	if f.resolved == nil {
		return ""
	}
	return f.resolved.Descriptor.Topic
}

// processBatch reports whether any row was claimed, so Run can poll again
// without sleeping. An error rolls the whole claim back.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events) > 0

		ackCtx, cancel := context.WithTimeout(ctx, ackTimeout)
		defer cancel()

		batch := make([]inflight, len(events))
		for i, event := range events {
			batch[i] = s.send(ackCtx, event)
		}
		for i := range batch {
			f := &batch[i]
			if f.err == nil {
				_, f.err = f.result.Get(ackCtx)
			}
			outcome, err := s.settle(ctx, tx, f)
			if err != nil {
				return err
			}
			s.metrics.ObserveEvent(string(f.event.EventType), outcome)
		}

		if backlog, err := s.repo.CountUnpublished(tx, s.maxAttempts); err == nil {
			s.metrics.SetBacklog(backlog)
		}
		return nil
	})
	return claimed, err
}

// send resolves the row and hands it to the topic publisher without waiting
// for the ack.
func (s *Service) send(ctx context.Context, event models.OutboxEvent) inflight {
	f := inflight{event: event}
	f.resolved, f.err = s.registry.Resolve(event)
	if f.err != nil {
		return f
	}
	topic := f.topic()
	pub := s.publisherFor(topic)
	if pub == nil {
		f.err = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
		return f
	}
	f.result = pub.Publish(ctx, s.message(event, f.resolved.Envelope))
	if f.result == nil {
		f.err = registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	return f
}

func (s *Service) message(event models.OutboxEvent, env outbox.Envelope) *gcppubsub.Message {
	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       env.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
			"source":         env.Source,
		},
	}
	if key := env.PartitionKey(); key != "" {
		msg.Attributes["affiliate_id"] = key
		if s.orderByAffiliate {
			msg.OrderingKey = key
		}
	}
	return msg
}

// settle records the publish outcome on the row and returns the metrics
// label. An error means the row could not be marked.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, f *inflight) (string, error) {
	fields := s.eventFields(f)
	logCtx := s.logg.WithFields(ctx, fields)

	switch {
	case f.err == nil:
		if err := s.repo.MarkPublishedTx(tx, f.event.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", f.event.ID, err)
		}
		if s.logPayloads {
			logCtx = s.logg.WithField(logCtx, "payload", string(f.event.Payload))
		}
		s.logg.Info(logCtx, "outbox event published")
		return metrics.OutboxPublished, nil

	case registry.IsNonRetryable(f.err):
		return metrics.OutboxTerminal, s.park(logCtx, tx, f.event.ID, "non_retryable", f.err)

	case f.event.AttemptCount+1 >= s.maxAttempts:
		return metrics.OutboxTerminal, s.park(logCtx, tx, f.event.ID, "max_attempts",
			fmt.Errorf("max publish attempts reached: %w", f.err))
	}

	s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
		"attempt_count": f.event.AttemptCount + 1,
		"error":         f.err.Error(),
	}), "outbox publish failed; will retry")
	if err := s.repo.MarkFailedTx(tx, f.event.ID, f.err); err != nil {
		return "", fmt.Errorf("mark failure %s: %w", f.event.ID, err)
	}
	return metrics.OutboxRetrying, nil
}

// park stops retrying a row. It keeps its payload and last_error for
// inspection until the retention job prunes it.
func (s *Service) park(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"terminal_reason": reason,
		"error":           cause.Error(),
	}), "outbox event will not be retried")
	if err := s.repo.MarkTerminalTx(tx, id, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", id, err)
	}
	return nil
}

func (s *Service) eventFields(f *inflight) map[string]any {
	event := f.event
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	if f.resolved == nil {
		return fields
	}
	env := f.resolved.Envelope
	fields["topic"] = f.topic()
	fields["event_id"] = env.EventID
	fields["occurred_at"] = env.OccurredAt.Format(time.RFC3339Nano)
	if key := env.PartitionKey(); key != "" {
		fields["affiliate_id"] = key
	}
	return fields
}

// backoff doubles the wait after consecutive batch errors, capped at max.
type backoff struct {
	base, max, current time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

func (b *backoff) next() time.Duration {
	b.current = min(max(b.current, b.base)*2, b.max)
	return withJitter(b.current)
}

func (b *backoff) reset() { b.current = 0 }

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// gcpPublisher adapts the Pub/Sub client to the publisher interface. A
// failed ordered publish pauses its key, so the key is resumed before the
// row goes back to the retry queue.
type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{
		result: p.Publisher.Publish(ctx, msg),
		resume: func() {
			if msg.OrderingKey != "" {
				p.Publisher.ResumePublish(msg.OrderingKey)
			}
		},
	}
}

type gcpPublishResult struct {
	result *gcppubsub.PublishResult
	resume func()
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	id, err := r.result.Get(ctx)
	if err != nil {
		r.resume()
	}
	return id, err
}
