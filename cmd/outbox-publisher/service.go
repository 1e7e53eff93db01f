package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// outboxSource reads and settles outbox rows on one database.
type outboxSource interface {
	FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(id uuid.UUID) error
	MarkFailed(id uuid.UUID, err error) error
}

type marketplaceLister interface {
	ListActiveWithConnections(ctx context.Context) ([]models.Marketplace, error)
}

type tenantPool interface {
	Handle(ctx context.Context, marketplace *models.Marketplace) (*db.Client, error)
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type notifier interface {
	Notify(ctx context.Context, event models.OutboxEvent) error
}

type sourceFactory func(handle *gorm.DB) outboxSource

func defaultSourceFactory(handle *gorm.DB) outboxSource {
	return outbox.NewRepository(handle)
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.pub.Publish(ctx, msg)
}

type ServiceParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	Platform     *gorm.DB
	Marketplaces marketplaceLister
	Pools        tenantPool
	Events       publisher
	Notifier     notifier
	Sources      sourceFactory
}

// Service drains the platform outbox and every active tenant outbox,
// publishing each row to the domain event topic and fanning mapped events
// out as notifications.
type Service struct {
	cfg          *config.Config
	logg         *logger.Logger
	platform     *gorm.DB
	marketplaces marketplaceLister
	pools        tenantPool
	events       publisher
	notifier     notifier
	sources      sourceFactory
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Platform == nil {
		return nil, errors.New("platform database is required")
	}
	if params.Marketplaces == nil {
		return nil, errors.New("marketplace lister is required")
	}
	if params.Pools == nil {
		return nil, errors.New("tenant pool is required")
	}
	if params.Events == nil {
		return nil, errors.New("event publisher is required")
	}
	if params.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	sources := params.Sources
	if sources == nil {
		sources = defaultSourceFactory
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		cfg:          params.Config,
		logg:         params.Logger,
		platform:     params.Platform,
		marketplaces: params.Marketplaces,
		pools:        params.Pools,
		events:       params.Events,
		notifier:     params.Notifier,
		sources:      sources,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

// Run polls until the context is canceled. Errors back off exponentially
// with jitter; an idle cycle sleeps one poll interval.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processCycle(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher cycle error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// processCycle drains one batch from every outbox. The platform outbox is
// always drained; a failing tenant is skipped for the cycle so the others
// still make progress.
func (s *Service) processCycle(ctx context.Context) (bool, error) {
	processed, err := s.drain(ctx, "platform", s.sources(s.platform))
	if err != nil {
		return processed, err
	}

	marketplaces, err := s.marketplaces.ListActiveWithConnections(ctx)
	if err != nil {
		return processed, fmt.Errorf("list active marketplaces: %w", err)
	}
	for i := range marketplaces {
		marketplace := marketplaces[i]
		client, err := s.pools.Handle(ctx, &marketplace)
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "marketplace", marketplace.Slug), "tenant outbox unreachable", err)
			continue
		}
		tenantProcessed, err := s.drain(ctx, marketplace.Slug, s.sources(client.DB()))
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "marketplace", marketplace.Slug), "tenant outbox drain failed", err)
			continue
		}
		processed = processed || tenantProcessed
	}
	return processed, nil
}

func (s *Service) drain(ctx context.Context, database string, source outboxSource) (bool, error) {
	events, err := source.FetchUnpublished(s.batchSize, s.maxAttempts)
	if err != nil {
		return false, fmt.Errorf("fetch unpublished (%s): %w", database, err)
	}
	if len(events) == 0 {
		return false, nil
	}

	for _, event := range events {
		fields := s.eventFields(event, database)
		if err := s.deliver(ctx, event); err != nil {
			logCtx := s.logg.WithFields(ctx, fields)
			logCtx = s.logg.WithField(logCtx, "error", err.Error())
			if event.AttemptCount+1 >= s.maxAttempts {
				s.logg.Error(logCtx, "outbox event exhausted its attempts", err)
			} else {
				s.logg.Warn(logCtx, "outbox publish failed")
			}
			if markErr := source.MarkFailed(event.ID, err); markErr != nil {
				return true, fmt.Errorf("mark failure %s: %w", event.ID, markErr)
			}
			continue
		}
		if markErr := source.MarkPublished(event.ID); markErr != nil {
			return true, fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
	}
	return true, nil
}

// deliver publishes the row to the domain event topic, then fans it out as
// a notification when the event type has a notification mapping.
func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) error {
	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := s.events.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return s.notifier.Notify(publishCtx, event)
}

func (s *Service) eventFields(event models.OutboxEvent, database string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"database":       database,
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
