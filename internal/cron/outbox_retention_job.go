package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox"
)

const outboxRetentionDays = 30

type outboxCleaner interface {
	DeletePublishedBefore(cutoff time.Time) (int64, error)
}

type cleanerFactory func(handle *gorm.DB) outboxCleaner

func defaultCleanerFactory(handle *gorm.DB) outboxCleaner {
	return outbox.NewRepository(handle)
}

// OutboxRetentionJobParams configure the published-row cleanup.
type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	Platform      *gorm.DB
	Marketplaces  marketplaceSource
	Pools         tenantPool
	RetentionDays int
	Cleaner       cleanerFactory
}

// NewOutboxRetentionJob builds the job that deletes old published outbox
// rows from the platform database and every active tenant database.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Platform == nil {
		return nil, fmt.Errorf("platform db required")
	}
	if params.Marketplaces == nil {
		return nil, fmt.Errorf("marketplace source required")
	}
	if params.Pools == nil {
		return nil, fmt.Errorf("tenant pool required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = outboxRetentionDays
	}
	cleaner := params.Cleaner
	if cleaner == nil {
		cleaner = defaultCleanerFactory
	}
	return &outboxRetentionJob{
		logg:         params.Logger,
		platform:     params.Platform,
		marketplaces: params.Marketplaces,
		pools:        params.Pools,
		retention:    retention,
		cleaner:      cleaner,
		now:          time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	platform     *gorm.DB
	marketplaces marketplaceSource
	pools        tenantPool
	retention    int
	cleaner      cleanerFactory
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)

	var errs []error
	if err := j.clean(ctx, "platform", j.platform, cutoff); err != nil {
		errs = append(errs, err)
	}

	marketplaces, err := j.marketplaces.ListActiveWithConnections(ctx)
	if err != nil {
		return multierr.Append(multierr.Combine(errs...), fmt.Errorf("list active marketplaces: %w", err))
	}
	for i := range marketplaces {
		marketplace := marketplaces[i]
		client, err := j.pools.Handle(ctx, &marketplace)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: dial: %w", marketplace.Slug, err))
			continue
		}
		if err := j.clean(ctx, marketplace.Slug, client.DB(), cutoff); err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", marketplace.Slug, err))
		}
	}
	return multierr.Combine(errs...)
}

func (j *outboxRetentionJob) clean(ctx context.Context, database string, handle *gorm.DB, cutoff time.Time) error {
	deleted, err := j.cleaner(handle).DeletePublishedBefore(cutoff)
	if err != nil {
		return fmt.Errorf("delete published rows: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"database":       database,
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
