package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox"
)

func openOutboxDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s-%s?mode=memory&cache=shared", t.Name(), name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	ddl := `CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`
	if err := conn.Exec(ddl).Error; err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return conn
}

func seedOutboxRow(t *testing.T, conn *gorm.DB, publishedAt *time.Time) uuid.UUID {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		PublishedAt:   publishedAt,
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("failed to seed outbox row: %v", err)
	}
	return row.ID
}

func countOutboxRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.OutboxEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}

func TestOutboxRetentionDeletesOldPublishedRowsEverywhere(t *testing.T) {
	t.Parallel()
	platform := openOutboxDB(t, "platform")
	tenant := openOutboxDB(t, "tenant")
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	old := now.Add(-45 * 24 * time.Hour)
	recent := now.Add(-2 * 24 * time.Hour)

	for _, conn := range []*gorm.DB{platform, tenant} {
		seedOutboxRow(t, conn, &old)
		seedOutboxRow(t, conn, &recent)
		seedOutboxRow(t, conn, nil)
	}

	marketplace := models.Marketplace{ID: uuid.New(), Slug: "acme", Status: enums.MarketplaceStatusActive}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "cron-test"}),
		Platform:     platform,
		Marketplaces: &fakeMarketplaceSource{marketplaces: []models.Marketplace{marketplace}},
		Pools:        &fakePool{clients: map[uuid.UUID]*db.Client{marketplace.ID: db.FromGorm(tenant)}},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	job.(*outboxRetentionJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}

	if got := countOutboxRows(t, platform); got != 2 {
		t.Fatalf("platform: expected 2 surviving rows, got %d", got)
	}
	if got := countOutboxRows(t, tenant); got != 2 {
		t.Fatalf("tenant: expected 2 surviving rows, got %d", got)
	}
}

func TestOutboxRetentionKeepsUnpublishedRows(t *testing.T) {
	t.Parallel()
	platform := openOutboxDB(t, "platform")
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// unpublished rows stay regardless of age
	id := seedOutboxRow(t, platform, nil)
	if err := platform.Exec("UPDATE outbox_events SET created_at = ? WHERE id = ?", now.Add(-90*24*time.Hour), id).Error; err != nil {
		t.Fatalf("backdate row: %v", err)
	}

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "cron-test"}),
		Platform:     platform,
		Marketplaces: &fakeMarketplaceSource{},
		Pools:        &fakePool{},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	job.(*outboxRetentionJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}
	if got := countOutboxRows(t, platform); got != 1 {
		t.Fatalf("expected unpublished row to survive, got %d rows", got)
	}
}

var _ outboxCleaner = outbox.NewRepository(nil)
