package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/pkg/config"
	"github.com/marketgrid/marketgrid-backend/pkg/db"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
)

type fakeSource struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeSource) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeSource) MarkPublished(id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeSource) MarkFailed(id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeResult struct {
	err error
}

func (f fakeResult) Get(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

type fakePublisher struct {
	failFor  map[uuid.UUID]error
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	aggregateID, _ := uuid.Parse(msg.Attributes["aggregate_id"])
	if err, ok := f.failFor[aggregateID]; ok {
		return fakeResult{err: err}
	}
	return fakeResult{}
}

type fakeNotifier struct {
	notified []models.OutboxEvent
	err      error
}

func (f *fakeNotifier) Notify(_ context.Context, event models.OutboxEvent) error {
	if f.err != nil {
		return f.err
	}
	f.notified = append(f.notified, event)
	return nil
}

type emptyLister struct{}

func (emptyLister) ListActiveWithConnections(context.Context) ([]models.Marketplace, error) {
	return nil, nil
}

type emptyPool struct{}

func (emptyPool) Handle(context.Context, *models.Marketplace) (*db.Client, error) {
	return nil, errors.New("no tenants in this test")
}

func outboxEvent(eventType enums.OutboxEventType) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"eventId":"e1","data":{}}`),
	}
}

func testPlatformDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return conn
}

func newTestService(t *testing.T, source *fakeSource, pub *fakePublisher, notify *fakeNotifier) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Config:       &config.Config{},
		Logger:       logger.New(logger.Options{ServiceName: "outbox-test"}),
		Platform:     testPlatformDB(t),
		Marketplaces: emptyLister{},
		Pools:        emptyPool{},
		Events:       pub,
		Notifier:     notify,
		Sources:      func(*gorm.DB) outboxSource { return source },
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestProcessCyclepublishesAndMarks(t *testing.T) {
	event := outboxEvent(enums.EventOrderPlaced)
	source := &fakeSource{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	notify := &fakeNotifier{}
	service := newTestService(t, source, pub, notify)

	processed, err := service.processCycle(context.Background())
	if err != nil {
		t.Fatalf("process cycle: %v", err)
	}
	if !processed {
		t.Fatal("expected cycle to report progress")
	}
	if len(source.published) != 1 || source.published[0] != event.ID {
		t.Fatalf("expected event marked published, got %v", source.published)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(pub.messages))
	}
	if got := pub.messages[0].Attributes["event_type"]; got != string(enums.EventOrderPlaced) {
		t.Fatalf("unexpected event_type attribute: %s", got)
	}
	if len(notify.notified) != 1 {
		t.Fatalf("expected notification fan-out, got %d", len(notify.notified))
	}
}

func TestProcessCycleMarksFailureAndContinues(t *testing.T) {
	failing := outboxEvent(enums.EventOrderPlaced)
	healthy := outboxEvent(enums.EventOrderPaid)
	source := &fakeSource{events: []models.OutboxEvent{failing, healthy}}
	pub := &fakePublisher{failFor: map[uuid.UUID]error{failing.AggregateID: errors.New("broker down")}}
	notify := &fakeNotifier{}
	service := newTestService(t, source, pub, notify)

	processed, err := service.processCycle(context.Background())
	if err != nil {
		t.Fatalf("process cycle: %v", err)
	}
	if !processed {
		t.Fatal("expected cycle to report progress")
	}
	if len(source.failed) != 1 || source.failed[0] != failing.ID {
		t.Fatalf("expected failing event marked failed, got %v", source.failed)
	}
	if len(source.published) != 1 || source.published[0] != healthy.ID {
		t.Fatalf("expected healthy event marked published, got %v", source.published)
	}
}

func TestProcessCycleIdleWhenNothingPending(t *testing.T) {
	source := &fakeSource{}
	service := newTestService(t, source, &fakePublisher{}, &fakeNotifier{})

	processed, err := service.processCycle(context.Background())
	if err != nil {
		t.Fatalf("process cycle: %v", err)
	}
	if processed {
		t.Fatal("expected idle cycle")
	}
}

func TestNotifyFailureMarksEventFailed(t *testing.T) {
	event := outboxEvent(enums.EventOrderPlaced)
	source := &fakeSource{events: []models.OutboxEvent{event}}
	service := newTestService(t, source, &fakePublisher{}, &fakeNotifier{err: errors.New("topic missing")})

	if _, err := service.processCycle(context.Background()); err != nil {
		t.Fatalf("process cycle: %v", err)
	}
	if len(source.published) != 0 {
		t.Fatalf("event must not be marked published, got %v", source.published)
	}
	if len(source.failed) != 1 {
		t.Fatalf("expected event marked failed, got %v", source.failed)
	}
}
