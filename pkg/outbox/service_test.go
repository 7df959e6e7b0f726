package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/watchpoints/points-engine/pkg/db/dbtest"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	"github.com/watchpoints/points-engine/pkg/outbox"
)

func TestEmitWritesEnvelope(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)
	aggregateID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventBonusGranted,
			AggregateType: enums.AggregateLedger,
			AggregateID:   aggregateID,
			Data:          map[string]int64{"points": 10},
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var rows []models.OutboxEvent
	if err := client.DB().Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(rows[0].Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Version != outbox.PayloadVersion || envelope.EventID != rows[0].ID.String() {
		t.Fatalf("unexpected envelope %+v for row %s", envelope, rows[0].ID)
	}
	if string(envelope.Data) != `{"points":10}` {
		t.Fatalf("unexpected data %s", envelope.Data)
	}
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	client := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(client.DB()), nil)

	boom := errors.New("domain write failed")
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventRedemptionRequested,
			AggregateType: enums.AggregateRedemption,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected domain error, got %v", err)
	}
	var count int64
	client.DB().Model(&models.OutboxEvent{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected rollback to discard event, found %d", count)
	}
}

func TestEmitIfNotExistsSkipsDuplicates(t *testing.T) {
	client := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	event := outbox.DomainEvent{
		EventType:     enums.EventRedemptionCompleted,
		AggregateType: enums.AggregateRedemption,
		AggregateID:   uuid.New(),
		Data:          struct{}{},
	}
	for i := 0; i < 2; i++ {
		err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		})
		if err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	var count int64
	client.DB().Model(&models.OutboxEvent{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 event, got %d", count)
	}
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	client := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{EventType: "nope"})
	})
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	ctx := context.Background()

	first := models.OutboxEvent{EventType: enums.EventBonusGranted, AggregateType: enums.AggregateLedger, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{EventType: enums.EventBonusGranted, AggregateType: enums.AggregateLedger, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	for _, row := range []models.OutboxEvent{first, second} {
		if err := repo.Insert(client.DB(), row); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		if len(rows) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(rows))
		}
		if err := repo.MarkPublishedTx(tx, rows[0].ID); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, rows[1].ID, errors.New("bad payload"), 3)
	})
	if err != nil {
		t.Fatalf("lifecycle: %v", err)
	}

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		if len(rows) != 0 {
			t.Fatalf("expected no fetchable rows, got %d", len(rows))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}

	deleted, err := repo.DeletePublishedBefore(ctx, client.DB(), time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("delete published: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 pruned row, got %d", deleted)
	}
}
