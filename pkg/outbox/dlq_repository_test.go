package outbox_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/watchpoints/points-engine/pkg/db/dbtest"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	"github.com/watchpoints/points-engine/pkg/outbox"
)

func TestDLQParkListAndRequeue(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	dlq := outbox.NewDLQRepository(client.DB())

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventBonusGranted,
		AggregateType: enums.AggregateLedger,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1,"data":{}}`),
		AttemptCount:  10,
	}
	if err := client.DB().Create(&event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}

	msg := strings.Repeat("x", 2000)
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	for i := 0; i < 2; i++ {
		err := client.WithTx(ctx, func(tx *gorm.DB) error { return dlq.ParkTx(tx, entry) })
		if err != nil {
			t.Fatalf("park attempt %d: %v", i, err)
		}
	}

	rows, err := dlq.List(ctx, outbox.DLQFilter{EventType: enums.EventBonusGranted})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one parked entry, got %d", len(rows))
	}
	if len(*rows[0].ErrorMessage) != 1024 {
		t.Fatalf("expected truncated error message, got %d bytes", len(*rows[0].ErrorMessage))
	}
	if rows, _ := dlq.List(ctx, outbox.DLQFilter{Reason: enums.OutboxDLQReasonNonRetryable}); len(rows) != 0 {
		t.Fatalf("reason filter should exclude entry, got %d", len(rows))
	}

	if err := dlq.Requeue(ctx, event.ID); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	var reloaded models.OutboxEvent
	if err := client.DB().First(&reloaded, "id = ?", event.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AttemptCount != 0 {
		t.Fatalf("expected attempts reset, got %d", reloaded.AttemptCount)
	}
	if err := dlq.Requeue(ctx, event.ID); !errors.Is(err, outbox.ErrNotParked) {
		t.Fatalf("expected ErrNotParked, got %v", err)
	}
}
