package db_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/db/dbtest"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
)

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	client := dbtest.Open(t)
	ctx := context.Background()
	userID := uuid.New()

	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&models.Wallet{UserID: userID}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := client.DB().Model(&models.Wallet{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 wallet, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&models.Wallet{UserID: uuid.New()}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := client.DB().Model(&models.Wallet{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 wallet, got %d", count)
	}
}

func TestPing(t *testing.T) {
	client := dbtest.Open(t)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestSQLiteSchemaKeepsLedgerImmutable(t *testing.T) {
	client := dbtest.Open(t)
	entry := models.LedgerEntry{
		UserID:   uuid.New(),
		Kind:     enums.LedgerKindEarn,
		Points:   10,
		Status:   enums.LedgerStatusPosted,
		PostedAt: time.Now().UTC(),
	}
	if err := client.DB().Create(&entry).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}

	err := client.DB().Model(&models.LedgerEntry{}).Where("id = ?", entry.ID).Update("points", 20).Error
	if err == nil {
		t.Fatal("expected points update to be rejected")
	}
	if err := client.DB().Model(&models.LedgerEntry{}).Where("id = ?", entry.ID).Update("status", enums.LedgerStatusAvailable).Error; err != nil {
		t.Fatalf("status update should be allowed: %v", err)
	}
	if err := client.DB().Delete(&models.LedgerEntry{}, "id = ?", entry.ID).Error; err == nil {
		t.Fatal("expected delete to be rejected")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	client := dbtest.Open(t)
	userID := uuid.New()
	if err := client.DB().Create(&models.Wallet{UserID: userID}).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := client.DB().Create(&models.Wallet{UserID: userID}).Error
	if !db.IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation, got %v", err)
	}
	var liteErr sqlite3.Error
	if !errors.As(err, &liteErr) || liteErr.Code != sqlite3.ErrConstraint {
		t.Fatalf("expected sqlite constraint error, got %T", err)
	}
	if db.IsUniqueViolation(errors.New("other"), "") {
		t.Fatal("unexpected unique violation match")
	}
}

func TestIsCheckViolation(t *testing.T) {
	client := dbtest.Open(t)
	userID := uuid.New()
	if err := client.DB().Create(&models.Wallet{UserID: userID}).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := client.DB().Model(&models.Wallet{}).Where("user_id = ?", userID).Update("available_points", -1).Error
	if !db.IsCheckViolation(err) {
		t.Fatalf("expected check violation, got %v", err)
	}
	if db.IsCheckViolation(fmt.Errorf("wrapped: %w", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})) {
		t.Fatal("unique violation is not a check violation")
	}
}

func TestIsTransient(t *testing.T) {
	if !db.IsTransient(context.DeadlineExceeded) {
		t.Fatal("deadline should be transient")
	}
	if !db.IsTransient(fmt.Errorf("commit: %w", sqlite3.Error{Code: sqlite3.ErrBusy})) {
		t.Fatal("busy database should be transient")
	}
	if db.IsTransient(gorm.ErrRecordNotFound) {
		t.Fatal("not found is not transient")
	}
}
