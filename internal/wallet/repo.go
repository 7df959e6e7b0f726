package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/watchpoints/points-engine/internal/ledger"
	"github.com/watchpoints/points-engine/internal/repo"
	dbpkg "github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/db/models"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
)

// Delta is a signed change to each wallet counter.
type Delta struct {
	Pending   int64
	Available int64
	Earned    int64
	Redeemed  int64
}

// IsZero reports whether applying the delta would change nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Repository persists the wallet projection. All balance writes are
// single increment statements or conditional updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	EnsureWallet(ctx context.Context, userID uuid.UUID) error
	ApplyDelta(ctx context.Context, userID uuid.UUID, delta Delta) (*models.Wallet, error)
	DebitAvailable(ctx context.Context, userID uuid.UUID, points int64) (*models.Wallet, error)
	Lock(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Replace(ctx context.Context, userID uuid.UUID, balances ledger.Balances) (*models.Wallet, error)
	Archive(ctx context.Context, userID uuid.UUID, at time.Time) error
	List(ctx context.Context, after uuid.UUID, limit int) ([]models.Wallet, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a wallet repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	if err := r.DB(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, dbpkg.Classify(err, "wallet not found")
	}
	return &w, nil
}

// EnsureWallet creates an empty wallet row if none exists.
func (r *repository) EnsureWallet(ctx context.Context, userID uuid.UUID) error {
	err := r.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&models.Wallet{UserID: userID}).Error
	if err != nil {
		return dbpkg.Classify(err, "create wallet")
	}
	return nil
}

// ApplyDelta increments every counter in one UPDATE and reads the row back.
// A missing row is created once and the update retried.
func (r *repository) ApplyDelta(ctx context.Context, userID uuid.UUID, delta Delta) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet user is required")
	}
	if delta.IsZero() {
		if err := r.EnsureWallet(ctx, userID); err != nil {
			return nil, err
		}
		return r.Get(ctx, userID)
	}
	for attempt := 0; attempt < 2; attempt++ {
		res := r.DB(ctx).
			Model(&models.Wallet{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"pending_points":   gorm.Expr("pending_points + ?", delta.Pending),
				"available_points": gorm.Expr("available_points + ?", delta.Available),
				"total_earned":     gorm.Expr("total_earned + ?", delta.Earned),
				"total_redeemed":   gorm.Expr("total_redeemed + ?", delta.Redeemed),
				"updated_at":       time.Now().UTC(),
			})
		if res.Error != nil {
			return nil, dbpkg.Classify(res.Error, "apply wallet delta")
		}
		if res.RowsAffected == 1 {
			return r.Get(ctx, userID)
		}
		if attempt == 0 {
			if err := r.EnsureWallet(ctx, userID); err != nil {
				return nil, err
			}
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet row could not be created")
}

// DebitAvailable subtracts points only while the available balance covers them.
func (r *repository) DebitAvailable(ctx context.Context, userID uuid.UUID, points int64) (*models.Wallet, error) {
	if points <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debit points must be positive")
	}
	res := r.DB(ctx).
		Model(&models.Wallet{}).
		Where("user_id = ? AND available_points >= ?", userID, points).
		Updates(map[string]any{
			"available_points": gorm.Expr("available_points - ?", points),
			"total_redeemed":   gorm.Expr("total_redeemed + ?", points),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, dbpkg.Classify(res.Error, "debit wallet")
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient available points")
	}
	return r.Get(ctx, userID)
}

// Lock takes the wallet row lock, creating the row first when needed.
func (r *repository) Lock(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if err := r.EnsureWallet(ctx, userID); err != nil {
		return nil, err
	}
	var w models.Wallet
	if err := dbpkg.ForUpdate(r.DB(ctx)).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, dbpkg.Classify(err, "lock wallet")
	}
	return &w, nil
}

// Replace overwrites the projection with balances derived from the ledger.
func (r *repository) Replace(ctx context.Context, userID uuid.UUID, balances ledger.Balances) (*models.Wallet, error) {
	w := models.Wallet{
		UserID:          userID,
		PendingPoints:   balances.Pending,
		AvailablePoints: balances.Available,
		TotalEarned:     balances.TotalEarned,
		TotalRedeemed:   balances.TotalRedeemed,
	}
	err := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"pending_points", "available_points", "total_earned", "total_redeemed", "updated_at"}),
		}).
		Create(&w).Error
	if err != nil {
		return nil, dbpkg.Classify(err, "replace wallet")
	}
	return r.Get(ctx, userID)
}

// Archive marks the wallet archived. Ledger rows are untouched.
func (r *repository) Archive(ctx context.Context, userID uuid.UUID, at time.Time) error {
	res := r.DB(ctx).
		Model(&models.Wallet{}).
		Where("user_id = ? AND archived_at IS NULL", userID).
		Update("archived_at", at.UTC())
	if res.Error != nil {
		return dbpkg.Classify(res.Error, "archive wallet")
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// List pages active wallets ordered by user id.
func (r *repository) List(ctx context.Context, after uuid.UUID, limit int) ([]models.Wallet, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.DB(ctx).Where("archived_at IS NULL")
	if after != uuid.Nil {
		query = query.Where("user_id > ?", after)
	}
	var rows []models.Wallet
	if err := query.Order("user_id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, dbpkg.Classify(err, "list wallets")
	}
	return rows, nil
}

// IsNotFound reports whether err means the wallet row does not exist.
func IsNotFound(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
