package redemptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/watchpoints/points-engine/internal/repo"
	dbpkg "github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/pagination"
)

// ListFilter narrows a user's redemption history.
type ListFilter struct {
	Statuses []enums.RedemptionStatus
	Limit    int
	Cursor   string
}

// Repository persists redemption requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.RedemptionRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.RedemptionRequest, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.RedemptionRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]models.RedemptionRequest, string, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.RedemptionStatus, to enums.RedemptionStatus, fields map[string]any) (bool, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, req *models.RedemptionRequest) error {
	if err := r.DB(ctx).Create(req).Error; err != nil {
		return dbpkg.Classify(err, "create redemption request")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RedemptionRequest, error) {
	var req models.RedemptionRequest
	if err := r.DB(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, dbpkg.Classify(err, "redemption request not found")
	}
	return &req, nil
}

// FindForUpdate loads the request holding its row lock.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.RedemptionRequest, error) {
	var req models.RedemptionRequest
	if err := dbpkg.ForUpdate(r.DB(ctx)).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, dbpkg.Classify(err, "redemption request not found")
	}
	return &req, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]models.RedemptionRequest, string, error) {
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := r.DB(ctx).Where("user_id = ?", userID)
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	var rows []models.RedemptionRequest
	err = query.Scopes(pagination.Keyset("created_at", pagination.Descending, cursor)).
		Limit(pagination.LimitWithBuffer(filter.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, "", dbpkg.Classify(err, "list redemption requests")
	}
	page, next := pagination.Trim(rows, filter.Limit, func(r models.RedemptionRequest) pagination.Cursor {
		return pagination.Cursor{At: r.CreatedAt, ID: r.ID}
	})
	return page, next, nil
}

// UpdateStatus moves the request to `to` only while it is in one of `from`.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.RedemptionStatus, to enums.RedemptionStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.DB(ctx).
		Model(&models.RedemptionRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, dbpkg.Classify(res.Error, "update redemption status")
	}
	return res.RowsAffected == 1, nil
}
