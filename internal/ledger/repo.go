package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/pagination"
)

// ErrDuplicateEntry is returned by Append when the idempotency key was already used.
var ErrDuplicateEntry = errors.New("ledger entry already recorded")

// Filter narrows a user's history query.
type Filter struct {
	Kinds    []enums.LedgerEntryKind
	Statuses []enums.LedgerEntryStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Cursor   string
}

// Balances are the wallet counters derived from the ledger alone.
type Balances struct {
	Pending       int64
	Available     int64
	TotalEarned   int64
	TotalRedeemed int64
}

// Spendable is an AVAILABLE credit with value left to allocate.
type Spendable struct {
	Entry     models.LedgerEntry
	Remaining int64
}

// Repository manages persistence for ledger entries and allocations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, entry *models.LedgerEntry) (uuid.UUID, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, kind enums.LedgerEntryKind, key string) (*models.LedgerEntry, error)
	QueryByUser(ctx context.Context, userID uuid.UUID, filter Filter) ([]models.LedgerEntry, string, error)
	QueryMaturable(ctx context.Context, cutoff time.Time, after *pagination.Cursor, limit int) ([]models.LedgerEntry, error)
	QueryExpirable(ctx context.Context, cutoff time.Time, after *pagination.Cursor, limit int) ([]models.LedgerEntry, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.LedgerEntryStatus) (bool, error)
	ListSpendable(ctx context.Context, userID uuid.UUID) ([]Spendable, error)
	AllocatedPoints(ctx context.Context, creditIDs ...uuid.UUID) (map[uuid.UUID]int64, error)
	AppendAllocations(ctx context.Context, allocations []models.LedgerAllocation) error
	Balances(ctx context.Context, userID uuid.UUID) (Balances, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Append validates and inserts one entry. It is the only way entries are created.
func (r *repository) Append(ctx context.Context, entry *models.LedgerEntry) (uuid.UUID, error) {
	if err := validateEntry(entry); err != nil {
		return uuid.Nil, err
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if entry.IdempotencyKey != nil && dbpkg.IsUniqueViolation(err, "") {
			return uuid.Nil, ErrDuplicateEntry
		}
		return uuid.Nil, storeError(err, "append ledger entry")
	}
	return entry.ID, nil
}

func validateEntry(entry *models.LedgerEntry) error {
	if entry == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger entry is required")
	}
	if entry.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger entry user is required")
	}
	if !entry.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry kind %q", entry.Kind))
	}
	if !entry.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry status %q", entry.Status))
	}
	switch {
	case entry.Points == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger entry points must be non-zero")
	case entry.Kind.IsCredit() && entry.Points < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s entries must be positive", entry.Kind))
	case entry.Kind.IsDebit() && entry.Points > 0:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s entries must be negative", entry.Kind))
	case entry.Kind == enums.LedgerKindMature && entry.Points < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "MATURE entries must be positive")
	}
	if entry.Kind.IsCredit() && entry.ExpiresAt == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s entries require expires_at", entry.Kind))
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, dbpkg.Classify(err, "ledger entry not found")
	}
	return &entry, nil
}

// FindByIdempotencyKey returns nil, nil when no entry carries the key.
func (r *repository) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, kind enums.LedgerEntryKind, key string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND idempotency_key = ?", userID, kind, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "lookup ledger entry")
	}
	return &entry, nil
}

// QueryByUser pages a user's entries newest first by (posted_at, id).
func (r *repository) QueryByUser(ctx context.Context, userID uuid.UUID, filter Filter) ([]models.LedgerEntry, string, error) {
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(filter.Kinds) > 0 {
		query = query.Where("kind IN ?", filter.Kinds)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.From != nil {
		query = query.Where("posted_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("posted_at < ?", filter.To.UTC())
	}
	var rows []models.LedgerEntry
	err = query.Scopes(pagination.Keyset("posted_at", pagination.Descending, cursor)).
		Limit(pagination.LimitWithBuffer(filter.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, "", storeError(err, "query ledger entries")
	}
	page, next := pagination.Trim(rows, filter.Limit, func(e models.LedgerEntry) pagination.Cursor {
		return pagination.Cursor{At: e.PostedAt, ID: e.ID}
	})
	return page, next, nil
}

// QueryMaturable returns POSTED credits whose holding period ended by cutoff,
// ordered by (available_at, id) after the given position.
func (r *repository) QueryMaturable(ctx context.Context, cutoff time.Time, after *pagination.Cursor, limit int) ([]models.LedgerEntry, error) {
	return r.sweepQuery(ctx, "available_at", enums.LedgerStatusPosted, cutoff, after, limit)
}

// QueryExpirable returns AVAILABLE credits whose expiry passed by cutoff.
func (r *repository) QueryExpirable(ctx context.Context, cutoff time.Time, after *pagination.Cursor, limit int) ([]models.LedgerEntry, error) {
	return r.sweepQuery(ctx, "expires_at", enums.LedgerStatusAvailable, cutoff, after, limit)
}

func (r *repository) sweepQuery(ctx context.Context, column string, status enums.LedgerEntryStatus, cutoff time.Time, after *pagination.Cursor, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	query := r.db.WithContext(ctx).
		Where("status = ? AND kind IN ?", status, enums.CreditKinds).
		Where(column+" IS NOT NULL AND "+column+" <= ?", cutoff.UTC())
	var rows []models.LedgerEntry
	if err := query.Scopes(pagination.Keyset(column, pagination.Ascending, after)).Limit(limit).Find(&rows).Error; err != nil {
		return nil, storeError(err, "query sweep candidates")
	}
	return rows, nil
}

// TransitionStatus moves an entry from one status to another with a
// conditional update. It reports false when the entry was not in from.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.LedgerEntryStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("ledger transition %s -> %s is not allowed", from, to))
	}
	res := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":            to,
			"status_changed_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, storeError(res.Error, "transition ledger entry")
	}
	return res.RowsAffected == 1, nil
}

// ListSpendable locks the user's AVAILABLE credits and returns those with value
// left, oldest expiry first. Callers must already hold the wallet row lock.
func (r *repository) ListSpendable(ctx context.Context, userID uuid.UUID) ([]Spendable, error) {
	var credits []models.LedgerEntry
	err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("user_id = ? AND status = ? AND kind IN ?", userID, enums.LedgerStatusAvailable, enums.CreditKinds).
		Order("expires_at ASC").Order("posted_at ASC").Order("id ASC").
		Find(&credits).Error
	if err != nil {
		return nil, storeError(err, "list spendable credits")
	}
	if len(credits) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(credits))
	for _, c := range credits {
		ids = append(ids, c.ID)
	}
	allocated, err := r.AllocatedPoints(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make([]Spendable, 0, len(credits))
	for _, c := range credits {
		if remaining := c.Points - allocated[c.ID]; remaining > 0 {
			out = append(out, Spendable{Entry: c, Remaining: remaining})
		}
	}
	return out, nil
}

type allocationSum struct {
	CreditEntryID uuid.UUID
	Total         int64
}

// AllocatedPoints sums prior allocations per credit entry.
func (r *repository) AllocatedPoints(ctx context.Context, creditIDs ...uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(creditIDs))
	if len(creditIDs) == 0 {
		return out, nil
	}
	var sums []allocationSum
	err := r.db.WithContext(ctx).
		Model(&models.LedgerAllocation{}).
		Select("credit_entry_id, COALESCE(SUM(points), 0) AS total").
		Where("credit_entry_id IN ?", creditIDs).
		Group("credit_entry_id").
		Scan(&sums).Error
	if err != nil {
		return nil, storeError(err, "sum allocations")
	}
	for _, s := range sums {
		out[s.CreditEntryID] = s.Total
	}
	return out, nil
}

func (r *repository) AppendAllocations(ctx context.Context, allocations []models.LedgerAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	for _, a := range allocations {
		if a.Points <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "allocation points must be positive")
		}
	}
	if err := r.db.WithContext(ctx).Create(&allocations).Error; err != nil {
		return storeError(err, "append allocations")
	}
	return nil
}

const balancesQuery = `SELECT
  COALESCE(SUM(CASE WHEN kind IN ? AND status = ? THEN points ELSE 0 END), 0) AS pending,
  COALESCE(SUM(CASE WHEN kind IN ? AND status = ? THEN points ELSE 0 END), 0) AS available_credits,
  COALESCE(SUM(CASE WHEN kind IN ? THEN points ELSE 0 END), 0) AS earned,
  COALESCE(SUM(CASE WHEN kind = ? THEN -points ELSE 0 END), 0) AS redeemed,
  COALESCE(SUM(CASE WHEN kind = ? THEN points ELSE 0 END), 0) AS reversed
FROM ledger_entries
WHERE user_id = ?`

const allocatedAgainstAvailableQuery = `SELECT COALESCE(SUM(a.points), 0)
FROM ledger_allocations a
JOIN ledger_entries e ON e.id = a.credit_entry_id
WHERE a.user_id = ? AND e.status = ?`

type balanceRow struct {
	Pending          int64
	AvailableCredits int64
	Earned           int64
	Redeemed         int64
	Reversed         int64
}

// Balances derives the four wallet counters from entries and allocations.
func (r *repository) Balances(ctx context.Context, userID uuid.UUID) (Balances, error) {
	var row balanceRow
	err := r.db.WithContext(ctx).Raw(balancesQuery,
		enums.CreditKinds, enums.LedgerStatusPosted,
		enums.CreditKinds, enums.LedgerStatusAvailable,
		[]enums.LedgerEntryKind{enums.LedgerKindEarn, enums.LedgerKindBonus},
		enums.LedgerKindRedeem,
		enums.LedgerKindReverse,
		userID,
	).Scan(&row).Error
	if err != nil {
		return Balances{}, storeError(err, "derive balances")
	}
	var allocated int64
	if err := r.db.WithContext(ctx).Raw(allocatedAgainstAvailableQuery, userID, enums.LedgerStatusAvailable).Scan(&allocated).Error; err != nil {
		return Balances{}, storeError(err, "derive allocated points")
	}
	return Balances{
		Pending:       row.Pending,
		Available:     row.AvailableCredits - allocated,
		TotalEarned:   row.Earned,
		TotalRedeemed: row.Redeemed - row.Reversed,
	}, nil
}

func storeError(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
