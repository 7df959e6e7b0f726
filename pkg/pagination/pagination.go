package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Cursor is a keyset position on (At, ID). Pages never overlap because id
// breaks ties between rows sharing a timestamp.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

// Direction is the keyset walk order.
type Direction int

const (
	Descending Direction = iota
	Ascending
)

var errCursorFormat = errors.New("invalid cursor format")

// NormalizeLimit clamps limit into (0, MaxLimit], using DefaultLimit for zero.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer fetches one extra row so Trim can tell if a next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func EncodeCursor(c Cursor) string {
	raw := c.At.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes an opaque cursor. Blank input means the first page.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	at, id, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, errCursorFormat
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("cursor timestamp: %w", err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("cursor id: %w", err)
	}
	return &Cursor{At: ts, ID: uid}, nil
}

// Keyset is a gorm scope that orders by (column, id) in dir and, when after
// is set, starts strictly past that position. column must be a trusted
// identifier.
func Keyset(column string, dir Direction, after *Cursor) func(*gorm.DB) *gorm.DB {
	cmp, order := "<", "DESC"
	if dir == Ascending {
		cmp, order = ">", "ASC"
	}
	return func(db *gorm.DB) *gorm.DB {
		if after != nil {
			db = db.Where(
				fmt.Sprintf("(%[1]s %[2]s ? OR (%[1]s = ? AND id %[2]s ?))", column, cmp),
				after.At, after.At, after.ID,
			)
		}
		return db.Order(column + " " + order).Order("id " + order)
	}
}

// Trim cuts a buffered result set down to limit rows and returns the cursor
// for the following page, or "" when rows is the last page.
func Trim[T any](rows []T, limit int, position func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	return page, EncodeCursor(position(page[len(page)-1]))
}
