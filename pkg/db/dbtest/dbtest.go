// Package dbtest opens isolated in-memory sqlite databases carrying the ledger schema.
package dbtest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/watchpoints/points-engine/pkg/db"
)

// Open returns a fresh database for t. A single connection is used so
// concurrent goroutines in a test serialize the way row locks would.
func Open(t testing.TB) *db.Client {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:points_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.EnsureSQLiteSchema(context.Background(), conn); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return db.NewFromConn(conn)
}
