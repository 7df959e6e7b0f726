package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDumpReadsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "idx_ledger_entries_idempotency_key",
		TableName:      "ledger_entries",
		Detail:         "Key (idempotency_key)=(abc) already exists.",
	}
	err := Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "append ledger entry")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.SQLState != "23505" || d.Constraint != "idx_ledger_entries_idempotency_key" || d.Table != "ledger_entries" {
		t.Fatalf("unexpected store fields %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected three links in chain, got %v", d.Chain)
	}
}

func TestDumpFieldsOmitsEmptyValues(t *testing.T) {
	fields := Dump(New(CodeNotFound, "wallet not found")).Fields()
	if fields["error_code"] != CodeNotFound {
		t.Fatalf("expected code field, got %v", fields)
	}
	for _, key := range []string{"sql_state", "sql_constraint", "error_chain"} {
		if _, ok := fields[key]; ok {
			t.Fatalf("did not expect %s in %v", key, fields)
		}
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.Message != "" || d.Chain != nil {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
