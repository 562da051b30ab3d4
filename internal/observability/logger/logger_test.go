package logger

import (
	"context"
	"testing"

	obscontext "github.com/Johanhagos/mijn-api/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithSession(ctx, "cs_123")
	WithContext(ctx, base).Info("reconciled")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" {
		t.Fatalf("expected request_id req-1, got %v", fields["request_id"])
	}
	if fields["session_id"] != "cs_123" {
		t.Fatalf("expected session_id cs_123, got %v", fields["session_id"])
	}
	if _, ok := fields["provider"]; ok {
		t.Fatalf("expected empty provider to be omitted")
	}
}

func TestDescribeSQL(t *testing.T) {
	cases := map[string][2]string{
		"UPDATE checkout_sessions SET status = ? WHERE id = ? AND version = ?": {"UPDATE", "checkout_sessions"},
		"WITH due AS (SELECT 1) SELECT * FROM due":                             {"SELECT", "due"},
		"  insert into invoices values (?)":                                    {"INSERT", "invoices"},
		`SELECT * FROM "provisioning_jobs" WHERE status = 'pending'`:           {"SELECT", "provisioning_jobs"},
		"": {"UNKNOWN", ""},
	}
	for sql, want := range cases {
		op, table := describeSQL(sql)
		if op != want[0] || table != want[1] {
			t.Fatalf("describeSQL(%q) = %q, %q, want %q, %q", sql, op, table, want[0], want[1])
		}
	}
}
