package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"gorm.io/gorm"
)

func TestClassifyWorkerReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: WorkerReasonDeadlineExceeded},
		{name: "wrapped deadline", err: fmt.Errorf("provision: %w", context.DeadlineExceeded), want: WorkerReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: WorkerReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: WorkerReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: WorkerReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: WorkerReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyWorkerReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newWorkerMetrics(registry, Config{ServiceName: "mijn-api", Environment: "test"})

	metrics.AddBatchProcessed(WorkerJobProvisioning, "jobs", 3)
	metrics.AddBatchProcessed(WorkerJobProvisioning, "jobs", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues(WorkerJobProvisioning, "jobs"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestIncManualIsExported(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newWorkerMetrics(registry, Config{})
	metrics.IncManual()
	metrics.IncManual()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found *dto.MetricFamily
	for _, family := range families {
		if family.GetName() == "provisioning_jobs_manual_total" {
			found = family
		}
	}
	if found == nil {
		t.Fatalf("expected provisioning_jobs_manual_total to be registered")
	}
	if value := found.GetMetric()[0].GetCounter().GetValue(); value != 2 {
		t.Fatalf("expected 2 manual jobs, got %v", value)
	}
	if label := found.GetMetric()[0].GetLabel(); len(label) != 2 {
		t.Fatalf("expected service and env labels, got %d", len(label))
	}
}

func TestHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newHTTPMetrics(registry, Config{})
	second := newHTTPMetrics(registry, Config{})
	if first.requests != second.requests {
		t.Fatalf("expected collector reuse on second registration")
	}
}
