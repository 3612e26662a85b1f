package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

func TestDependencyHealthRepositoryCollectSuccess(t *testing.T) {
	checks := []DependencyCheck{
		{Name: "ledger", Check: func(context.Context) error { return nil }},
		{Name: "orders", Check: func(context.Context) error { return nil }},
	}

	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository(checks, WithDependencyClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	for name, check := range report.Checks {
		if check.Status != domain.HealthStatusOK {
			t.Fatalf("expected check %s to be ok, got %s", name, check.Status)
		}
		if !check.CheckedAt.Equal(now) {
			t.Fatalf("expected check %s checkedAt %s, got %s", name, now, check.CheckedAt)
		}
	}
}

func TestDependencyHealthRepositoryCollectDegradedAndTimeout(t *testing.T) {
	checks := []DependencyCheck{
		{Name: "kafka", Check: func(context.Context) error { return errors.New("broker unreachable") }},
		{
			Name:    "postgres",
			Timeout: 5 * time.Millisecond,
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	}

	repo, err := NewDependencyHealthRepository(checks)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected status error, got %s", report.Status)
	}
	if got := report.Checks["kafka"].Status; got != domain.HealthStatusDegraded {
		t.Fatalf("expected kafka degraded, got %s", got)
	}
	if got := report.Checks["postgres"].Detail; got != "timeout" {
		t.Fatalf("expected postgres timeout detail, got %s", got)
	}
}

func TestNewDependencyHealthRepositoryRejectsUnnamedCheck(t *testing.T) {
	_, err := NewDependencyHealthRepository([]DependencyCheck{{Check: func(context.Context) error { return nil }}})
	if err == nil {
		t.Fatal("expected error for unnamed check")
	}
}
