package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/salescope/salescope/internal/model"
	"github.com/salescope/salescope/internal/reportstore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleReport(id, userID string) *model.AnalysisReport {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.AnalysisReport{
		ReportID: id,
		UserID:   userID,
		Status:   model.StatusProcessing,
		QueryParams: &model.AnalysisQuery{
			TimeRange:  model.TimeRange{Start: "2025-01-01", End: "2025-01-31"},
			Dimensions: []string{model.DimensionChannel},
			Metrics:    []string{model.MetricSales},
		},
		CreatedAt: now,
		TTL:       now.Add(72 * time.Hour).Unix(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := sampleReport("r-1", "7")
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, "r-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ReportID != "r-1" || got.UserID != "7" || got.Status != model.StatusProcessing {
		t.Fatalf("unexpected report: %+v", got)
	}
	if got.QueryParams == nil || got.QueryParams.TimeRange.Start != "2025-01-01" {
		t.Fatalf("query params lost: %+v", got.QueryParams)
	}
}

func TestPutReplacesExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	report := sampleReport("r-2", "7")
	if err := store.Put(ctx, report); err != nil {
		t.Fatalf("Put: %v", err)
	}
	done := time.Now().UTC()
	report.Status = model.StatusCompleted
	report.Results = &model.AnalysisResults{MarkdownContent: "## Findings", RawResponse: "<output>## Findings</output>"}
	report.CompletedAt = &done
	if err := store.Put(ctx, report); err != nil {
		t.Fatalf("Put update: %v", err)
	}
	got, err := store.Get(ctx, "r-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusCompleted || got.Results == nil || got.Results.MarkdownContent != "## Findings" {
		t.Fatalf("update lost: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, reportstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpiredReportInvisible(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	report := sampleReport("r-3", "7")
	report.TTL = time.Now().Add(-time.Hour).Unix()
	if err := store.Put(ctx, report); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Get(ctx, "r-3"); !errors.Is(err, reportstore.ErrNotFound) {
		t.Fatalf("expected expired report to be gone, got %v", err)
	}
	list, err := store.ListByUser(ctx, "7")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expired report still listed: %+v", list)
	}
}

func TestListByUserNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := sampleReport("r-old", "7")
	older.CreatedAt = time.Now().Add(-2 * time.Hour).UTC()
	newer := sampleReport("r-new", "7")
	other := sampleReport("r-other", "8")
	for _, r := range []*model.AnalysisReport{older, newer, other} {
		if err := store.Put(ctx, r); err != nil {
			t.Fatalf("Put %s: %v", r.ReportID, err)
		}
	}
	list, err := store.ListByUser(ctx, "7")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 2 || list[0].ReportID != "r-new" || list[1].ReportID != "r-old" {
		t.Fatalf("unexpected listing: %+v", list)
	}
}

func TestDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, sampleReport("r-4", "7")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, "r-4"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "r-4"); !errors.Is(err, reportstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Idempotent.
	if err := store.Delete(ctx, "r-4"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
}
