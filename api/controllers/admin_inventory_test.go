package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
)

type fakeCounter struct {
	count int64
	err   error
}

func (f fakeCounter) AvailableCount(ctx context.Context) (int64, error) {
	return f.count, f.err
}

func TestAdminInventoryStats(t *testing.T) {
	t.Parallel()

	handler := AdminInventoryStats(fakeCounter{count: 12}, testLogger())
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/inventory/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"available":12`) {
		t.Fatalf("expected available count in payload, got %s", rec.Body.String())
	}
}

func TestAdminInventoryStatsRepoError(t *testing.T) {
	t.Parallel()

	handler := AdminInventoryStats(fakeCounter{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}, testLogger())
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/inventory/stats", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
