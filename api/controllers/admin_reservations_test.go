package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/philiathrifts/thriftbot/internal/orders"
	"github.com/philiathrifts/thriftbot/pkg/db/models"
	"github.com/philiathrifts/thriftbot/pkg/enums"
	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
)

type fakePlacer struct {
	result *orders.PlaceResult
	err    error
	userID string
	sku    string
}

func (f *fakePlacer) Place(ctx context.Context, userID, sku string, eventID *string) (*orders.PlaceResult, error) {
	f.userID = userID
	f.sku = sku
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestAdminPlaceReservationCreated(t *testing.T) {
	t.Parallel()

	placer := &fakePlacer{result: &orders.PlaceResult{
		Reserved: true,
		Order:    &models.Order{ID: uuid.New(), Status: enums.OrderStatusPending},
	}}
	handler := AdminPlaceReservation(placer, testLogger())

	body := `{"user_id": "user-7", "sku": "SKU-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/reservations", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if placer.userID != "user-7" || placer.sku != "SKU-1" {
		t.Fatalf("unexpected placement args %q / %q", placer.userID, placer.sku)
	}
	if !strings.Contains(rec.Body.String(), "PENDING") {
		t.Fatalf("expected order status in response, got %s", rec.Body.String())
	}
}

func TestAdminPlaceReservationConflictWhenClaimed(t *testing.T) {
	t.Parallel()

	placer := &fakePlacer{result: &orders.PlaceResult{Reserved: false}}
	handler := AdminPlaceReservation(placer, testLogger())

	body := `{"user_id": "user-7", "sku": "SKU-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/reservations", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestAdminPlaceReservationValidation(t *testing.T) {
	t.Parallel()

	placer := &fakePlacer{}
	handler := AdminPlaceReservation(placer, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/reservations", strings.NewReader(`{"sku": "SKU-1"}`))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminPlaceReservationServiceError(t *testing.T) {
	t.Parallel()

	placer := &fakePlacer{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	handler := AdminPlaceReservation(placer, testLogger())

	body := `{"user_id": "user-7", "sku": "SKU-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/reservations", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
