package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusCreated {
		t.Fatalf("expected status 201 but got %d", got)
	}
	var body Success
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWritePageCarriesCursor(t *testing.T) {
	w := httptest.NewRecorder()
	WritePage(w, []int{1, 2}, "abc")

	var body Page
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.NextCursor != "abc" {
		t.Fatalf("unexpected cursor %q", body.NextCursor)
	}
}

func TestWriteErrorMapsLedgerCodes(t *testing.T) {
	payoutID := uuid.NewString()
	cases := []struct {
		err        error
		status     int
		message    string
		hasDetails bool
	}{
		{pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"field": "amount"}), http.StatusBadRequest, "bad input", true},
		{pkgerrors.New(pkgerrors.CodeConflict, "outstanding payout exists").WithDetails(map[string]any{"payout_id": payoutID}), http.StatusConflict, "outstanding payout exists", true},
		{pkgerrors.New(pkgerrors.CodeNothingOwed, "no unsettled balance"), http.StatusUnprocessableEntity, "no unsettled balance", false},
		{pkgerrors.New(pkgerrors.CodeInvalidState, "payout is paid"), http.StatusBadRequest, "payout is paid", false},
		{pkgerrors.New(pkgerrors.CodeCurrency, "currency required"), http.StatusBadRequest, "currency required", false},
		{pkgerrors.New(pkgerrors.CodeNotFound, "payout not found"), http.StatusNotFound, "payout not found", false},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(context.Background(), logger.Nop(), w, tc.err)

		if w.Code != tc.status {
			t.Fatalf("%v: expected status %d got %d", tc.err, tc.status, w.Code)
		}
		var body Failure
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error.Message != tc.message {
			t.Fatalf("expected message %q got %q", tc.message, body.Error.Message)
		}
		if (body.Error.Details != nil) != tc.hasDetails {
			t.Fatalf("%v: details presence mismatch: %v", tc.err, body.Error.Details)
		}
	}
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: connection refused"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}
	var body Failure
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Message != "internal server error" {
		t.Fatalf("internal error leaked: %q", body.Error.Message)
	}
}

func TestWriteErrorEchoesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-Id", "req-42")
	WriteError(context.Background(), logger.Nop(), w, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("stripe timeout"), "disburse payout"))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body Failure
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.RequestID != "req-42" {
		t.Fatalf("expected request id echoed, got %q", body.Error.RequestID)
	}
	if body.Error.Message != "dependency unavailable" {
		t.Fatalf("server error message leaked: %q", body.Error.Message)
	}
}
