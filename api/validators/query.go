package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/pagination"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseUUIDParam reads a chi URL parameter as a uuid.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

// ParsePagination reads limit and cursor.
func ParsePagination(r *http.Request) (pagination.Params, error) {
	limit, err := ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	if _, err := pagination.ParseCursor(cursor); err != nil {
		return pagination.Params{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").WithDetails(map[string]any{"field": "cursor"})
	}
	return pagination.Params{Limit: limit, Cursor: cursor}, nil
}

// ParseWindow reads the optional half-open [from, to) window. Values are
// RFC 3339 timestamps or YYYY-MM-DD dates at UTC midnight.
func ParseWindow(r *http.Request) (ledger.Window, error) {
	var window ledger.Window
	for _, field := range []struct {
		key  string
		dest **time.Time
	}{{"from", &window.Start}, {"to", &window.End}} {
		raw := strings.TrimSpace(r.URL.Query().Get(field.key))
		if raw == "" {
			continue
		}
		at, err := parseInstant(raw)
		if err != nil {
			return ledger.Window{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+field.key).WithDetails(map[string]any{"field": field.key})
		}
		*field.dest = &at
	}
	if err := window.Validate(); err != nil {
		return ledger.Window{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid window")
	}
	return window, nil
}

func parseInstant(raw string) (time.Time, error) {
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return at.UTC(), nil
	}
	return time.ParseInLocation(time.DateOnly, raw, time.UTC)
}
