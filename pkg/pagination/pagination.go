package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any cursor query can request.
	MaxLimit = 100
)

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the keyset position of the last row served: its sort timestamp
// (created_at or occurred_at, depending on the listing) and its id.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

// Direction orders a keyset listing.
type Direction int

const (
	// NewestFirst pages from the most recent row backwards.
	NewestFirst Direction = iota
	// OldestFirst pages forward, used by FIFO review queues.
	OldestFirst
)

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer returns the normalization result plus one to detect the next page.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor builds an opaque, URL-safe cursor string.
func EncodeCursor(cursor Cursor) string {
	payload := cursor.At.UTC().Format(time.RFC3339Nano) + "|" + cursor.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes a cursor string. An empty value means the first page
// and yields a nil cursor.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	at, id, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, fmt.Errorf("invalid cursor format")
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &Cursor{At: ts, ID: parsed}, nil
}

// Keyset narrows query to the page after params.Cursor, ordered by column
// then id, and fetches one extra row so Trim can tell whether more remain.
func Keyset(query *gorm.DB, column string, dir Direction, params Params) (*gorm.DB, error) {
	cursor, err := ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	cmp, order := "<", "DESC"
	if dir == OldestFirst {
		cmp, order = ">", "ASC"
	}
	if cursor != nil {
		query = query.Where(
			fmt.Sprintf("(%s %s ? OR (%s = ? AND id %s ?))", column, cmp, column, cmp),
			cursor.At, cursor.At, cursor.ID,
		)
	}
	return query.
		Order(column + " " + order).
		Order("id " + order).
		Limit(LimitWithBuffer(params.Limit)), nil
}

// Trim cuts a Keyset result down to the requested page and returns the
// cursor for the next one, empty on the last page. rows is never nil.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if rows == nil {
		return []T{}, ""
	}
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	return page, EncodeCursor(key(page[limit-1]))
}
