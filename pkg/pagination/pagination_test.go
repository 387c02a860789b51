package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	want := Cursor{At: time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC), ID: uuid.New()}
	encoded := EncodeCursor(want)
	for _, r := range encoded {
		if r == '+' || r == '/' || r == '=' {
			t.Fatalf("cursor %q is not url safe", encoded)
		}
	}
	got, err := ParseCursor(encoded)
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if !got.At.Equal(want.At) || got.ID != want.ID {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if c, err := ParseCursor("  "); err != nil || c != nil {
		t.Fatalf("blank cursor should be the first page, got %v %v", c, err)
	}
	for _, raw := range []string{"!!!", "bm8tc2VwYXJhdG9y", EncodeCursor(Cursor{})[:4]} {
		if _, err := ParseCursor(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestTrimReturnsNextCursorOnlyWhenMoreRemain(t *testing.T) {
	base := time.Now().UTC()
	rows := make([]Cursor, 3)
	for i := range rows {
		rows[i] = Cursor{At: base.Add(-time.Duration(i) * time.Minute), ID: uuid.New()}
	}
	key := func(c Cursor) Cursor { return c }

	page, next := Trim(rows, 2, key)
	if len(page) != 2 || next == "" {
		t.Fatalf("expected a full page with cursor, got %d %q", len(page), next)
	}
	decoded, err := ParseCursor(next)
	if err != nil || decoded.ID != rows[1].ID {
		t.Fatalf("next cursor should point at the last served row")
	}

	page, next = Trim(rows[:2], 2, key)
	if len(page) != 2 || next != "" {
		t.Fatalf("last page must not carry a cursor")
	}

	empty, next := Trim[Cursor](nil, 10, key)
	if empty == nil || len(empty) != 0 || next != "" {
		t.Fatalf("nil rows should become an empty page")
	}
}

func TestNormalizeLimitBounds(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, MaxLimit + 50: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
	if LimitWithBuffer(10) != 11 {
		t.Fatalf("LimitWithBuffer should fetch one extra row")
	}
}
