package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

var (
	sqlFileRe     = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	createTableRe = regexp.MustCompile(`(?i)CREATE TABLE IF NOT EXISTS\s+([a-z_][a-z0-9_]*)`)
	uniqueIndexRe = regexp.MustCompile(`(?i)CREATE UNIQUE INDEX IF NOT EXISTS\s+([a-z_][a-z0-9_]*)`)
)

// ValidateDir checks migration filenames and goose headers, then confirms
// the sqlite mirror creates every table and partial unique index the
// Postgres migrations define. The ledger's idempotency and single-payout
// guarantees live in those indexes, so a drifted mirror would let tests
// pass against a weaker schema.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	tables := map[string]string{}
	indexes := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %q: %w", name, err)
		}
		up, _, ok := strings.Cut(string(b), "-- +goose Down")
		if !ok {
			return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
		}
		if !strings.Contains(up, "-- +goose Up") {
			return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
		}
		for _, t := range createTableRe.FindAllStringSubmatch(up, -1) {
			tables[strings.ToLower(t[1])] = name
		}
		for _, ix := range uniqueIndexRe.FindAllStringSubmatch(up, -1) {
			indexes[strings.ToLower(ix[1])] = name
		}
	}
	return checkSQLiteMirror(tables, indexes)
}

func checkSQLiteMirror(tables, indexes map[string]string) error {
	mirror := strings.ToLower(strings.Join(sqliteSchema, "\n"))
	var errs error
	for _, table := range sortedKeys(tables) {
		if !strings.Contains(mirror, "create table if not exists "+table+" ") {
			errs = multierr.Append(errs, fmt.Errorf("sqlite mirror missing table %s (from %s)", table, tables[table]))
		}
	}
	for _, index := range sortedKeys(indexes) {
		if !strings.Contains(mirror, index) {
			errs = multierr.Append(errs, fmt.Errorf("sqlite mirror missing unique index %s (from %s)", index, indexes[index]))
		}
	}
	return errs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
