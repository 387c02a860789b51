package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// Applied describes one migration a command ran.
type Applied struct {
	Version   int64
	Path      string
	Direction string
	Empty     bool
}

func newProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	// the goose migrations are Postgres DDL; sqlite uses ApplySQLiteSchema
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Run executes up, down, redo or status against db. status prints the
// state of every migration.
func Run(ctx context.Context, db *sql.DB, dir string, command string) error {
	_, err := Apply(ctx, db, dir, command)
	return err
}

// Apply is Run returning what changed, for callers that log it.
func Apply(ctx context.Context, db *sql.DB, dir string, command string) ([]Applied, error) {
	provider, err := newProvider(db, dir)
	if err != nil {
		return nil, err
	}
	defer provider.Close()

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		return collect(results...), wrapGoose(command, err)
	case "down":
		result, err := provider.Down(ctx)
		return collect(result), wrapGoose(command, err)
	case "redo":
		down, err := provider.Down(ctx)
		if err != nil {
			return collect(down), wrapGoose(command, err)
		}
		up, err := provider.UpByOne(ctx)
		return collect(down, up), wrapGoose(command, err)
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return nil, wrapGoose(command, err)
		}
		for _, st := range statuses {
			applied := "pending"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-14d %-9s %s\n", st.Source.Version, st.State, applied)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported goose command %q", command)
	}
}

// MigrateToVersion migrates up or down until the database sits at targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	provider, err := newProvider(db, dir)
	if err != nil {
		return err
	}
	defer provider.Close()

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current == target:
		return nil
	case current < target:
		if _, err := provider.UpTo(ctx, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if _, err := provider.DownTo(ctx, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

func collect(results ...*goose.MigrationResult) []Applied {
	out := make([]Applied, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Applied{
			Version:   r.Source.Version,
			Path:      r.Source.Path,
			Direction: r.Direction,
			Empty:     r.Empty,
		})
	}
	return out
}

func wrapGoose(command string, err error) error {
	if err == nil || errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
