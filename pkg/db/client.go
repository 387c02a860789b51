package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

// Client owns the pooled ledger connection.
type Client struct {
	conn        *gorm.DB
	logg        *logger.Logger
	maxAttempts int
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TxRunner is the transaction surface consumed by domain services.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// New opens Postgres, or sqlite when the driver says so for local runs.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}

	dialector := postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
	if cfg.IsSQLite() {
		dialector = sqlite.Open(cfg.DSN)
	}
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 slowQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	switch {
	case cfg.IsSQLite():
		// one writer at a time
		sqlDB.SetMaxOpenConns(1)
	default:
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"driver":     dialector.Name(),
		"tx_retries": cfg.TxRetries,
	}), "database connection established")
	return &Client{conn: conn, logg: logg, maxAttempts: cfg.TxRetries + 1}, nil
}

// FromGorm wraps an existing connection, used by tests and tools that open
// their own handle. Transactions are not replayed.
func FromGorm(conn *gorm.DB) *Client {
	return &Client{conn: conn, logg: logger.Nop(), maxAttempts: 1}
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction. A panic or error rolls it back. When
// Postgres aborts it with a serialization failure or deadlock the whole
// of fn is replayed, so fn must not have side effects outside tx.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	attempts := max(c.maxAttempts, 1)
	for attempt := 1; ; attempt++ {
		err := c.conn.WithContext(ctx).Transaction(fn)
		if err == nil || attempt >= attempts || !IsTxConflict(err) || ctx.Err() != nil {
			return err
		}
		if c.logg != nil {
			c.logg.Debug(c.logg.WithFields(ctx, map[string]any{
				"attempt": attempt,
				"error":   err.Error(),
			}), "transaction conflict; replaying")
		}
	}
}

type slowQueryWriter struct {
	logg *logger.Logger
}

func (w slowQueryWriter) Printf(format string, args ...any) {
	w.logg.Warn(context.Background(), fmt.Sprintf(format, args...))
}

// slowQueryLogger reports queries slower than threshold and nothing else.
// Failed statements surface through the callers' own error logging, and
// unique violations are an expected outcome of concurrent ledger writes.
func slowQueryLogger(logg *logger.Logger, threshold time.Duration) gormlogger.Interface {
	level := gormlogger.Warn
	if threshold <= 0 {
		level = gormlogger.Silent
	}
	return gormlogger.New(slowQueryWriter{logg: logg}, gormlogger.Config{
		SlowThreshold:             threshold,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
