package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/db"
	"github.com/kailas-cloud/askdex/internal/logger"
)

const (
	defaultMaxConns         = 10
	defaultRowLimit         = 100
	defaultStatementTimeout = 10 * time.Second
	defaultPingTimeout      = 3 * time.Second
)

// ErrNotReadOnly rejects statements that are not a single SELECT or WITH query.
var ErrNotReadOnly = errors.New("postgres: only single read-only queries are allowed")

// Config holds connection and execution limits for the structured store.
type Config struct {
	DSN              string
	MaxConns         int
	RowLimit         int
	StatementTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = defaultMaxConns
	}
	if c.RowLimit <= 0 {
		c.RowLimit = defaultRowLimit
	}
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = defaultStatementTimeout
	}
	return c
}

// pool is the subset of pgxpool.Pool the store needs.
type pool interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store runs read-only SQL against PostgreSQL. pgx types stay inside this package.
type Store struct {
	pool pool
	cfg  Config
}

// NewStore creates a pgx pool and verifies connectivity.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	cfg = cfg.withDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	poolCfg.MaxConns = int32(min(cfg.MaxConns, math.MaxInt32)) //nolint:gosec // clamped above

	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	logger.FromContext(ctx).Info("Postgres store initialized",
		zap.Int("max_conns", cfg.MaxConns),
		zap.Int("row_limit", cfg.RowLimit),
		zap.Duration("statement_timeout", cfg.StatementTimeout),
	)
	return &Store{pool: p, cfg: cfg}, nil
}

// NewStoreForTest creates a Store over the given pool (test-only).
func NewStoreForTest(p pool, cfg Config) *Store {
	return &Store{pool: p, cfg: cfg.withDefaults()}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Close shuts down the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Execute runs statement inside a read-only transaction with a statement
// timeout and returns at most RowLimit rows as column->value maps.
func (s *Store) Execute(ctx context.Context, statement string) (rows []map[string]any, err error) {
	stmt, err := normalizeStatement(statement)
	if err != nil {
		return nil, err
	}
	capped, args, err := s.capRows(stmt)
	if err != nil {
		return nil, fmt.Errorf("postgres: build query: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer func() {
		// Nothing is ever written, so the transaction is always rolled back.
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) && err == nil {
			err = &db.Error{Op: db.OpQuery, Err: fmt.Errorf("rollback: %w", rbErr)}
		}
	}()

	timeoutMS := s.cfg.StatementTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeoutMS)); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: fmt.Errorf("set statement_timeout: %w", err)}
	}

	logger.FromContext(ctx).Debug("Executing structured query", zap.String("sql", capped))

	result, err := tx.Query(ctx, capped, args...)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer result.Close()

	fields := result.FieldDescriptions()
	rows = make([]map[string]any, 0)
	for result.Next() {
		values, err := result.Values()
		if err != nil {
			return nil, &db.Error{Op: db.OpQuery, Err: fmt.Errorf("scan row: %w", err)}
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			if i < len(values) {
				row[f.Name] = normalizeValue(values[i])
			}
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return rows, nil
}

// capRows wraps the statement in a subquery bounded by RowLimit.
func (s *Store) capRows(stmt string) (string, []any, error) {
	return sq.Select("*").
		From("(" + stmt + ") AS q").
		Limit(uint64(s.cfg.RowLimit)). //nolint:gosec // RowLimit is positive after defaults
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// normalizeStatement trims the statement, drops a trailing semicolon and
// rejects anything that is not a single SELECT/WITH query.
func normalizeStatement(statement string) (string, error) {
	stmt := strings.TrimSpace(statement)
	stmt = strings.TrimSpace(strings.TrimRight(stmt, ";"))
	if stmt == "" {
		return "", fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	if strings.Contains(stmt, ";") {
		return "", fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}
	head := strings.ToUpper(strings.Fields(stmt)[0])
	if head != "SELECT" && head != "WITH" {
		return "", fmt.Errorf("%w: %s", ErrNotReadOnly, head)
	}
	return stmt, nil
}
