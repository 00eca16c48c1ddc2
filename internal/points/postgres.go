package points

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists point balances in PostgreSQL.
type PostgresLedger struct {
	pool         *pgxpool.Pool
	initialGrant int
}

func NewPostgresLedger(ctx context.Context, databaseURL string, initialGrant int) (*PostgresLedger, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresLedger{pool: pool, initialGrant: initialGrant}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS point_balances (
			user_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS point_entries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			reason TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_point_entries_user_created ON point_entries (user_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (l *PostgresLedger) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := l.pool.QueryRow(ctx,
		`SELECT balance FROM point_balances WHERE user_id=$1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return l.initialGrant, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

func (l *PostgresLedger) Charge(ctx context.Context, userID string, amount int, reason string) error {
	if amount <= 0 {
		return nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin charge: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int
	err = tx.QueryRow(ctx,
		`SELECT balance FROM point_balances WHERE user_id=$1 FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		balance = l.initialGrant
		if _, err := tx.Exec(ctx,
			`INSERT INTO point_balances (user_id, balance) VALUES ($1, $2)`, userID, balance); err != nil {
			return fmt.Errorf("seed balance: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("lock balance: %w", err)
	}

	if balance < amount {
		return ErrInsufficient
	}

	if _, err := tx.Exec(ctx,
		`UPDATE point_balances SET balance=$2, updated_at=$3 WHERE user_id=$1`,
		userID, balance-amount, time.Now().UTC()); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO point_entries (id, user_id, amount, reason) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), userID, -amount, reason); err != nil {
		return fmt.Errorf("record entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit charge: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}
