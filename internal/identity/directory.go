package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads caller profiles from the storefront's users table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(ctx context.Context, dsn string) (*PostgresDirectory, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &PostgresDirectory{pool: pool}, nil
}

func (d *PostgresDirectory) Lookup(ctx context.Context, callerID string) (string, string, error) {
	var email, name string
	err := d.pool.QueryRow(ctx, `
		SELECT email, name FROM users WHERE id = $1
	`, callerID).Scan(&email, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	return email, name, nil
}

func (d *PostgresDirectory) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}
