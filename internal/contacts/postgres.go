package contacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads dial lists from a contacts table, for campaigns
// managed outside flat files.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(ctx context.Context, databaseURL string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initContactSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSource{pool: pool}, nil
}

func initContactSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS contacts (
		id BIGSERIAL PRIMARY KEY,
		number TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		campaign TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`)
	if err != nil {
		return fmt.Errorf("init contact schema: %w", err)
	}
	return nil
}

// List returns contacts in insertion order, optionally limited to a campaign.
func (s *PostgresSource) List(ctx context.Context, campaign string) ([]Contact, error) {
	query := `SELECT number, name, campaign FROM contacts`
	args := []any{}
	if strings.TrimSpace(campaign) != "" {
		query += ` WHERE campaign = $1`
		args = append(args, campaign)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var list []Contact
	for rows.Next() {
		var c Contact
		var campaignName string
		if err := rows.Scan(&c.Number, &c.Name, &campaignName); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if campaignName != "" {
			c.Fields = map[string]string{"campaign": campaignName}
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return list, nil
}

func (s *PostgresSource) Close() {
	s.pool.Close()
}
