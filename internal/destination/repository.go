package destination

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	pkgerrors "relaymirror/pkg/errors"
)

type Repository interface {
	Upsert(ctx context.Context, cfg *DestinationConfig) error
	Get(ctx context.Context, id int64) (*DestinationConfig, error)
	Delete(ctx context.Context, id int64) error
	ListAll(ctx context.Context) ([]DestinationConfig, error)
}

// One row per destination; the full config lives in the document column so
// the schema never trails the config struct. The id and updated_at columns
// exist for keyed access and operator queries.
const schema = `
CREATE TABLE IF NOT EXISTS destinations (
	id         BIGINT PRIMARY KEY,
	document   TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

type SQLRepository struct {
	db *sqlx.DB
}

func NewRepository(ctx context.Context, db *sqlx.DB) (Repository, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create destinations table: %w", err)
	}
	return &SQLRepository{db: db}, nil
}

type destinationRow struct {
	ID        int64     `db:"id"`
	Document  []byte    `db:"document"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *SQLRepository) Upsert(ctx context.Context, cfg *DestinationConfig) error {
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal destination %d: %w", cfg.ID, err)
	}

	query := r.db.Rebind(`
		INSERT INTO destinations (id, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`)
	if _, err := r.db.ExecContext(ctx, query, cfg.ID, doc, cfg.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert destination %d: %w", cfg.ID, err)
	}

	return nil
}

func (r *SQLRepository) Get(ctx context.Context, id int64) (*DestinationConfig, error) {
	var row destinationRow
	query := r.db.Rebind(`SELECT id, document, updated_at FROM destinations WHERE id = ?`)

	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("destination_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get destination %d: %w", id, err)
	}

	return decodeDocument(row.Document)
}

func (r *SQLRepository) Delete(ctx context.Context, id int64) error {
	query := r.db.Rebind(`DELETE FROM destinations WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete destination %d: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithDetail("destination_id", id)
	}

	return nil
}

func (r *SQLRepository) ListAll(ctx context.Context) ([]DestinationConfig, error) {
	var rows []destinationRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, document, updated_at FROM destinations ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list destinations: %w", err)
	}

	configs := make([]DestinationConfig, 0, len(rows))
	for _, row := range rows {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		cfg, err := decodeDocument(row.Document)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}

	return configs, nil
}

func decodeDocument(doc []byte) (*DestinationConfig, error) {
	var cfg DestinationConfig
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode destination document: %w", err)
	}
	return &cfg, nil
}
