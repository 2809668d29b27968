// Package postgres persists product label rows in a relational database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Lllllllleong/stickerflow/internal/models"
	_ "github.com/lib/pq"
)

// DB is the subset of *sql.DB the label store needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS product_labels (
	id              SERIAL PRIMARY KEY,
	run_id          TEXT NOT NULL,
	image_name      TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	file_key        TEXT NOT NULL,
	brand           TEXT,
	item            TEXT,
	dimensions      TEXT,
	gtin            TEXT,
	ref             TEXT,
	lot             TEXT,
	quantity        INTEGER NOT NULL DEFAULT 1,
	procedure_date  TIMESTAMPTZ,
	hospital        TEXT,
	doctor          TEXT,
	procedure_name  TEXT,
	billing_no      TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS product_labels_user_image_idx ON product_labels (user_id, image_name);
`

const insertLabel = `
	INSERT INTO product_labels (
		run_id, image_name, user_id, file_key, brand, item, dimensions, gtin, ref, lot, quantity,
		procedure_date, hospital, doctor, procedure_name, billing_no, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set for the postgres backend")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the product_labels table when it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// LabelStore writes one row per aggregated sticker. Each insert is its own
// statement.
type LabelStore struct {
	db DB
}

func NewLabelStore(db DB) *LabelStore {
	return &LabelStore{db: db}
}

// InsertLabel appends a single row.
func (s *LabelStore) InsertLabel(ctx context.Context, row models.LabelRow) error {
	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, insertLabel,
		row.RunID, row.DocumentName, row.UserID, row.StorageLocator,
		row.Brand, row.Product, row.Dimensions, row.GTIN, row.Ref, row.Lot, row.Quantity,
		row.ProcedureDate, nullable(row.Hospital), nullable(row.Doctor), nullable(row.ProcedureName), nullable(row.BillingNo),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert label row: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
