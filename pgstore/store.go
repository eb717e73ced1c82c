package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/logging"
)

// Store implements interfaces.CatalogStore over the cds_medications and
// cds_guidelines tables. Rows come back in import order.
type Store struct {
	pool *pgxpool.Pool
}

var _ interfaces.CatalogStore = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) LoadMedications(ctx context.Context) ([]entities.MedicationRecord, error) {
	return loadDocuments[entities.MedicationRecord](ctx, s.pool,
		`SELECT document FROM cds_medications ORDER BY position, id`)
}

func (s *Store) LoadGuidelines(ctx context.Context) ([]entities.TreatmentGuideline, error) {
	return loadDocuments[entities.TreatmentGuideline](ctx, s.pool,
		`SELECT document FROM cds_guidelines ORDER BY position, id`)
}

// loadDocuments decodes every row. A row that does not decode is skipped and
// logged; the catalog validator handles records that decode but are invalid.
func loadDocuments[T any](ctx context.Context, pool *pgxpool.Pool, query string) ([]T, error) {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query catalog documents: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan catalog documents: %w", err)
	}

	out := make([]T, 0, len(docs))
	for i, doc := range docs {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			logging.Warn("Skipping undecodable catalog document", "row", i, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Import replaces the whole catalog in a single transaction.
func (s *Store) Import(ctx context.Context, ds *entities.CatalogDataset) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM cds_medications`)
	batch.Queue(`DELETE FROM cds_guidelines`)

	for i, m := range ds.Medications {
		doc, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode medication %s: %w", m.ID, err)
		}
		batch.Queue(`INSERT INTO cds_medications (id, position, document) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING`, m.ID, i, doc)
	}
	for i, g := range ds.Guidelines {
		doc, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("encode guideline %s: %w", g.ID, err)
		}
		batch.Queue(`INSERT INTO cds_guidelines (id, position, document) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING`, g.ID, i, doc)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("import catalog: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}

	logging.Info("Catalog imported into postgres",
		"medications", len(ds.Medications),
		"guidelines", len(ds.Guidelines),
	)
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
