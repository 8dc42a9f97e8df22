package index

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

func init() {
	Register("pgvector", createPgvectorIndex)
}

// pgvectorIndex keeps vectors in a Postgres table keyed by insertion
// position, searched with the pgvector inner-product operator. The position
// column carries the alignment invariant with the chunk file.
type pgvectorIndex struct {
	db *sqlx.DB
}

func createPgvectorIndex(cfg Config) (Index, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector engine requires a dsn")
	}
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect pgvector: %w", err)
	}
	if _, err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pgvector extension: %w", err)
	}
	return &pgvectorIndex{db: db}, nil
}

func (p *pgvectorIndex) Reset(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DROP TABLE IF EXISTS chunk_vectors`)
	return err
}

func (p *pgvectorIndex) Add(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	createStmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS chunk_vectors (pos integer PRIMARY KEY, embedding vector(%d))`,
		len(vectors[0]),
	)
	if _, err := p.db.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("create vector table: %w", err)
	}
	var next int
	if err := p.db.GetContext(ctx, &next, `SELECT COUNT(*) FROM chunk_vectors`); err != nil {
		return err
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i, v := range vectors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_vectors (pos, embedding) VALUES ($1, $2)`,
			next+i, pgvector.NewVector(v),
		); err != nil {
			return fmt.Errorf("insert vector %d: %w", next+i, err)
		}
	}
	return tx.Commit()
}

func (p *pgvectorIndex) Flush(ctx context.Context) error {
	return nil
}

func (p *pgvectorIndex) Search(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	if topK < 1 {
		return nil, fmt.Errorf("topK must be >= 1, got %d", topK)
	}
	// <#> is negative inner product; flip the sign back into a similarity.
	rows, err := p.db.QueryxContext(ctx,
		`SELECT pos, -(embedding <#> $1) AS score FROM chunk_vectors ORDER BY embedding <#> $1 LIMIT $2`,
		pgvector.NewVector(query), topK,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Pos, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (p *pgvectorIndex) Count(ctx context.Context) (int, error) {
	var count int
	if err := p.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chunk_vectors`); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *pgvectorIndex) Close() error {
	return p.db.Close()
}
