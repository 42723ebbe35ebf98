// Package pgvector is a vector index stored in PostgreSQL with the pgvector
// extension, searched through an HNSW cosine index.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"teabot/internal/domain"
	"teabot/internal/vectorstore"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "teabot_items"

const maxIndexedDimension = 2000

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Config configures the PostgreSQL connection.
type Config struct {
	DSN   string
	Table string
}

// Index stores one row per catalog item. All methods are safe for
// concurrent use.
type Index struct {
	pool  *pgxpool.Pool
	table string
}

var _ vectorstore.Index = (*Index)(nil)

// NewIndex installs the vector extension if needed, then opens a pool that
// registers the pgvector types on every connection.
func NewIndex(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.DSN == "" {
		return nil, &domain.ConfigurationError{Setting: "vector_store.pgvector.dsn", Err: errors.New("missing DSN")}
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if !tableName.MatchString(cfg.Table) {
		return nil, &domain.ConfigurationError{Setting: "vector_store.pgvector.table", Err: fmt.Errorf("invalid table name %q", cfg.Table)}
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, &domain.ConfigurationError{Setting: "vector_store.pgvector.dsn", Err: err}
	}
	if err := ensureExtension(ctx, cfg.DSN); err != nil {
		return nil, err
	}
	pcfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, domain.NewProviderError("pgvector", "connect", 0, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, domain.NewProviderError("pgvector", "connect", 0, err)
	}
	return &Index{pool: pool, table: pgx.Identifier{cfg.Table}.Sanitize()}, nil
}

// Init recreates the table for vectors of the given dimension.
func (s *Index) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table),
		fmt.Sprintf(`CREATE TABLE %s (
			id        TEXT PRIMARY KEY,
			position  INT NOT NULL,
			metadata  JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL
		)`, s.table, dimension),
	}
	// hnsw cannot index vectors wider than this; larger ones are scanned
	if dimension <= maxIndexedDimension {
		stmts = append(stmts, fmt.Sprintf(`CREATE INDEX ON %s USING hnsw (embedding vector_cosine_ops)`, s.table))
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return domain.NewProviderError("pgvector", "init", 0, err)
		}
	}
	return nil
}

func ensureExtension(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return domain.NewProviderError("pgvector", "connect", 0, err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return domain.NewProviderError("pgvector", "connect", 0, fmt.Errorf("create extension: %w", err))
	}
	return nil
}

// Upsert writes all records in one batch.
func (s *Index) Upsert(ctx context.Context, records ...vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (id, position, metadata, embedding)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (id) DO UPDATE SET
		    position  = EXCLUDED.position,
		    metadata  = EXCLUDED.metadata,
		    embedding = EXCLUDED.embedding`, s.table)

	batch := &pgx.Batch{}
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %q: %w", r.ID, err)
		}
		batch.Queue(q, r.ID, r.Position, string(meta), pgvec.NewVector(toFloat32(r.Vector)))
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			return domain.NewProviderError("pgvector", "upsert", 0, fmt.Errorf("record %q: %w", r.ID, err))
		}
	}
	return nil
}

// querySQL orders by the distance expression, which the hnsw index serves,
// then by catalog position.
func querySQL(table string) string {
	return fmt.Sprintf(`
		SELECT id, metadata, embedding <=> $1 AS distance
		FROM   %s
		ORDER  BY embedding <=> $1, position
		LIMIT  $2`, table)
}

// Query returns the topK rows ordered by ascending cosine distance, equal
// distances in catalog order.
func (s *Index) Query(ctx context.Context, vector domain.Vector, topK int) ([]vectorstore.Match, error) {
	if topK <= 0 {
		return []vectorstore.Match{}, nil
	}
	q := querySQL(s.table)

	rows, err := s.pool.Query(ctx, q, pgvec.NewVector(toFloat32(vector)), topK)
	if err != nil {
		return nil, domain.NewProviderError("pgvector", "query", 0, err)
	}
	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectorstore.Match, error) {
		var (
			m    vectorstore.Match
			meta []byte
		)
		if err := row.Scan(&m.ID, &meta, &m.Distance); err != nil {
			return vectorstore.Match{}, err
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return vectorstore.Match{}, fmt.Errorf("decode metadata: %w", err)
		}
		return m, nil
	})
	if err != nil {
		return nil, domain.NewProviderError("pgvector", "query", 0, err)
	}
	if matches == nil {
		matches = []vectorstore.Match{}
	}
	return matches, nil
}

// Close closes the connection pool.
func (s *Index) Close() error {
	s.pool.Close()
	return nil
}

func toFloat32(v domain.Vector) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
