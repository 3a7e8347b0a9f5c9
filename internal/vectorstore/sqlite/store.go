// Package sqlite is a persistent single-file vector store built on the
// pure-Go SQLite driver. Vectors are kept as little-endian blobs and scored
// by brute force.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"hybridrag/internal/domain"
	"hybridrag/internal/vectorstore/fusion"
	"hybridrag/internal/vectorstore/sqlite/migrations"
)

var _ domain.VectorStore = (*Store)(nil)

// maxParams bounds the placeholders bound in one IN clause.
const maxParams = 500

// Store is a SQLite-backed hybrid vector store. Transactions begin
// IMMEDIATE and writers are serialised, so concurrent ingestion into
// different collections never fails a read-to-write lock upgrade.
type Store struct {
	db   *sql.DB
	path string
	// writeMu serialises writes issued through this Store.
	writeMu sync.Mutex
}

// NewStore opens (or creates) the database at path.
// If path is empty, defaults to ~/.hybridrag/vectors.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".hybridrag", "vectors.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := s.denseSize(ctx, s.db, name)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) CreateCollection(ctx context.Context, name string, spec domain.CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	var quant sql.NullString
	if spec.Quantization != nil {
		data, err := json.Marshal(spec.Quantization)
		if err != nil {
			return fmt.Errorf("marshalling quantization: %w", err)
		}
		quant = sql.NullString{String: string(data), Valid: true}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO collections (name, dense_size, distance, quantization) VALUES (?, ?, ?, ?) ON CONFLICT(name) DO NOTHING",
		name, spec.DenseSize, spec.Distance, quant)
	if err != nil {
		return fmt.Errorf("creating collection %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: collection %q already exists", domain.ErrInvalidInput, name)
	}
	return nil
}

func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM points WHERE collection = ?", name); err != nil {
		return fmt.Errorf("deleting points of %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting collection %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(name)
	}
	return tx.Commit()
}

func (s *Store) Count(ctx context.Context, name string) (int, error) {
	if _, err := s.denseSize(ctx, s.db, name); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points WHERE collection = ?", name).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return n, nil
}

func (s *Store) CountContent(ctx context.Context, name string, contentIDs []string) (int, error) {
	if _, err := s.denseSize(ctx, s.db, name); err != nil {
		return 0, err
	}
	total := 0
	for start := 0; start < len(contentIDs); start += maxParams {
		batch := contentIDs[start:min(start+maxParams, len(contentIDs))]
		args := make([]any, 0, len(batch)+1)
		args = append(args, name)
		for _, id := range batch {
			args = append(args, id)
		}
		query := "SELECT COUNT(*) FROM points WHERE collection = ? AND content_id IN (" +
			strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",") + ")"
		var n int
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
			return 0, fmt.Errorf("counting content: %w", err)
		}
		total += n
	}
	return total, nil
}

// Upsert writes all points in one transaction. A point whose id is already
// present replaces the stored one.
func (s *Store) Upsert(ctx context.Context, name string, points []domain.Point) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	size, err := s.denseSize(ctx, tx, name)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Dense) != size {
			return fmt.Errorf("%w: point %d has %d dense dimensions, collection expects %d", domain.ErrInvalidInput, p.ID, len(p.Dense), size)
		}
		if len(p.Sparse.Indices) != len(p.Sparse.Values) || !slices.IsSorted(p.Sparse.Indices) {
			return fmt.Errorf("%w: point %d has a malformed sparse vector", domain.ErrInvalidInput, p.ID)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (collection, id, dense, sparse_indices, sparse_values, document, metadata, content_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			dense = excluded.dense,
			sparse_indices = excluded.sparse_indices,
			sparse_values = excluded.sparse_values,
			document = excluded.document,
			metadata = excluded.metadata,
			content_id = excluded.content_id
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, name, int64(p.ID), serializeFloats(p.Dense),
			serializeUint32s(p.Sparse.Indices), serializeFloats(p.Sparse.Values),
			p.Document, string(meta), p.ContentID); err != nil {
			return fmt.Errorf("inserting point %d: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing points: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, name string, q domain.HybridQuery) ([]domain.SearchResult, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidInput, q.Limit)
	}
	if _, err := s.denseSize(ctx, s.db, name); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, dense, sparse_indices, sparse_values, document, metadata FROM points WHERE collection = ?", name)
	if err != nil {
		return nil, fmt.Errorf("loading points: %w", err)
	}
	defer rows.Close()

	var points []domain.Point
	df := make(map[uint32]int)
	for rows.Next() {
		var (
			id                    int64
			dense, indices, value []byte
			meta                  string
			p                     domain.Point
		)
		if err := rows.Scan(&id, &dense, &indices, &value, &p.Document, &meta); err != nil {
			return nil, fmt.Errorf("scanning point: %w", err)
		}
		p.ID = uint64(id)
		p.Dense = deserializeFloats(dense)
		p.Sparse = domain.SparseVector{Indices: deserializeUint32s(indices), Values: deserializeFloats(value)}
		if err := json.Unmarshal([]byte(meta), &p.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata of point %d: %w", id, err)
		}
		for _, t := range p.Sparse.Indices {
			df[t]++
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating points: %w", err)
	}

	byID := make(map[uint64]int, len(points))
	for i, p := range points {
		byID[p.ID] = i
	}
	ranked := fusion.Hybrid(points, df, q)
	results := make([]domain.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		p := points[byID[r.ID]]
		results = append(results, domain.SearchResult{ID: p.ID, Document: p.Document, Metadata: p.Metadata, Score: r.Score})
	}
	return results, nil
}

func (s *Store) Get(ctx context.Context, name string, id uint64) (domain.SearchResult, error) {
	if _, err := s.denseSize(ctx, s.db, name); err != nil {
		return domain.SearchResult{}, err
	}
	var (
		res  = domain.SearchResult{ID: id}
		meta string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT document, metadata FROM points WHERE collection = ? AND id = ?", name, int64(id)).
		Scan(&res.Document, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SearchResult{}, fmt.Errorf("%w: point %d in collection %q", domain.ErrNotFound, id, name)
	}
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("getting point %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(meta), &res.Metadata); err != nil {
		return domain.SearchResult{}, fmt.Errorf("decoding metadata of point %d: %w", id, err)
	}
	return res, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) denseSize(ctx context.Context, q queryRower, name string) (int, error) {
	var size int
	err := q.QueryRowContext(ctx, "SELECT dense_size FROM collections WHERE name = ?", name).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound(name)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up collection %q: %w", name, err)
	}
	return size, nil
}

func notFound(name string) error {
	return fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
}

// serializeFloats converts a float32 slice to bytes.
func serializeFloats(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloats converts bytes to a float32 slice.
func deserializeFloats(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func serializeUint32s(v []uint32) []byte {
	buf := make([]byte, len(v)*4)
	for i, u := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], u)
	}
	return buf
}

func deserializeUint32s(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}
