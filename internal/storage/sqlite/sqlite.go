// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/splitledger/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	hub *storage.Hub
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.hub = storage.NewHub(s.query)
	return s, nil
}

// Close ends every live stream and closes the database connection.
func (s *SQLiteStore) Close() error {
	s.hub.Close()
	return s.db.Close()
}

// Subscribe opens a live subscription to a collection.
func (s *SQLiteStore) Subscribe(ctx context.Context, collection string, filter *storage.Filter) (storage.Stream, error) {
	return s.hub.Subscribe(ctx, collection, filter)
}

// Create inserts a document under a generated ID.
func (s *SQLiteStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if !storage.ValidCollection(collection) {
		return "", fmt.Errorf("invalid collection path: %q", collection)
	}
	data, err := encode(fields)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		collection, id, data, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}

	s.hub.Publish(ctx, collection)
	return id, nil
}

// Set creates or replaces a document, keeping its original creation time.
func (s *SQLiteStore) Set(ctx context.Context, docPath string, fields map[string]any) error {
	collection, id, err := storage.SplitDocPath(docPath)
	if err != nil {
		return err
	}
	data, err := encode(fields)
	if err != nil {
		return err
	}

	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, data, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to set document: %w", err)
	}

	s.hub.Publish(ctx, collection)
	return nil
}

// Update merges top-level fields into an existing document.
func (s *SQLiteStore) Update(ctx context.Context, docPath string, fields map[string]any) error {
	collection, id, err := storage.SplitDocPath(docPath)
	if err != nil {
		return err
	}
	patch, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("invalid document fields: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", docPath, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	current, err := decode(raw)
	if err != nil {
		return err
	}
	for k, v := range patch.GetFields() {
		current.Fields[k] = v
	}
	data, err := protojson.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?",
		string(data), time.Now().UnixNano(), collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.hub.Publish(ctx, collection)
	return nil
}

// Delete removes one document.
func (s *SQLiteStore) Delete(ctx context.Context, docPath string) error {
	collection, id, err := storage.SplitDocPath(docPath)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", docPath, storage.ErrNotFound)
	}

	s.hub.Publish(ctx, collection)
	return nil
}

// BatchDelete removes every listed document and its subcollections in one transaction.
func (s *SQLiteStore) BatchDelete(ctx context.Context, docPaths []string) error {
	type key struct{ collection, id string }
	keys := make([]key, 0, len(docPaths))
	var collections []string
	seen := make(map[string]bool)
	for _, p := range docPaths {
		collection, id, err := storage.SplitDocPath(p)
		if err != nil {
			return err
		}
		keys = append(keys, key{collection, id})
		if !seen[collection] {
			seen[collection] = true
			collections = append(collections, collection)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, k := range keys {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = ? AND id = ?",
			k.collection, k.id,
		)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}

		prefix := storage.DocPath(k.collection, k.id) + "/"
		nested, err := nestedCollections(ctx, tx, prefix)
		if err != nil {
			return err
		}
		for _, c := range nested {
			if !seen[c] {
				seen[c] = true
				collections = append(collections, c)
			}
		}
		_, err = tx.ExecContext(ctx,
			"DELETE FROM documents WHERE substr(collection, 1, length(?)) = ?",
			prefix, prefix,
		)
		if err != nil {
			return fmt.Errorf("failed to delete subcollections: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.hub.Publish(ctx, collections...)
	return nil
}

// nestedCollections lists the collections whose path starts with prefix.
func nestedCollections(ctx context.Context, tx *sql.Tx, prefix string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT DISTINCT collection FROM documents WHERE substr(collection, 1, length(?)) = ?",
		prefix, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list subcollections: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get reads one document, or nil if it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, docPath string) (*storage.Document, error) {
	collection, id, err := storage.SplitDocPath(docPath)
	if err != nil {
		return nil, err
	}

	var raw string
	var createdAt, updatedAt int64
	err = s.db.QueryRowContext(ctx,
		"SELECT data, created_at, updated_at FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&raw, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	fields, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return &storage.Document{
		ID:         id,
		Path:       docPath,
		Fields:     fields,
		CreateTime: time.Unix(0, createdAt),
		UpdateTime: time.Unix(0, updatedAt),
	}, nil
}

// List reads every document of a collection in creation order.
func (s *SQLiteStore) List(ctx context.Context, collection string) ([]storage.Document, error) {
	if !storage.ValidCollection(collection) {
		return nil, fmt.Errorf("invalid collection path: %q", collection)
	}
	return s.query(ctx, collection, nil)
}

// QueryOnce returns the first document whose field equals value.
func (s *SQLiteStore) QueryOnce(ctx context.Context, collection, field string, value any) (*storage.Document, error) {
	filter := storage.Equal(field, value)
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	docs, err := s.query(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

// query loads the documents of a collection that match filter. String-valued
// filters are pushed down to SQLite; every row is then re-checked with
// Filter.Match so that both stores agree on semantics.
func (s *SQLiteStore) query(ctx context.Context, collection string, filter *storage.Filter) ([]storage.Document, error) {
	var sb strings.Builder
	sb.WriteString("SELECT id, data, created_at, updated_at FROM documents WHERE collection = ?")
	args := []any{collection}

	if filter != nil {
		if v, ok := filter.Value.(string); ok {
			path := "$." + filter.Field
			switch filter.Op {
			case storage.OpEqual:
				sb.WriteString(" AND json_extract(data, ?) = ?")
				args = append(args, path, v)
			case storage.OpArrayContains:
				sb.WriteString(" AND EXISTS (SELECT 1 FROM json_each(data, ?) WHERE json_each.value = ?)")
				args = append(args, path, v)
			}
		}
	}
	sb.WriteString(" ORDER BY created_at, rowid")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []storage.Document
	for rows.Next() {
		var id, raw string
		var createdAt, updatedAt int64
		if err := rows.Scan(&id, &raw, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		fields, err := decode(raw)
		if err != nil {
			return nil, err
		}
		if !filter.Match(fields) {
			continue
		}
		docs = append(docs, storage.Document{
			ID:         id,
			Path:       storage.DocPath(collection, id),
			Fields:     fields,
			CreateTime: time.Unix(0, createdAt),
			UpdateTime: time.Unix(0, updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

func encode(fields map[string]any) (string, error) {
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return "", fmt.Errorf("invalid document fields: %w", err)
	}
	data, err := protojson.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(data), nil
}

func decode(raw string) (*structpb.Struct, error) {
	st := &structpb.Struct{}
	if err := protojson.Unmarshal([]byte(raw), st); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if st.Fields == nil {
		st.Fields = make(map[string]*structpb.Value)
	}
	return st, nil
}
