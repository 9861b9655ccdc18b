// Package storage defines the streaming document store that holds the ledger.
//
// The store is the only source of truth. Readers never query it on demand for
// ledger state; they subscribe to collections and receive complete snapshots
// whenever a committed write touches the collection.
package storage

import (
	"context"
	"errors"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// ErrNotFound is returned by writes that target a document that does not exist.
var ErrNotFound = errors.New("document not found")

// Document is one stored document.
type Document struct {
	// ID is the document's identifier within its collection.
	ID string

	// Path is the full document path ("collection/id").
	Path string

	// Fields holds the document contents.
	Fields *structpb.Struct

	CreateTime time.Time
	UpdateTime time.Time
}

// Snapshot is the complete state of a subscribed collection at one point in time.
// Documents are ordered by creation time.
type Snapshot struct {
	Collection string
	Docs       []Document
	ReadTime   time.Time
}

// Stream delivers snapshots for one subscription.
//
// The first snapshot is delivered as soon as the subscription is registered.
// If the consumer falls behind, pending snapshots are replaced by newer ones;
// snapshots are never reordered. Close is idempotent and closes the channel.
type Stream interface {
	Snapshots() <-chan Snapshot
	Close() error
}

// Store defines the interface for the streaming document store.
// This abstraction allows swapping storage backends (SQLite, in-memory, a remote
// service) without changing the synchronization layer.
type Store interface {
	// Subscribe opens a live subscription to a collection, optionally filtered.
	Subscribe(ctx context.Context, collection string, filter *Filter) (Stream, error)

	// Create adds a document with a generated ID and returns the ID.
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)

	// Set creates or replaces the document at docPath.
	Set(ctx context.Context, docPath string, fields map[string]any) error

	// Update merges top-level fields into an existing document.
	// Returns ErrNotFound if the document does not exist.
	Update(ctx context.Context, docPath string, fields map[string]any) error

	// Delete removes a document. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, docPath string) error

	// BatchDelete removes every listed document, together with every document
	// in its subcollections, atomically: all or none. Missing documents are ignored.
	BatchDelete(ctx context.Context, docPaths []string) error

	// Get reads one document. Returns nil and no error if it does not exist.
	Get(ctx context.Context, docPath string) (*Document, error)

	// List reads every document of a collection.
	List(ctx context.Context, collection string) ([]Document, error)

	// QueryOnce returns the first document whose field equals value.
	// Returns nil and no error when nothing matches.
	QueryOnce(ctx context.Context, collection, field string, value any) (*Document, error)

	// Close releases any resources held by the store and ends every live stream.
	Close() error
}
