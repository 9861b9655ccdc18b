// Package memory provides an in-process implementation of storage.Store.
// It backs tests and the STORE_DRIVER=memory development mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/splitledger/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type entry struct {
	fields  *structpb.Struct
	created time.Time
	updated time.Time
	seq     uint64
}

// Store keeps every document in memory.
type Store struct {
	hub *storage.Hub

	mu          sync.RWMutex
	collections map[string]map[string]*entry
	seq         uint64
}

// New creates an empty store.
func New() *Store {
	s := &Store{collections: make(map[string]map[string]*entry)}
	s.hub = storage.NewHub(s.query)
	return s
}

func (s *Store) Subscribe(ctx context.Context, collection string, filter *storage.Filter) (storage.Stream, error) {
	return s.hub.Subscribe(ctx, collection, filter)
}

func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if !storage.ValidCollection(collection) {
		return "", fmt.Errorf("invalid collection path: %q", collection)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return "", fmt.Errorf("invalid document fields: %w", err)
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.putLocked(collection, id, st)
	s.mu.Unlock()

	s.hub.Publish(ctx, collection)
	return id, nil
}

func (s *Store) Set(ctx context.Context, docPath string, fields map[string]any) error {
	collection, id, err := storage.SplitDocPath(docPath)
	if err != nil {
		return err
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("invalid document fields: %w", err)
	}

	s.mu.Lock()
	s.putLocked(collection, id, st)
	s.mu.Unlock()

	s.hub.Publish(ctx, collection)
	return nil
}

func (s *Store) Update(ctx context.Context, docPath string, fields map[string]any) error {
	collection, id, err := storage.SplitDocPath(docPath)
	if err != nil {
		return err
	}
	patch, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("invalid document fields: %w", err)
	}

	s.mu.Lock()
	e, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", docPath, storage.ErrNotFound)
	}
	merged := proto.Clone(e.fields).(*structpb.Struct)
	if merged.Fields == nil {
		merged.Fields = make(map[string]*structpb.Value)
	}
	for k, v := range patch.GetFields() {
		merged.Fields[k] = v
	}
	e.fields = merged
	e.updated = time.Now()
	s.mu.Unlock()

	s.hub.Publish(ctx, collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, docPath string) error {
	collection, id, err := storage.SplitDocPath(docPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.collections[collection][id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", docPath, storage.ErrNotFound)
	}
	delete(s.collections[collection], id)
	s.mu.Unlock()

	s.hub.Publish(ctx, collection)
	return nil
}

func (s *Store) BatchDelete(ctx context.Context, docPaths []string) error {
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

	s.mu.Lock()
	for _, k := range keys {
		delete(s.collections[k.collection], k.id)
		prefix := storage.DocPath(k.collection, k.id) + "/"
		for c := range s.collections {
			if !strings.HasPrefix(c, prefix) {
				continue
			}
			delete(s.collections, c)
			if !seen[c] {
				seen[c] = true
				collections = append(collections, c)
			}
		}
	}
	s.mu.Unlock()

	s.hub.Publish(ctx, collections...)
	return nil
}

func (s *Store) Get(_ context.Context, docPath string) (*storage.Document, error) {
	collection, id, err := storage.SplitDocPath(docPath)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	doc := e.document(collection, id)
	return &doc, nil
}

func (s *Store) List(ctx context.Context, collection string) ([]storage.Document, error) {
	if !storage.ValidCollection(collection) {
		return nil, fmt.Errorf("invalid collection path: %q", collection)
	}
	return s.query(ctx, collection, nil)
}

func (s *Store) QueryOnce(ctx context.Context, collection, field string, value any) (*storage.Document, error) {
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

// Close ends every live stream. The data stays readable.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

func (s *Store) putLocked(collection, id string, fields *structpb.Struct) {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]*entry)
		s.collections[collection] = docs
	}
	now := time.Now()
	if e, ok := docs[id]; ok {
		e.fields = fields
		e.updated = now
		return
	}
	s.seq++
	docs[id] = &entry{fields: fields, created: now, updated: now, seq: s.seq}
}

func (s *Store) query(_ context.Context, collection string, filter *storage.Filter) ([]storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type match struct {
		id string
		e  *entry
	}
	var matches []match
	for id, e := range s.collections[collection] {
		if filter.Match(e.fields) {
			matches = append(matches, match{id, e})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].e.seq < matches[j].e.seq
	})

	docs := make([]storage.Document, len(matches))
	for i, m := range matches {
		docs[i] = m.e.document(collection, m.id)
	}
	return docs, nil
}

func (e *entry) document(collection, id string) storage.Document {
	return storage.Document{
		ID:         id,
		Path:       storage.DocPath(collection, id),
		Fields:     proto.Clone(e.fields).(*structpb.Struct),
		CreateTime: e.created,
		UpdateTime: e.updated,
	}
}
