package store

import (
	"encoding/json"

	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/reactive"
)

// Source returns the change counter of a collection, including readiness
// changes, for use as an input of reactive.Computed
func (s *Store) Source(name string) reactive.Source {
	return collectionSource{store: s, name: name}
}

type collectionSource struct {
	store *Store
	name  string
}

func (c collectionSource) Version() uint64 {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	v := c.store.readyVersion
	if coll, ok := c.store.collections[c.name]; ok {
		v += coll.version
	}
	return v
}

// Find decodes every document of a collection accepted by match. Documents
// that do not decode into T are skipped.
func Find[T any](s *Store, name string, match func(*T) bool) []*T {
	var out []*T
	for _, raw := range s.All(name) {
		doc := new(T)
		if err := json.Unmarshal(raw, doc); err != nil {
			logger.Warnf("skipping malformed %s document: %v", name, err)
			continue
		}
		if match == nil || match(doc) {
			out = append(out, doc)
		}
	}
	return out
}

// FindOne returns the first document accepted by match
func FindOne[T any](s *Store, name string, match func(*T) bool) (*T, bool) {
	docs := Find(s, name, match)
	if len(docs) == 0 {
		return nil, false
	}
	return docs[0], true
}

// GetAs decodes one document by id
func GetAs[T any](s *Store, name, id string) (*T, bool) {
	raw, ok := s.Get(name, id)
	if !ok {
		return nil, false
	}
	doc := new(T)
	if err := json.Unmarshal(raw, doc); err != nil {
		logger.Warnf("malformed %s document %s: %v", name, id, err)
		return nil, false
	}
	return doc, true
}
