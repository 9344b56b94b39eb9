package engine

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	language "github.com/russellyou/nadel/internal/language"
)

// documentCache keeps validated query documents by query text. Documents
// are shared between requests and must not be mutated.
type documentCache struct {
	schema *language.Schema
	lru    *lru.Cache[uint64, *cachedDocument]
}

type cachedDocument struct {
	query string
	doc   *language.QueryDocument
}

func newDocumentCache(schema *language.Schema, size int) (*documentCache, error) {
	c := &documentCache{schema: schema}
	if size <= 0 {
		return c, nil
	}
	l, err := lru.New[uint64, *cachedDocument](size)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// load parses and validates query, or returns the cached document. Invalid
// documents are not cached.
func (c *documentCache) load(query string) (*language.QueryDocument, language.ErrorList) {
	var key uint64
	if c.lru != nil {
		key = xxhash.Sum64String(query)
		// Hash collisions fall through to a fresh parse.
		if hit, ok := c.lru.Get(key); ok && hit.query == query {
			return hit.doc, nil
		}
	}
	doc, errs := language.LoadQuery(c.schema, query)
	if len(errs) > 0 {
		return nil, errs
	}
	if c.lru != nil {
		c.lru.Add(key, &cachedDocument{query: query, doc: doc})
	}
	return doc, nil
}

func (c *documentCache) len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
