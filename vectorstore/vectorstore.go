/*
Package vectorstore wraps an embedded chromem-go database holding the bank's
policy and product documents.

Documents are ingested out-of-band; the live chat path only queries. Queries
distinguish an empty index from a query with no sufficiently similar matches
so that callers can report the two situations differently.
*/
package vectorstore

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
	"github.com/sirupsen/logrus"
)

const collectionName = "bank_documents"

// Match is one retrieved document chunk. RelevanceScore is the cosine
// similarity of the chunk to the query, in [0,1] for normalized embeddings.
type Match struct {
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata"`
	RelevanceScore float32           `json:"relevance_score"`
}

// ErrEmptyIndex is returned by Search when the collection holds no documents.
var ErrEmptyIndex = fmt.Errorf("document index is empty")

// VectorStore is a persistent document index.
type VectorStore struct {
	collection *chromem.Collection
	logger     *logrus.Entry
}

// Open opens (or creates) the persistent index at dir using the given
// embedding function for both ingestion and queries.
func Open(dir string, embed chromem.EmbeddingFunc, logger *logrus.Logger) (*VectorStore, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collectionName, err)
	}

	entry := logger.WithField("component", "vectorstore")
	entry.WithField("documents", collection.Count()).Info("Document index opened")
	return &VectorStore{collection: collection, logger: entry}, nil
}

// Add ingests one document chunk with its metadata.
func (v *VectorStore) Add(ctx context.Context, id, content string, metadata map[string]string) error {
	err := v.collection.AddDocument(ctx, chromem.Document{
		ID:       id,
		Content:  content,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("add document %s: %w", id, err)
	}
	return nil
}

// Count reports the number of indexed document chunks.
func (v *VectorStore) Count() int {
	return v.collection.Count()
}

// Search returns the top-k chunks most similar to the query. An empty index
// yields ErrEmptyIndex; a populated index with no matches yields an empty
// slice and nil error.
func (v *VectorStore) Search(ctx context.Context, query string, k int) ([]Match, error) {
	count := v.collection.Count()
	if count == 0 {
		return nil, ErrEmptyIndex
	}
	if k > count {
		k = count
	}

	results, err := v.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			Content:        r.Content,
			Metadata:       r.Metadata,
			RelevanceScore: r.Similarity,
		})
	}

	v.logger.WithFields(logrus.Fields{
		"query":   query,
		"matches": len(matches),
	}).Debug("Document search completed")
	return matches, nil
}
