package tools

import (
	"context"
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/arslan2k12/BankingBot/vectorstore"
)

var documentsLogger = logrus.WithField("tool", "search_bank_documents")

const documentSearchTopK = 5

// NewDocumentSearchTool returns the search_bank_documents tool backed by the
// given document index.
func NewDocumentSearchTool(index *vectorstore.VectorStore) *Spec {
	return &Spec{
		Name: "search_bank_documents",
		Description: "Search bank policies, credit card benefits, fee structures and other " +
			"banking documents. Use for questions about policies, procedures, terms " +
			"and general banking information rather than a specific user's data.",
		Parameters: map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Clear description of the information you are looking for.",
			},
		},
		Required: []string{"query"},
		Handler: func(ctx context.Context, args map[string]any) string {
			return searchBankDocuments(ctx, index, args)
		},
	}
}

func searchBankDocuments(ctx context.Context, index *vectorstore.VectorStore, args map[string]any) string {
	query := stringArg(args, "query")
	toolLogger := documentsLogger.WithField("query", query)
	toolLogger.Info("Document search tool called")

	if query == "" {
		return errorEnvelope(ErrKindValidation,
			"query must be a non-empty string",
			"Describe what banking information you are looking for.")
	}

	matches, err := index.Search(ctx, query, documentSearchTopK)
	if errors.Is(err, vectorstore.ErrEmptyIndex) {
		toolLogger.Warn("Document index is empty")
		return marshal(map[string]any{
			"results":          []any{},
			"message":          "The document index is empty. Document ingestion has not run yet.",
			"collection_count": 0,
		})
	}
	if err != nil {
		toolLogger.WithError(err).Error("Document search failed")
		return errorEnvelope(ErrKindSearchFailed, err.Error(), "")
	}

	if len(matches) == 0 {
		toolLogger.Info("No documents matched the query")
		return marshal(map[string]any{
			"results":          []any{},
			"message":          "No relevant documents found for your query.",
			"collection_count": index.Count(),
		})
	}

	results := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		results = append(results, map[string]any{
			"content":         m.Content,
			"metadata":        m.Metadata,
			"relevance_score": math.Round(float64(m.RelevanceScore)*1000) / 1000,
		})
	}

	toolLogger.WithField("matches", len(results)).Info("Document search successful")
	return marshal(map[string]any{
		"results":          results,
		"collection_count": index.Count(),
	})
}
