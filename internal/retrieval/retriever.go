// Package retrieval supplies context chunks for a query. Production
// retrieval is an external subsystem; this package defines the collaborator
// contract and a keyword retriever over curated SQLite chunks so offline
// evaluation runs are self-contained.
package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/support-copilot/backend/internal/storage/models"
	"github.com/support-copilot/backend/internal/storage/sqlite"
	"github.com/support-copilot/backend/pkg/logger"
)

const defaultChunkLimit = 5

// KeywordRetriever matches query tokens against stored chunk content.
// Deterministic by construction, which evaluation runs depend on.
type KeywordRetriever struct {
	db    *sqlite.Client
	limit int
}

func NewKeywordRetriever(db *sqlite.Client) *KeywordRetriever {
	return &KeywordRetriever{db: db, limit: defaultChunkLimit}
}

func (r *KeywordRetriever) Retrieve(ctx context.Context, tenantID, query string) ([]models.ContextChunk, error) {
	chunks, err := r.db.SearchChunks(tenantID, query, r.limit)
	if err != nil {
		return nil, err
	}

	logger.Debug("Context retrieved",
		zap.String("tenant_id", tenantID),
		zap.Int("chunks", len(chunks)),
	)
	return chunks, nil
}
