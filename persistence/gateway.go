package persistence

import (
	"context"

	"prism-board/domain"
)

// Gateway is the durable document store the adapter writes through.
// Upsert merges the document into any existing record with the same
// (UserID, ID): fields present in doc overwrite, others are left untouched.
type Gateway interface {
	Upsert(ctx context.Context, doc domain.BoardDocument) error
	FetchAll(ctx context.Context, userID string) ([]domain.BoardDocument, error)
	Delete(ctx context.Context, userID, boardID string) error
}
