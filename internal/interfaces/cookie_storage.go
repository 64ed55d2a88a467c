package interfaces

import (
	"context"

	"github.com/ternarybob/clavis/internal/models"
)

// CookieStorage persists the single live cookie record. Save replaces the
// previous record atomically; a concurrent Load never observes a torn
// write. The most recent save wins regardless of source.
type CookieStorage interface {
	Save(ctx context.Context, record *models.CookieRecord) error
	Load(ctx context.Context) (*models.CookieRecord, error)
	Close() error
}

// StorageManager provides access to the storage implementations and owns
// the underlying database lifecycle.
type StorageManager interface {
	CookieStorage() CookieStorage
	Close() error
}
