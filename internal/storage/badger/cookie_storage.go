package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// currentRecordKey is the single storage slot for the live cookie record.
// Automated and manual saves share it; the most recent save wins.
const currentRecordKey = "current"

// CookieStorage implements the CookieStorage interface for Badger
type CookieStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCookieStorage creates a new CookieStorage instance
func NewCookieStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CookieStorage {
	return &CookieStorage{
		db:     db,
		logger: logger,
	}
}

// Save replaces the live cookie record. Upsert runs in a single Badger
// transaction, so a concurrent Load sees either the old record or the new
// one, never a mixture.
func (s *CookieStorage) Save(ctx context.Context, record *models.CookieRecord) error {
	if record == nil || len(record.Cookies) == 0 {
		return &models.PersistenceError{Op: "save", Err: fmt.Errorf("refusing to save an empty cookie record")}
	}

	if err := s.db.Store().Upsert(currentRecordKey, record); err != nil {
		return &models.PersistenceError{Op: "save", Err: err}
	}

	s.logger.Info().
		Str("source", string(record.Source)).
		Int("cookie_count", len(record.Cookies)).
		Msg("Cookie record saved")

	return nil
}

// Load returns the live cookie record, or ErrNoCookieRecord when nothing
// has been saved yet.
func (s *CookieStorage) Load(ctx context.Context) (*models.CookieRecord, error) {
	var record models.CookieRecord
	if err := s.db.Store().Get(currentRecordKey, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.ErrNoCookieRecord
		}
		return nil, &models.PersistenceError{Op: "load", Err: err}
	}
	return &record, nil
}

// Close is a no-op; the manager owns the database lifecycle.
func (s *CookieStorage) Close() error {
	return nil
}
