package audiowm

import "github.com/himanishpuri/audiowm/internal/storage"

// storageAdapter adapts storage.DBClient to the Storage interface so the
// service doesn't depend on gorm types directly.
type storageAdapter struct {
	db *storage.DBClient
}

// NewSQLiteStorage opens (creating if needed) a SQLite-backed Storage.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) RegisterKey(label string, k [16]byte) (string, error) {
	return s.db.RegisterKey(label, k)
}

func (s *storageAdapter) GetKeyByLabel(label string) (KeyRow, error) {
	rec, err := s.db.GetKeyByLabel(label)
	if err != nil {
		return KeyRow{}, err
	}
	return KeyRow{Label: rec.Label, HexKey: rec.HexKey}, nil
}

func (s *storageAdapter) ListKeys() ([]KeyRow, error) {
	recs, err := s.db.ListKeys()
	if err != nil {
		return nil, err
	}
	rows := make([]KeyRow, len(recs))
	for i, r := range recs {
		rows[i] = KeyRow{Label: r.Label, HexKey: r.HexKey}
	}
	return rows, nil
}

func (s *storageAdapter) DeleteKey(label string) error {
	return s.db.DeleteKey(label)
}

func (s *storageAdapter) LogSession(operation, keyLabel string, scoreCount int, bestQuality, speedFactor float64, paramsFingerprint string) error {
	return s.db.LogSession(operation, keyLabel, scoreCount, bestQuality, speedFactor, paramsFingerprint)
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}
