package audiowm

import (
	"context"

	"github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/signal"
)

// Service is the public decoder front-end: register keys, add a reference
// watermark to a clean signal, and recover sync/speed information from a
// possibly-distorted one.
type Service interface {
	AddKey(label string, k key.Key) error
	ListKeys() ([]KeyInfo, error)
	DeleteKey(label string) error

	Add(ctx context.Context, data signal.Data, keyLabel string) (signal.Data, error)
	Get(ctx context.Context, data signal.Data, keyLabels []string) (DecodeResult, error)
	Search(ctx context.Context, data signal.Data, keyLabels []string, mode string) (DecodeResult, error)
	Cmp(ctx context.Context, a, b signal.Data, keyLabels []string) (bool, error)
	DetectSpeed(ctx context.Context, data signal.Data, keyLabels []string) ([]SpeedResult, error)

	Close() error
}

// Storage is the persistence boundary the service depends on, letting a
// caller swap in an in-memory fake for tests without pulling in gorm.
type Storage interface {
	RegisterKey(label string, k [16]byte) (string, error)
	GetKeyByLabel(label string) (KeyRow, error)
	ListKeys() ([]KeyRow, error)
	DeleteKey(label string) error
	LogSession(operation, keyLabel string, scoreCount int, bestQuality, speedFactor float64, paramsFingerprint string) error
	Close() error
}

// KeyRow is the storage-facing projection of a registered key record,
// decoupling callers of Storage from the gorm model in internal/storage.
type KeyRow struct {
	Label  string
	HexKey string
}

// Logger is the subset of pkg/logger.Logger the service calls into.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
