//go:build !js && !wasm
// +build !js,!wasm

// Package storage persists the ambient audit trail around decode
// operations: which keys are registered and what every Add/Get/Cmp call
// found. The watermark decoder core itself is stateless (spec.md carries
// no persisted state) — this is purely the outer service's bookkeeping,
// adapted from the teacher's song registry.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/himanishpuri/audiowm/internal/params"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "audiowm.sqlite3"
const errDBClientNil = "db client is nil"

// DBClient wraps a gorm handle onto a SQLite database holding the key
// registry and decode session log.
type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// KeyRecord is a registered watermark key. The raw key bytes are stored
// hex-encoded so the registry doubles as a lookup-by-label directory, not
// a secrets vault — callers that need real secrecy guarantees should keep
// keys out of band and only register a label here.
type KeyRecord struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Label     string `gorm:"uniqueIndex:idx_key_label" json:"label"`
	HexKey    string `gorm:"type:varchar(32)" json:"hex_key"`
	CreatedAt time.Time
}

// DecodeSession logs one Add/Get/Search/Cmp/DetectSpeed call: which key was matched, how
// many sync candidates came back, and the best quality seen, so a server
// deployment can audit decode activity after the fact. ParamsFingerprint
// records which params.Params configuration was active, since a quality
// score is only comparable across sessions logged under the same
// sync/band settings.
type DecodeSession struct {
	ID                string `gorm:"primaryKey;type:varchar(36)"`
	Operation         string `gorm:"index:idx_session_op" json:"operation"` // "add" | "get" | "search" | "cmp" | "speed"
	KeyLabel          string `json:"key_label"`
	ScoreCount        int     `json:"score_count"`
	BestQuality       float64 `json:"best_quality"`
	SpeedFactor       float64 `json:"speed_factor"`
	ParamsFingerprint string  `gorm:"type:varchar(64)" json:"params_fingerprint"`
	CreatedAt         time.Time
}

// ParamsFingerprint derives a short signature from the subset of
// params.Params that affects decode quality, so a stored DecodeSession can
// be traced back to the configuration that produced it without persisting
// the full struct.
func ParamsFingerprint(p params.Params) string {
	return fmt.Sprintf(
		"sr%d-fs%d-sb%d-spb%d-b%d-%d-t%.3f",
		p.MarkSampleRate, p.FrameSize, p.SyncBits, p.SyncFramesPerBit,
		p.MinBand, p.MaxBand, p.SyncThreshold2,
	)
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("AUDIOWM_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&KeyRecord{}, &DecodeSession{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RegisterKey stores a key under label, returning its row ID. Re-registering
// the same label updates the stored key material.
func (c *DBClient) RegisterKey(label string, k [16]byte) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}

	hexKey := fmt.Sprintf("%x", k)

	var rec KeyRecord
	err := c.DB.Where("label = ?", label).First(&rec).Error
	if err == nil {
		rec.HexKey = hexKey
		if err := c.DB.Save(&rec).Error; err != nil {
			return "", fmt.Errorf("updating key record: %w", err)
		}
		return rec.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("querying existing key: %w", err)
	}

	rec = KeyRecord{ID: uuid.NewString(), Label: label, HexKey: hexKey}
	if err := c.DB.Create(&rec).Error; err != nil {
		return "", fmt.Errorf("creating key record: %w", err)
	}
	return rec.ID, nil
}

// GetKeyByLabel looks up a previously registered key by label.
func (c *DBClient) GetKeyByLabel(label string) (KeyRecord, error) {
	if c == nil || c.DB == nil {
		return KeyRecord{}, errors.New(errDBClientNil)
	}
	var rec KeyRecord
	if err := c.DB.Where("label = ?", label).First(&rec).Error; err != nil {
		return KeyRecord{}, fmt.Errorf("looking up key %q: %w", label, err)
	}
	return rec, nil
}

// ListKeys returns every registered key record.
func (c *DBClient) ListKeys() ([]KeyRecord, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var recs []KeyRecord
	if err := c.DB.Order("created_at").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return recs, nil
}

// DeleteKey removes a registered key by label.
func (c *DBClient) DeleteKey(label string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Where("label = ?", label).Delete(&KeyRecord{}).Error
}

// LogSession records one decode attempt's outcome.
func (c *DBClient) LogSession(operation, keyLabel string, scoreCount int, bestQuality, speedFactor float64, paramsFingerprint string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	session := DecodeSession{
		ID:                uuid.NewString(),
		Operation:         operation,
		KeyLabel:          keyLabel,
		ScoreCount:        scoreCount,
		BestQuality:       bestQuality,
		SpeedFactor:       speedFactor,
		ParamsFingerprint: paramsFingerprint,
	}
	if err := c.DB.Create(&session).Error; err != nil {
		return fmt.Errorf("logging decode session: %w", err)
	}
	return nil
}

// RecentSessions returns the n most recently logged decode sessions.
func (c *DBClient) RecentSessions(n int) ([]DecodeSession, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var sessions []DecodeSession
	if err := c.DB.Order("created_at desc").Limit(n).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("listing decode sessions: %w", err)
	}
	return sessions, nil
}
