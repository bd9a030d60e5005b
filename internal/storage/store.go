package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Logical collection keys. The names are carried over from the legacy
// browser-storage schema so exported data stays interchangeable.
const (
	KeyUsers    = "pspms_users"
	KeySession  = "pspms_auth"
	KeyGateLog  = "pspms_security_logs"
	KeyRequests = "pspms_requests"
)

var (
	ErrKeyNotFound      = errors.New("storage: key not found")
	ErrMalformedPayload = errors.New("storage: malformed persisted payload")
)

// Store is the key-value persistence adapter. Each key holds one JSON
// document containing an entire collection; every write replaces the whole
// document (last writer wins).
type Store interface {
	Load(key string, v any) error
	Save(key string, v any) error
}

// Record is a single persisted collection document.
type Record struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     []byte    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Record) TableName() string {
	return "kv_records"
}

// SQLStore implements Store on top of a kv_records table via GORM.
type SQLStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewSQLStore(db *gorm.DB, logger *slog.Logger) *SQLStore {
	return &SQLStore{db: db, logger: logger}
}

// Migrate creates the kv_records table when it does not exist. Postgres
// deployments run goose instead; this path covers SQLite.
func (s *SQLStore) Migrate() error {
	return s.db.AutoMigrate(&Record{})
}

func (s *SQLStore) Load(key string, v any) error {
	var rec Record
	err := s.db.Where("key = ?", key).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("storage: load %s: %w", key, err)
	}

	if err := json.Unmarshal(rec.Value, v); err != nil {
		s.logger.Warn("discarding malformed persisted payload", "key", key, "error", err)
		return ErrMalformedPayload
	}
	return nil
}

func (s *SQLStore) Save(key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", key, err)
	}

	rec := Record{Key: key, Value: payload, UpdatedAt: time.Now()}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("storage: save %s: %w", key, err)
	}
	return nil
}
