package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// checkpointRecord is the database row backing one thread's checkpoint.
type checkpointRecord struct {
	ThreadID  string    `gorm:"primaryKey;size:512"`
	Data      []byte    `gorm:"type:bytes"`
	UpdatedAt time.Time `gorm:"index"`
}

func (checkpointRecord) TableName() string { return "checkpoints" }

// SQLStore persists checkpoints in a relational database through GORM.
// Each Save is a single upsert, so a crash mid-write leaves either the old
// snapshot or the new one, never a mix.
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenSQLStore opens a database by driver name ("postgres" or "sqlite") and
// migrates the checkpoint table.
func OpenSQLStore(driver, dsn string, logger *zap.Logger) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported checkpoint database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	return NewSQLStore(db, logger)
}

// NewSQLStore wraps an existing GORM handle.
func NewSQLStore(db *gorm.DB, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&checkpointRecord{}); err != nil {
		return nil, fmt.Errorf("migrate checkpoint table: %w", err)
	}
	return &SQLStore{
		db:     db,
		logger: logger.With(zap.String("store", "sql_checkpoint")),
	}, nil
}

// Save upserts the thread's snapshot.
func (s *SQLStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	rec := checkpointRecord{
		ThreadID:  cp.ThreadID,
		Data:      data,
		UpdatedAt: cp.UpdatedAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "thread_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&rec).Error
}

// Load fetches the thread's snapshot.
func (s *SQLStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	var rec checkpointRecord
	err := s.db.WithContext(ctx).First(&rec, "thread_id = ?", threadID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(rec.Data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes the thread's snapshot.
func (s *SQLStore) Delete(ctx context.Context, threadID string) error {
	return s.db.WithContext(ctx).
		Delete(&checkpointRecord{}, "thread_id = ?", threadID).Error
}

// DeleteOlderThan removes snapshots last updated before the cutoff.
func (s *SQLStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Delete(&checkpointRecord{}, "updated_at < ?", cutoff)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
