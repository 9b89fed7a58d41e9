// Package journal keeps a SQL copy of every settled exchange event so that
// operators can query history without replaying the ledger.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"earthexchange/native/dex"
)

// Entry is one event of a settled intent.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Batch      uuid.UUID `gorm:"type:uuid;index"`
	Intent     string    `gorm:"size:64;index"`
	Sequence   int       `gorm:"not null"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	RecordedAt time.Time `gorm:"index"`
}

// EventCount aggregates entries of one type.
type EventCount struct {
	Type  string `json:"type" yaml:"type"`
	Count int64  `json:"count" yaml:"count"`
}

// AutoMigrate creates or updates the journal schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// Open connects to the journal database. driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return db, nil
}

type Journal struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// Record stores the events of outcome in one transaction.
func (j *Journal) Record(ctx context.Context, at time.Time, outcome *dex.Outcome) error {
	if outcome == nil || len(outcome.Events) == 0 {
		return nil
	}
	batch := uuid.New()
	entries := make([]Entry, 0, len(outcome.Events))
	for i, ev := range outcome.Events {
		attrs, err := json.Marshal(ev.Attributes)
		if err != nil {
			return fmt.Errorf("journal: encode %s: %w", ev.Type, err)
		}
		entries = append(entries, Entry{
			ID:         uuid.New(),
			Batch:      batch,
			Intent:     outcome.Intent,
			Sequence:   i,
			Type:       ev.Type,
			Attributes: string(attrs),
			RecordedAt: at.UTC(),
		})
	}
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&entries).Error
	})
}

// Settle returns a settlement step that runs next and then journals the
// outcome. A journal failure fails the settlement, so the ledger is rolled
// back with it.
func (j *Journal) Settle(at time.Time, next dex.SettleFunc) dex.SettleFunc {
	return func(ctx context.Context, outcome *dex.Outcome) error {
		if next != nil {
			if err := next(ctx, outcome); err != nil {
				return err
			}
		}
		return j.Record(ctx, at, outcome)
	}
}

// Counts returns the number of entries per event type recorded at or after
// since, ordered by type.
func (j *Journal) Counts(ctx context.Context, since time.Time) ([]EventCount, error) {
	var out []EventCount
	err := j.db.WithContext(ctx).Model(&Entry{}).
		Select("type, count(*) as count").
		Where("recorded_at >= ?", since.UTC()).
		Group("type").
		Order("type").
		Scan(&out).Error
	return out, err
}

// Recent lists the newest entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Entry
	err := j.db.WithContext(ctx).
		Order("recorded_at desc").Order("sequence desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Decode returns the stored attribute map.
func (e Entry) Decode() (map[string]string, error) {
	attrs := map[string]string{}
	if e.Attributes == "" {
		return attrs, nil
	}
	err := json.Unmarshal([]byte(e.Attributes), &attrs)
	return attrs, err
}
