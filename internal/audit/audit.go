// Package audit is an append-only, gorm-backed recording of Event Bus
// activity and closed-group summaries. It exists purely for post-run
// reporting: nothing here is ever read back into the live Registry or Retry
// Handler, so the engine's in-memory state is always rebuilt from scratch on
// restart, per spec.md §1's persistence Non-goal.
package audit

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/algoforge/ordergroup/internal/domain"
	"github.com/algoforge/ordergroup/internal/events"
)

// EventRecord is one archived Event Bus entry.
type EventRecord struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	Kind      string `gorm:"index"`
	GroupID   string `gorm:"index"`
	PairID    string
	OrderID   string
	Side      string
	Volume    decimal.Decimal `gorm:"type:decimal(20,8)"`
	Attempt   int
	Reason    string
	CreatedAt time.Time
}

// GroupSummary is an archived closed-group fact, written by
// RecordGroupClosed for each group the Manager's onGroupClosed hook reports.
type GroupSummary struct {
	GroupID     string `gorm:"primaryKey"`
	Security    string
	Side        string
	EntryVolume decimal.Decimal `gorm:"type:decimal(20,8)"`
	FinalState  string
	ClosedAt    time.Time
}

// Log is the append-only sink. A zero-value Log (DB nil) silently discards
// everything, matching the teacher's "disabled without DATABASE_URL" mode.
type Log struct {
	db *gorm.DB
}

// Open connects to path (a sqlite file path, or a postgres:// / postgresql://
// DSN) and auto-migrates the audit tables. An empty path returns a disabled
// Log.
func Open(path string) (*Log, error) {
	if path == "" {
		log.Warn().Msg("audit: no database path configured, running without persistence")
		return &Log{}, nil
	}

	var db *gorm.DB
	var err error
	if strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://") {
		db, err = gorm.Open(postgres.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("audit: connected (postgres)")
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("audit: connected (sqlite)")
	}

	if err := db.AutoMigrate(&EventRecord{}, &GroupSummary{}); err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

// Run drains ch until closed, archiving every event. Closed-group summaries
// are recorded separately via RecordGroupClosed, which carries the full
// OrderGroup the bus event does not.
func (l *Log) Run(ch <-chan events.Event) {
	for e := range ch {
		l.recordEvent(e)
	}
}

func (l *Log) recordEvent(e events.Event) {
	if l.db == nil {
		return
	}
	rec := &EventRecord{
		Kind:      string(e.Kind),
		GroupID:   e.GroupID,
		PairID:    e.PairID,
		OrderID:   string(e.OrderID),
		Side:      string(e.Side),
		Volume:    e.Volume,
		Attempt:   e.Attempt,
		Reason:    e.Reason,
		CreatedAt: time.Now(),
	}
	if err := l.db.Create(rec).Error; err != nil {
		log.Error().Err(err).Msg("audit: failed to record event")
	}
}

// RecordGroupClosed writes (or overwrites) the summary row for a closed
// group. Wired as the Order Position Manager's onGroupClosed hook, since it
// needs the full OrderGroup the bus event does not carry.
func (l *Log) RecordGroupClosed(g *domain.OrderGroup) {
	if l.db == nil || g == nil {
		return
	}
	summary := &GroupSummary{
		GroupID:     g.GroupID,
		Security:    g.EntrySpec.Security,
		Side:        string(g.EntrySpec.Side),
		EntryVolume: g.EntrySpec.Volume,
		FinalState:  string(g.State),
		ClosedAt:    g.CompletedAt,
	}
	if err := l.db.Save(summary).Error; err != nil {
		log.Error().Err(err).Str("group_id", g.GroupID).Msg("audit: failed to record group summary")
	}
}

// Close releases the underlying database connection, if any.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
