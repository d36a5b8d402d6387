// Package gormstore implements the audit store on Gorm + SQLite.
// Writes flow through a buffered channel drained by one goroutine, so
// callers on the evaluation path never wait on the database.
package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vigil/internal/logger"
	"vigil/internal/store"
	storemodel "vigil/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const writeBuffer = 256

// GormStore persists audit events to SQLite.
type GormStore struct {
	db *gorm.DB

	events chan store.Event
	done   chan struct{}
	once   sync.Once
}

var _ store.AuditStore = (*GormStore)(nil)

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: audit db path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&storemodel.AutomationEventModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep lock contention low while allowing HTTP reads.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)

	s := &GormStore{
		db:     db,
		events: make(chan store.Event, writeBuffer),
		done:   make(chan struct{}),
	}
	go s.drain()
	return s, nil
}

// Record enqueues ev without blocking. When the buffer is full the
// event is dropped with a warning; audit history is best-effort.
func (s *GormStore) Record(ev store.Event) {
	if s == nil {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	select {
	case s.events <- ev:
	default:
		logger.Warnf("audit store: buffer full, dropping %s/%s event", ev.EntityKind, ev.Event)
	}
}

func (s *GormStore) drain() {
	for ev := range s.events {
		row := toModel(ev)
		if err := s.db.Create(&row).Error; err != nil {
			logger.Warnf("audit store: write failed: %v", err)
		}
	}
	close(s.done)
}

// Recent returns the newest events, most recent first.
func (s *GormStore) Recent(ctx context.Context, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []storemodel.AutomationEventModel
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

// Close stops the drain goroutine after flushing queued events and
// closes the database.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.once.Do(func() {
		close(s.events)
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			logger.Warnf("audit store: flush timed out on close")
		}
	})
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModel(ev store.Event) storemodel.AutomationEventModel {
	var details datatypes.JSON
	if len(ev.Details) > 0 {
		if raw, err := json.Marshal(ev.Details); err == nil {
			details = datatypes.JSON(raw)
		}
	}
	return storemodel.AutomationEventModel{
		EntityKind:    ev.EntityKind,
		EntityID:      ev.EntityID,
		Symbol:        ev.Symbol,
		Event:         ev.Event,
		Details:       details,
		CreatedAtUnix: ev.CreatedAt.Unix(),
	}
}

func fromModel(row storemodel.AutomationEventModel) store.Event {
	ev := store.Event{
		EntityKind: row.EntityKind,
		EntityID:   row.EntityID,
		Symbol:     row.Symbol,
		Event:      row.Event,
		CreatedAt:  time.Unix(row.CreatedAtUnix, 0),
	}
	if len(row.Details) > 0 {
		var details map[string]any
		if err := json.Unmarshal(row.Details, &details); err == nil {
			ev.Details = details
		}
	}
	return ev
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
