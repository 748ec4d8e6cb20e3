package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"anchorwatch/internal/watcher"
)

type eventModel struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Type       string    `gorm:"index;size:32"`
	Symbol     string    `gorm:"index;size:32"`
	At         time.Time `gorm:"index"`
	Action     string    `gorm:"size:24"`
	Reason     string    `gorm:"size:32"`
	Reasoning  string
	Confidence float64
	State      string `gorm:"size:16"`
	Telemetry  string
}

func (eventModel) TableName() string { return "watch_events" }

// GormSink persists events to SQLite for the HTTP query surface.
type GormSink struct {
	db *gorm.DB
}

func NewGormSink(path string) (*GormSink, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm sink: db path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&eventModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: one writer, a little read parallelism for HTTP.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormSink{db: db}, nil
}

func (s *GormSink) Append(evt Event) error {
	var telemetry string
	if len(evt.Telemetry) > 0 {
		data, err := json.Marshal(evt.Telemetry)
		if err != nil {
			return fmt.Errorf("marshaling telemetry: %w", err)
		}
		telemetry = string(data)
	}
	model := eventModel{
		ID:         evt.ID,
		Type:       string(evt.Type),
		Symbol:     evt.Symbol,
		At:         evt.At,
		Action:     string(evt.Action),
		Reason:     string(evt.Reason),
		Reasoning:  evt.Reasoning,
		Confidence: evt.Confidence,
		State:      string(evt.State),
		Telemetry:  telemetry,
	}
	return s.db.Create(&model).Error
}

// Recent returns up to limit events, newest first, optionally filtered by
// symbol.
func (s *GormSink) Recent(symbol string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.Model(&eventModel{}).Order("at DESC").Limit(limit)
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		query = query.Where("symbol = ?", strings.ToUpper(symbol))
	}
	var models []eventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(models))
	for _, m := range models {
		evt := Event{
			ID:         m.ID,
			Type:       Type(m.Type),
			Symbol:     m.Symbol,
			At:         m.At,
			Action:     watcher.Action(m.Action),
			Reason:     watcher.Reason(m.Reason),
			Reasoning:  m.Reasoning,
			Confidence: m.Confidence,
			State:      watcher.State(m.State),
		}
		if m.Telemetry != "" {
			_ = json.Unmarshal([]byte(m.Telemetry), &evt.Telemetry)
		}
		out = append(out, evt)
	}
	return out, nil
}

func (s *GormSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
