package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hermesquantum/signalbot/internal/config"
	"github.com/hermesquantum/signalbot/pkg/models"
)

// SQLiteStorage реализует Storage поверх SQLite через GORM
type SQLiteStorage struct {
	db *gorm.DB
}

// NewSQLiteStorage открывает базу и применяет миграции.
// Цикл анализа пишет, веб-панель одновременно читает, поэтому
// включается WAL-режим.
func NewSQLiteStorage(cfg config.StorageConfig) (*SQLiteStorage, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "signalbot.db"
	}

	db, err := gorm.Open(sqlite.Open(dsn+"?_journal_mode=WAL&_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}

	if err := db.AutoMigrate(&models.Signal{}, &models.Setting{}); err != nil {
		return nil, fmt.Errorf("ошибка миграции схемы: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// CreateSignal сохраняет новый сигнал
func (s *SQLiteStorage) CreateSignal(ctx context.Context, signal *models.Signal) error {
	if err := s.db.WithContext(ctx).Create(signal).Error; err != nil {
		return fmt.Errorf("ошибка сохранения сигнала: %w", err)
	}
	return nil
}

// UpdateSignal записывает изменения существующего сигнала
func (s *SQLiteStorage) UpdateSignal(ctx context.Context, signal *models.Signal) error {
	if err := s.db.WithContext(ctx).Save(signal).Error; err != nil {
		return fmt.Errorf("ошибка обновления сигнала %d: %w", signal.ID, err)
	}
	return nil
}

// PendingSignals возвращает сигналы без результата, исполненные до before
func (s *SQLiteStorage) PendingSignals(ctx context.Context, before time.Time) ([]models.Signal, error) {
	var signals []models.Signal
	err := s.db.WithContext(ctx).
		Where("result IS NULL AND executed_at < ?", before).
		Order("executed_at").
		Find(&signals).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки ожидающих сигналов: %w", err)
	}
	return signals, nil
}

// LatestSignals возвращает последние сигналы, новые первыми
func (s *SQLiteStorage) LatestSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	if limit <= 0 {
		limit = 20
	}

	var signals []models.Signal
	err := s.db.WithContext(ctx).
		Order("sent_at DESC").
		Limit(limit).
		Find(&signals).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки сигналов: %w", err)
	}
	return signals, nil
}

// SignalByID возвращает сигнал по идентификатору
func (s *SQLiteStorage) SignalByID(ctx context.Context, id uint) (*models.Signal, error) {
	var signal models.Signal
	err := s.db.WithContext(ctx).First(&signal, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("сигнал %d не найден", id)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки сигнала %d: %w", id, err)
	}
	return &signal, nil
}

// Settings возвращает единственную запись настроек
func (s *SQLiteStorage) Settings(ctx context.Context) (*models.Setting, error) {
	var setting models.Setting
	err := s.db.WithContext(ctx).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки настроек: %w", err)
	}
	return &setting, nil
}

// SaveSettings сохраняет настройки
func (s *SQLiteStorage) SaveSettings(ctx context.Context, settings *models.Setting) error {
	if err := s.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("ошибка сохранения настроек: %w", err)
	}
	return nil
}

// EnsureSettings создает запись настроек из конфигурации, если базы
// еще нет, и возвращает действующую запись
func (s *SQLiteStorage) EnsureSettings(ctx context.Context, cfg *config.Config) (*models.Setting, error) {
	setting, err := s.Settings(ctx)
	if err == nil {
		return setting, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	symbols := ""
	for i, sym := range cfg.Trading.Symbols {
		if i > 0 {
			symbols += ","
		}
		symbols += sym
	}

	setting = &models.Setting{
		TelegramToken:          cfg.Telegram.Token,
		TelegramChatID:         cfg.Telegram.ChatID,
		MarketAPIKey:           cfg.Binance.APIKey,
		SignalTimeBeforeCandle: cfg.Analysis.SignalTimeBeforeCandle,
		MinConfidenceThreshold: cfg.Analysis.MinConfidenceThreshold,
		TradingTimeframe:       cfg.Trading.Interval,
		ActiveSymbols:          symbols,
		ActiveStatus:           false,
	}
	if err := s.SaveSettings(ctx, setting); err != nil {
		return nil, err
	}
	return setting, nil
}

// Close закрывает соединение с базой данных
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
