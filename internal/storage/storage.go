// Package storage хранит сигналы и настройки бота
package storage

import (
	"context"
	"time"

	"github.com/hermesquantum/signalbot/pkg/models"
)

// Storage интерфейс для работы с хранилищем сигналов и настроек
type Storage interface {
	// Методы для сигналов
	CreateSignal(ctx context.Context, signal *models.Signal) error
	UpdateSignal(ctx context.Context, signal *models.Signal) error
	// PendingSignals возвращает сигналы без результата,
	// чье время исполнения раньше before
	PendingSignals(ctx context.Context, before time.Time) ([]models.Signal, error)
	LatestSignals(ctx context.Context, limit int) ([]models.Signal, error)
	SignalByID(ctx context.Context, id uint) (*models.Signal, error)

	// Методы для настроек
	Settings(ctx context.Context) (*models.Setting, error)
	SaveSettings(ctx context.Context, settings *models.Setting) error

	Close() error
}
