// Package market отвечает за получение рыночных данных: реальный
// источник, синтетический генератор и переключение между ними.
package market

import (
	"context"
	"errors"
	"time"

	"github.com/hermesquantum/signalbot/pkg/models"
)

// ErrCandleNotFound свеча за запрошенное время отсутствует у источника.
// Не означает отказ источника: лента может быть полностью здорова.
var ErrCandleNotFound = errors.New("свеча не найдена")

// Provider источник свечей OHLCV
type Provider interface {
	// HistoricalCandles возвращает последние limit свечей по символу
	HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	// CandleByTime возвращает свечу, открытую в момент at
	CandleByTime(ctx context.Context, symbol, interval string, at time.Time) (models.Candle, error)
}

// Reconfigurer провайдер, умеющий сменить ключ API на лету
type Reconfigurer interface {
	SetAPIKey(key, secret string)
}
