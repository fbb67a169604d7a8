package market

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hermesquantum/signalbot/pkg/logger"
	"github.com/hermesquantum/signalbot/pkg/models"
)

// FallbackProvider оборачивает основной источник и при первой же его
// ошибке залипает на синтетическом генераторе. Повторных попыток нет,
// чтобы не дергать отказавший источник на каждом тике; смена ключа API
// через SetAPIKey сбрасывает залипание.
type FallbackProvider struct {
	primary   Provider
	synthetic *SyntheticProvider

	mu       sync.RWMutex
	degraded bool
}

// NewFallbackProvider создает обертку над основным источником.
// При primary == nil провайдер сразу работает на синтетике.
func NewFallbackProvider(primary Provider, synthetic *SyntheticProvider) *FallbackProvider {
	return &FallbackProvider{
		primary:   primary,
		synthetic: synthetic,
		degraded:  primary == nil,
	}
}

// Degraded сообщает, работает ли провайдер на синтетических данных
func (p *FallbackProvider) Degraded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.degraded
}

// SetAPIKey пробрасывает новый ключ в основной источник и дает ему
// второй шанс
func (p *FallbackProvider) SetAPIKey(key, secret string) {
	if p.primary == nil {
		return
	}
	if r, ok := p.primary.(Reconfigurer); ok {
		r.SetAPIKey(key, secret)
	}

	p.mu.Lock()
	if p.degraded {
		logger.Info("Ключ API обновлен, возвращаемся к реальному источнику данных")
	}
	p.degraded = false
	p.mu.Unlock()
}

// HistoricalCandles реализует Provider
func (p *FallbackProvider) HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	if !p.Degraded() {
		candles, err := p.primary.HistoricalCandles(ctx, symbol, interval, limit)
		if err == nil {
			return candles, nil
		}
		p.degrade(err)
	}
	return p.synthetic.HistoricalCandles(ctx, symbol, interval, limit)
}

// CandleByTime реализует Provider. Отсутствие конкретной свечи не
// признак отказа источника: свеча синтезируется, лента остается живой.
func (p *FallbackProvider) CandleByTime(ctx context.Context, symbol, interval string, at time.Time) (models.Candle, error) {
	if !p.Degraded() {
		candle, err := p.primary.CandleByTime(ctx, symbol, interval, at)
		if err == nil {
			return candle, nil
		}
		if errors.Is(err, ErrCandleNotFound) {
			return p.synthetic.CandleByTime(ctx, symbol, interval, at)
		}
		p.degrade(err)
	}
	return p.synthetic.CandleByTime(ctx, symbol, interval, at)
}

func (p *FallbackProvider) degrade(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.degraded {
		return
	}
	p.degraded = true
	logger.Warn("Источник рыночных данных недоступен, переходим на синтетические данные",
		zap.Error(err))
}
