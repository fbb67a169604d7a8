package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hermesquantum/signalbot/pkg/models"
)

// CachingProvider декорирует Provider кешем в Redis. Цикл анализа
// опрашивает одни и те же символы каждую секунду, короткий TTL снимает
// большую часть обращений к источнику. Кеш строго best-effort: любая
// ошибка Redis приводит к обычному запросу в источник.
type CachingProvider struct {
	inner Provider
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachingProvider оборачивает провайдер кешем.
// При ttl <= 0 берется 3 секунды.
func NewCachingProvider(rdb *redis.Client, ttl time.Duration, inner Provider) *CachingProvider {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &CachingProvider{inner: inner, rdb: rdb, ttl: ttl}
}

// HistoricalCandles реализует Provider, сперва проверяя кеш
func (c *CachingProvider) HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	if c.rdb == nil {
		return c.inner.HistoricalCandles(ctx, symbol, interval, limit)
	}

	key := c.cacheKey(symbol, interval, limit)
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []models.Candle
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Битую запись выбрасываем
		_ = c.rdb.Del(ctx, key).Err()
	}

	out, err := c.inner.HistoricalCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}
	return out, nil
}

// CandleByTime реализует Provider. Запрос редкий и нуждается в самых
// свежих данных, кеш не используется.
func (c *CachingProvider) CandleByTime(ctx context.Context, symbol, interval string, at time.Time) (models.Candle, error) {
	return c.inner.CandleByTime(ctx, symbol, interval, at)
}

// SetAPIKey пробрасывает смену ключа во внутренний провайдер
func (c *CachingProvider) SetAPIKey(key, secret string) {
	if r, ok := c.inner.(Reconfigurer); ok {
		r.SetAPIKey(key, secret)
	}
}

func (c *CachingProvider) cacheKey(symbol, interval string, limit int) string {
	return fmt.Sprintf("market:candles:%s:%s:%d", symbol, interval, limit)
}
