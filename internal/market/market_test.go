package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermesquantum/signalbot/internal/config"
	"github.com/hermesquantum/signalbot/pkg/models"
)

// stubProvider управляемый источник данных для тестов
type stubProvider struct {
	candles   []models.Candle
	err       error
	calls     int
	lastKey   string
	byTimeErr error
}

func (s *stubProvider) HistoricalCandles(_ context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.candles, nil
}

func (s *stubProvider) CandleByTime(_ context.Context, symbol, interval string, at time.Time) (models.Candle, error) {
	s.calls++
	if s.byTimeErr != nil {
		return models.Candle{}, s.byTimeErr
	}
	if len(s.candles) > 0 {
		return s.candles[0], nil
	}
	return models.Candle{}, errors.New("нет данных")
}

func (s *stubProvider) SetAPIKey(key, secret string) {
	s.lastKey = key
}

func TestSyntheticProviderProperties(t *testing.T) {
	p := NewSyntheticProvider(42)

	candles, err := p.HistoricalCandles(context.Background(), "EUR/USD", "1m", 100)
	require.NoError(t, err)
	require.Len(t, candles, 100)

	for i, c := range candles {
		assert.GreaterOrEqual(t, c.High, c.Open, "свеча %d", i)
		assert.GreaterOrEqual(t, c.High, c.Close, "свеча %d", i)
		assert.LessOrEqual(t, c.Low, c.Open, "свеча %d", i)
		assert.LessOrEqual(t, c.Low, c.Close, "свеча %d", i)
		assert.Greater(t, c.Volume, 0.0, "свеча %d", i)

		if i > 0 {
			assert.True(t, c.OpenTime.After(candles[i-1].OpenTime), "время должно строго расти")
			// Цена непрерывна: открытие равно закрытию предыдущей свечи
			assert.InDelta(t, candles[i-1].Close, c.Open, 1e-9)
		}
	}

	// Базовая цена пары с USD в правдоподобном диапазоне
	assert.Greater(t, candles[0].Open, 1.0)
	assert.Less(t, candles[0].Open, 1.5)
}

func TestSyntheticProviderBasePriceBySymbol(t *testing.T) {
	p := NewSyntheticProvider(7)

	candles, err := p.HistoricalCandles(context.Background(), "USD/JPY", "1m", 1)
	require.NoError(t, err)
	assert.Greater(t, candles[0].Open, 100.0)

	candles, err = p.HistoricalCandles(context.Background(), "BTC/EUR", "1m", 1)
	require.NoError(t, err)
	assert.Greater(t, candles[0].Open, 30000.0)
}

func TestSyntheticProviderCandleByTime(t *testing.T) {
	p := NewSyntheticProvider(1)

	at := time.Now().Truncate(time.Minute).Add(-5 * time.Minute)
	candle, err := p.CandleByTime(context.Background(), "EUR/USD", "1m", at)
	require.NoError(t, err)
	assert.Equal(t, at.Unix(), candle.OpenTime.Unix())
}

func TestFallbackProviderSticky(t *testing.T) {
	primary := &stubProvider{err: errors.New("источник недоступен")}
	fb := NewFallbackProvider(primary, NewSyntheticProvider(3))

	ctx := context.Background()

	candles, err := fb.HistoricalCandles(ctx, "EUR/USD", "1m", 50)
	require.NoError(t, err)
	assert.Len(t, candles, 50)
	assert.True(t, fb.Degraded())
	assert.Equal(t, 1, primary.calls)

	// Повторные вызовы к отказавшему источнику не ходят
	_, err = fb.HistoricalCandles(ctx, "EUR/USD", "1m", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)

	_, err = fb.CandleByTime(ctx, "EUR/USD", "1m", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
}

func TestFallbackProviderResetOnAPIKeyChange(t *testing.T) {
	primary := &stubProvider{err: errors.New("источник недоступен")}
	fb := NewFallbackProvider(primary, NewSyntheticProvider(3))

	_, err := fb.HistoricalCandles(context.Background(), "EUR/USD", "1m", 10)
	require.NoError(t, err)
	require.True(t, fb.Degraded())

	primary.err = nil
	primary.candles = []models.Candle{{Symbol: "EUR/USD", Close: 1.1}}
	fb.SetAPIKey("new-key", "")

	assert.False(t, fb.Degraded())
	assert.Equal(t, "new-key", primary.lastKey)

	candles, err := fb.HistoricalCandles(context.Background(), "EUR/USD", "1m", 10)
	require.NoError(t, err)
	assert.Equal(t, primary.candles, candles)
}

func TestFallbackProviderHealthyPrimary(t *testing.T) {
	primary := &stubProvider{candles: []models.Candle{{Symbol: "EUR/USD", Close: 1.2}}}
	fb := NewFallbackProvider(primary, NewSyntheticProvider(3))

	candles, err := fb.HistoricalCandles(context.Background(), "EUR/USD", "1m", 10)
	require.NoError(t, err)
	assert.Equal(t, primary.candles, candles)
	assert.False(t, fb.Degraded())
}

func TestCachingProviderMiss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	inner := &stubProvider{candles: []models.Candle{{Symbol: "EUR/USD", Close: 1.1}}}
	c := NewCachingProvider(rdb, 3*time.Second, inner)

	key := c.cacheKey("EUR/USD", "1m", 100)
	payload, err := json.Marshal(inner.candles)
	require.NoError(t, err)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, payload, 3*time.Second).SetVal("OK")

	out, err := c.HistoricalCandles(context.Background(), "EUR/USD", "1m", 100)
	require.NoError(t, err)
	assert.Equal(t, inner.candles, out)
	assert.Equal(t, 1, inner.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingProviderHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	inner := &stubProvider{candles: []models.Candle{{Symbol: "EUR/USD", Close: 1.1}}}
	c := NewCachingProvider(rdb, 3*time.Second, inner)

	cached := []models.Candle{{Symbol: "EUR/USD", Close: 1.25}}
	payload, err := json.Marshal(cached)
	require.NoError(t, err)

	mock.ExpectGet(c.cacheKey("EUR/USD", "1m", 100)).SetVal(string(payload))

	out, err := c.HistoricalCandles(context.Background(), "EUR/USD", "1m", 100)
	require.NoError(t, err)
	assert.Equal(t, cached[0].Close, out[0].Close)
	assert.Equal(t, 0, inner.calls, "при попадании в кеш источник не вызывается")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingProviderNilRedis(t *testing.T) {
	inner := &stubProvider{candles: []models.Candle{{Symbol: "EUR/USD"}}}
	c := NewCachingProvider(nil, 0, inner)

	out, err := c.HistoricalCandles(context.Background(), "EUR/USD", "1m", 100)
	require.NoError(t, err)
	assert.Equal(t, inner.candles, out)
	assert.Equal(t, 1, inner.calls)
}

func TestFallbackProviderNotFoundCandleDoesNotDegrade(t *testing.T) {
	primary := &stubProvider{
		candles: []models.Candle{{Symbol: "EUR/USD", Close: 1.2}},
		byTimeErr: fmt.Errorf("свеча EUR/USD 1m за 2025-06-01T12:31:00Z: %w",
			ErrCandleNotFound),
	}
	fb := NewFallbackProvider(primary, NewSyntheticProvider(11))

	ctx := context.Background()
	at := time.Now().Truncate(time.Minute).Add(-3 * time.Hour)

	// Пропавшая свеча синтезируется, лента не списывается
	candle, err := fb.CandleByTime(ctx, "EUR/USD", "1m", at)
	require.NoError(t, err)
	assert.Equal(t, at.Unix(), candle.OpenTime.Unix())
	assert.False(t, fb.Degraded())

	// Здоровая историческая лента по-прежнему идет из основного источника
	candles, err := fb.HistoricalCandles(ctx, "EUR/USD", "1m", 10)
	require.NoError(t, err)
	assert.Equal(t, primary.candles, candles)
	assert.False(t, fb.Degraded())
}

func TestFallbackProviderTransportErrorOnCandleDegrades(t *testing.T) {
	primary := &stubProvider{
		candles:   []models.Candle{{Symbol: "EUR/USD", Close: 1.2}},
		byTimeErr: errors.New("источник недоступен"),
	}
	fb := NewFallbackProvider(primary, NewSyntheticProvider(11))

	_, err := fb.CandleByTime(context.Background(), "EUR/USD", "1m", time.Now())
	require.NoError(t, err)
	assert.True(t, fb.Degraded())
}

func TestNewBinanceClient(t *testing.T) {
	c := NewBinanceClient(config.BinanceConfig{APIKey: "key", APISecret: "secret", Testnet: true})
	require.NotNil(t, c)
	require.NotNil(t, c.client())

	// Смена ключа пересоздает клиент
	old := c.client()
	c.SetAPIKey("key2", "secret2")
	assert.NotSame(t, old, c.client())
}

func TestFormatSymbol(t *testing.T) {
	assert.Equal(t, "EURUSD", formatSymbol("EUR/USD"))
	assert.Equal(t, "BTCUSDT", formatSymbol("BTCUSDT"))
}
