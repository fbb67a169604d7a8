package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/hermesquantum/signalbot/internal/config"
	"github.com/hermesquantum/signalbot/pkg/models"
)

// BinanceClient провайдер свечей на базе спот-API Binance
type BinanceClient struct {
	mu   sync.RWMutex
	spot *binance.Client

	testnet bool
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) *BinanceClient {
	client := &BinanceClient{testnet: cfg.Testnet}
	client.configure(cfg.APIKey, cfg.APISecret)
	return client
}

func (c *BinanceClient) configure(apiKey, apiSecret string) {
	spot := binance.NewClient(apiKey, apiSecret)
	if c.testnet {
		spot.SetApiEndpoint("https://testnet.binance.vision")
	}

	c.mu.Lock()
	c.spot = spot
	c.mu.Unlock()
}

// SetAPIKey пересоздает клиент с новым ключом
func (c *BinanceClient) SetAPIKey(key, secret string) {
	c.configure(key, secret)
}

func (c *BinanceClient) client() *binance.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.spot
}

// HistoricalCandles получает исторические свечи
func (c *BinanceClient) HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	klines, err := c.client().NewKlinesService().
		Symbol(formatSymbol(symbol)).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := parseKline(symbol, interval, k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// CandleByTime запрашивает свечу, открытую в момент at.
// Отсутствие свечи заворачивается в ErrCandleNotFound, чтобы вызывающие
// могли отличить его от отказа источника.
func (c *BinanceClient) CandleByTime(ctx context.Context, symbol, interval string, at time.Time) (models.Candle, error) {
	klines, err := c.client().NewKlinesService().
		Symbol(formatSymbol(symbol)).
		Interval(interval).
		StartTime(at.UnixMilli()).
		Limit(1).
		Do(ctx)
	if err != nil {
		return models.Candle{}, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	for _, k := range klines {
		candle, err := parseKline(symbol, interval, k)
		if err != nil {
			return models.Candle{}, err
		}
		if candle.OpenTime.Unix() == at.Unix() {
			return candle, nil
		}
	}
	return models.Candle{}, fmt.Errorf("свеча %s %s за %s: %w",
		symbol, interval, at.Format(time.RFC3339), ErrCandleNotFound)
}

// parseKline числовые поля kline приходят строками
func parseKline(symbol, interval string, k *binance.Kline) (models.Candle, error) {
	values := make([]float64, 0, 5)
	for _, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("ошибка разбора свечи %s: %w", symbol, err)
		}
		values = append(values, v)
	}

	return models.Candle{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  time.Unix(k.OpenTime/1000, 0),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		CloseTime: time.Unix(k.CloseTime/1000, 0),
	}, nil
}

// formatSymbol приводит пару вида EUR/USD к формату биржи
func formatSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}
