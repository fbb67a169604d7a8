package storage

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/hermesquantum/signalbot/internal/config"
	"github.com/hermesquantum/signalbot/pkg/models"
)

// Archive архив временных рядов: проанализированные свечи и отправленные
// сигналы для ретроспективного анализа качества. Запись best-effort,
// основное хранилище сигналов от архива не зависит.
type Archive interface {
	ArchiveCandles(ctx context.Context, candles []models.Candle) error
	ArchiveSignal(ctx context.Context, signal *models.Signal) error
	Close()
}

// InfluxArchive реализует Archive поверх InfluxDB
type InfluxArchive struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxArchive создает архив и проверяет соединение
func NewInfluxArchive(cfg config.ArchiveConfig) (*InfluxArchive, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxArchive{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// ArchiveCandles сохраняет свечи в архив
func (a *InfluxArchive) ArchiveCandles(_ context.Context, candles []models.Candle) error {
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"symbol":   candle.Symbol,
				"interval": candle.Interval,
			},
			map[string]interface{}{
				"open":   candle.Open,
				"high":   candle.High,
				"low":    candle.Low,
				"close":  candle.Close,
				"volume": candle.Volume,
			},
			candle.OpenTime,
		)
		a.writeAPI.WritePoint(point)
	}

	a.writeAPI.Flush()
	return nil
}

// ArchiveSignal сохраняет отправленный сигнал в архив
func (a *InfluxArchive) ArchiveSignal(_ context.Context, signal *models.Signal) error {
	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol":    signal.Symbol,
			"direction": string(signal.Direction),
		},
		map[string]interface{}{
			"confidence":          signal.Confidence,
			"win_rate_prediction": signal.WinRatePrediction,
			"volatility":          signal.Volatility,
			"strength_by_volume":  signal.StrengthByVolume,
			"risk_level":          signal.RiskLevel,
		},
		signal.SentAt,
	)

	a.writeAPI.WritePoint(point)
	a.writeAPI.Flush()
	return nil
}

// Close закрывает соединение с архивом
func (a *InfluxArchive) Close() {
	a.client.Close()
}
