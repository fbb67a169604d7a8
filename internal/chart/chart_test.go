package chart

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermesquantum/signalbot/pkg/models"
)

func testFrame(n int) *models.IndicatorFrame {
	f := &models.IndicatorFrame{
		Candles:    make([]models.Candle, n),
		RSI:        make([]float64, n),
		MACD:       make([]float64, n),
		MACDSignal: make([]float64, n),
		MACDHist:   make([]float64, n),
		EMA50:      make([]float64, n),
		BBUpper:    make([]float64, n),
		BBMiddle:   make([]float64, n),
		BBLower:    make([]float64, n),
		ATR:        make([]float64, n),
		VolumeMA:   make([]float64, n),
	}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := 1.1 + 0.0001*float64(i)
		f.Candles[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     price, High: price + 0.0002, Low: price - 0.0002, Close: price + 0.0001,
			Volume: 100,
		}
		f.EMA50[i] = price
		f.BBUpper[i] = price + 0.001
		f.BBMiddle[i] = price
		f.BBLower[i] = price - 0.001
	}
	// Разогрев индикаторов: ведущие NaN не должны ломать отрисовку
	for i := 0; i < 19 && i < n; i++ {
		f.BBUpper[i] = math.NaN()
		f.BBMiddle[i] = math.NaN()
		f.BBLower[i] = math.NaN()
	}
	return f
}

func TestGenerateWritesPNG(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(dir)

	signal := &models.Signal{
		ID:                7,
		Symbol:            "EUR/USD",
		Timeframe:         "1m",
		Direction:         models.DirectionBuy,
		Confidence:        85,
		WinRatePrediction: 80,
	}

	path, err := g.Generate(testFrame(100), signal)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "signal_7_EUR_USD.png"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestGenerateEmptyFrame(t *testing.T) {
	g := NewGenerator(t.TempDir())

	_, err := g.Generate(&models.IndicatorFrame{}, &models.Signal{ID: 1, Symbol: "EUR/USD"})
	assert.Error(t, err)
}

func TestGenerateShortFrame(t *testing.T) {
	g := NewGenerator(t.TempDir())

	signal := &models.Signal{ID: 2, Symbol: "GBP/USD", Direction: models.DirectionSell}
	path, err := g.Generate(testFrame(10), signal)
	require.NoError(t, err)
	assert.FileExists(t, path)
}
