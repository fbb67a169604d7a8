package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermesquantum/signalbot/internal/analysis/scoring"
	"github.com/hermesquantum/signalbot/pkg/models"
)

func testSettings() *models.Setting {
	return &models.Setting{
		MinConfidenceThreshold: 75,
		SignalTimeBeforeCandle: 10,
		TradingTimeframe:       "1m",
	}
}

// flatFrame фрейм без какого-либо тренда: все правила молчат
func flatFrame(n int) *models.IndicatorFrame {
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
		f.Candles[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     1.0, High: 1.001, Low: 0.999, Close: 1.0,
			Volume: 100,
		}
		f.RSI[i] = 50
		f.EMA50[i] = 1.0
		f.BBUpper[i] = 1.05
		f.BBMiddle[i] = 1.0
		f.BBLower[i] = 0.95
		f.ATR[i] = 0.01
		f.VolumeMA[i] = 100
	}
	return f
}

// bullishFrame все бычьи факторы сразу: RSI oversold и растет,
// golden cross MACD, пробой EMA50 вверх, цена на нижней полосе,
// объем 1.6 от среднего
func bullishFrame() *models.IndicatorFrame {
	n := 20
	f := flatFrame(n)
	last, prev := n-1, n-2

	f.RSI[prev] = 20
	f.RSI[last] = 25

	f.MACD[prev], f.MACDSignal[prev] = 0.2, 0.25
	f.MACD[last], f.MACDSignal[last] = 0.5, 0.3

	f.EMA50[prev] = 0.985
	f.EMA50[last] = 0.99
	f.Candles[prev].Close = 0.98
	f.Candles[last].Close = 1.0

	// Цена ровно на нижней полосе
	f.BBLower[last] = 1.0
	f.BBMiddle[last] = 1.1
	f.BBUpper[last] = 1.2

	// Давление цены ~1% за 3 свечи
	f.Candles[n-3].Close = 0.99

	// Higher low
	f.Candles[prev].Low = 0.975
	f.Candles[last].Low = 0.995

	// Объем последних 5 свечей в 1.6 раза выше MA-20
	for i := n - 5; i < n; i++ {
		f.Candles[i].Volume = 160
	}
	return f
}

func TestDetectAllBullishFactors(t *testing.T) {
	d := New(&scoring.HeuristicScorer{})
	now := time.Date(2025, 6, 1, 12, 30, 55, 0, time.UTC)

	c := d.Detect(bullishFrame(), testSettings(), now)
	require.NotNil(t, c)

	assert.Equal(t, models.DirectionBuy, c.Direction)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 31, 0, 0, time.UTC), c.ExecutedAt)

	// Факторы: RSI oversold+BUY=1, cross=1, break EMA=1, break BB=1, volume 1.6>1.2=0.8
	assert.Equal(t, 96.0, c.Confidence)
	assert.GreaterOrEqual(t, c.Confidence, 80.0)

	assert.Equal(t, "Oversold, potential bullish reversal", c.RSIAnalysis)
	assert.Equal(t, "Cross Up + positive histogram", c.MACDAnalysis)
	assert.Equal(t, "Price break above EMA50", c.EMAAnalysis)
	assert.Equal(t, "Break below lower band + potential bullish reversal", c.BollingerAnalysis)
	assert.Equal(t, "Higher low confirmed", c.Microtrend)
	assert.Equal(t, "Surge 160% vs MA-20 volume", c.VolumeAnalysis)

	assert.Equal(t, 100.0, c.StrengthByVolume)
	assert.Equal(t, 1.01, c.PricePressure)
	assert.Equal(t, 5.0, c.Volatility)
	assert.Equal(t, 25.0, c.RSI)

	// win rate = (0.96 + 0.7 + 0.9 + 0.9 + 0.9) / 5 * 100 = 87.2
	assert.Equal(t, 87.2, c.WinRatePrediction)
	assert.Contains(t, []string{models.RiskVeryLow, models.RiskLow}, c.RiskLevel)
}

func TestDetectFlatFrameReturnsNone(t *testing.T) {
	d := New(&scoring.HeuristicScorer{})
	now := time.Now()

	assert.Nil(t, d.Detect(flatFrame(20), testSettings(), now))
}

func TestDetectConfidenceGate(t *testing.T) {
	d := New(&scoring.HeuristicScorer{})
	now := time.Now()

	settings := testSettings()
	settings.MinConfidenceThreshold = 100

	assert.Nil(t, d.Detect(bullishFrame(), settings, now))
}

func TestDetectTooFewCandles(t *testing.T) {
	d := New(&scoring.HeuristicScorer{})

	assert.Nil(t, d.Detect(flatFrame(4), testSettings(), time.Now()))
}

func TestDetectDeterministic(t *testing.T) {
	d := New(&scoring.HeuristicScorer{})
	now := time.Date(2025, 6, 1, 12, 30, 55, 0, time.UTC)

	first := d.Detect(bullishFrame(), testSettings(), now)
	second := d.Detect(bullishFrame(), testSettings(), now)
	require.NotNil(t, first)
	assert.Equal(t, first, second)
}

func TestDetectMomentumFallback(t *testing.T) {
	d := New(&scoring.HeuristicScorer{})
	now := time.Now()

	// Нейтральные индикаторы, но три строго растущих закрытия
	f := flatFrame(20)
	n := len(f.Candles)
	f.Candles[n-3].Close = 1.0
	f.Candles[n-2].Close = 1.0001
	f.Candles[n-1].Close = 1.0002
	// Дистанция до EMA50 сокращается, правило EMA направления не дает
	f.EMA50[n-2] = 0.9995
	f.EMA50[n-1] = 1.0

	settings := testSettings()
	settings.MinConfidenceThreshold = 0

	c := d.Detect(f, settings, now)
	require.NotNil(t, c)
	assert.Equal(t, models.DirectionBuy, c.Direction)
	assert.Contains(t, c.Reasons, "Upward momentum from last 3 candles")
}

func TestCascadeBandTouchDoesNotOverrideOppositeBias(t *testing.T) {
	var c cascade
	c.apply(ruleOutcome{direction: models.DirectionSell, mode: modeBias})
	c.apply(ruleOutcome{direction: models.DirectionSell, mode: modeAgreeOrUnset})

	// Касание нижней полосы при медвежьем смещении не переворачивает сигнал
	c.apply(ruleOutcome{direction: models.DirectionBuy, mode: modeUnlessOpposite})
	assert.Equal(t, models.DirectionSell, c.direction)

	// Без смещения касание полосы направление задает
	var c2 cascade
	c2.apply(ruleOutcome{direction: models.DirectionBuy, mode: modeUnlessOpposite})
	assert.Equal(t, models.DirectionBuy, c2.direction)
}

func TestCascadeAgreeOrUnset(t *testing.T) {
	var c cascade
	c.apply(ruleOutcome{direction: models.DirectionBuy, mode: modeBias})
	c.apply(ruleOutcome{direction: models.DirectionSell, mode: modeAgreeOrUnset})
	assert.Equal(t, models.DirectionSell, c.direction, "незанятое направление занимает любое правило")

	// Согласное со смещением правило перезаписывает занятое направление
	c.apply(ruleOutcome{direction: models.DirectionBuy, mode: modeAgreeOrUnset})
	assert.Equal(t, models.DirectionBuy, c.direction)

	// Несогласное со смещением правило занятое направление не трогает
	c.apply(ruleOutcome{direction: models.DirectionSell, mode: modeAgreeOrUnset})
	assert.Equal(t, models.DirectionBuy, c.direction)
}
