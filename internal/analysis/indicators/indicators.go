// Package indicators рассчитывает технические индикаторы по свечам.
// Все функции детерминированы и не имеют состояния; значения до
// окончания периода разогрева равны NaN.
package indicators

import (
	"fmt"
	"math"

	"github.com/hermesquantum/signalbot/pkg/models"
)

// Стандартные периоды индикаторов
const (
	RSIPeriod      = 14
	MACDFast       = 12
	MACDSlow       = 26
	MACDSignalSpan = 9
	EMAPeriod      = 50
	BBPeriod       = 20
	BBStdDev       = 2.0
	ATRPeriod      = 14
	VolumeMAPeriod = 20
)

// Compute рассчитывает полный набор индикаторов для серии свечей
func Compute(candles []models.Candle) (*models.IndicatorFrame, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("пустая серия свечей")
	}

	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)

	for i, c := range candles {
		if c.High < c.Low {
			return nil, fmt.Errorf("некорректная свеча на позиции %d: high < low", i)
		}
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	macd, macdSignal, macdHist := MACD(closes, MACDFast, MACDSlow, MACDSignalSpan)
	bbUpper, bbMiddle, bbLower := BollingerBands(closes, BBPeriod, BBStdDev)

	frame := &models.IndicatorFrame{
		Candles:    candles,
		RSI:        RSI(closes, RSIPeriod),
		MACD:       macd,
		MACDSignal: macdSignal,
		MACDHist:   macdHist,
		EMA50:      EMA(closes, EMAPeriod),
		BBUpper:    bbUpper,
		BBMiddle:   bbMiddle,
		BBLower:    bbLower,
		ATR:        ATR(highs, lows, closes, ATRPeriod),
		VolumeMA:   SMA(volumes, VolumeMAPeriod),
	}
	return frame, nil
}

// RSI рассчитывает Relative Strength Index по скользящему среднему
// приростов и потерь. Конвенция деления на ноль: avg_loss = 0 при
// avg_gain > 0 дает 100, оба нуля дают 50.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	result := nanSlice(n)
	if n < period+1 {
		return result
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	// Первое определенное значение появляется, когда окно целиком покрыто дельтами
	for i := period; i < n; i++ {
		var avgGain, avgLoss float64
		for j := i - period + 1; j <= i; j++ {
			avgGain += gains[j]
			avgLoss += losses[j]
		}
		avgGain /= float64(period)
		avgLoss /= float64(period)

		switch {
		case avgLoss == 0 && avgGain == 0:
			result[i] = 50
		case avgLoss == 0:
			result[i] = 100
		default:
			rs := avgGain / avgLoss
			result[i] = 100 - 100/(1+rs)
		}
	}
	return result
}

// EMA рассчитывает экспоненциальное скользящее среднее.
// Рекуррентная форма с alpha = 2/(period+1), затравка первым значением.
func EMA(values []float64, period int) []float64 {
	n := len(values)
	result := make([]float64, n)
	if n == 0 {
		return result
	}

	alpha := 2.0 / (float64(period) + 1.0)
	result[0] = values[0]
	for i := 1; i < n; i++ {
		result[i] = alpha*values[i] + (1-alpha)*result[i-1]
	}
	return result
}

// MACD рассчитывает линию MACD, сигнальную линию и гистограмму
func MACD(closes []float64, fast, slow, signal int) (macd, signalLine, hist []float64) {
	n := len(closes)
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)

	macd = make([]float64, n)
	for i := 0; i < n; i++ {
		macd[i] = emaFast[i] - emaSlow[i]
	}

	signalLine = EMA(macd, signal)

	hist = make([]float64, n)
	for i := 0; i < n; i++ {
		hist[i] = macd[i] - signalLine[i]
	}
	return macd, signalLine, hist
}

// SMA рассчитывает простое скользящее среднее
func SMA(values []float64, period int) []float64 {
	n := len(values)
	result := nanSlice(n)
	if n < period {
		return result
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += values[i]
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			result[i] = sum / float64(period)
		}
	}
	return result
}

// BollingerBands рассчитывает полосы Боллинджера.
// Стандартное отклонение выборочное (n-1).
func BollingerBands(closes []float64, period int, stdDev float64) (upper, middle, lower []float64) {
	n := len(closes)
	middle = SMA(closes, period)
	upper = nanSlice(n)
	lower = nanSlice(n)

	for i := period - 1; i < n; i++ {
		mean := middle[i]
		var sqSum float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			sqSum += d * d
		}
		sd := math.Sqrt(sqSum / float64(period-1))
		upper[i] = mean + stdDev*sd
		lower[i] = mean - stdDev*sd
	}
	return upper, middle, lower
}

// ATR рассчитывает Average True Range скользящим средним истинного
// диапазона. На первой свече истинный диапазон равен high-low.
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := len(highs)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := highs[i] - lows[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return SMA(tr, period)
}

// Mean возвращает среднее последних count значений среза либо NaN,
// если данных не хватает или среди них есть NaN
func Mean(values []float64, count int) float64 {
	n := len(values)
	if count <= 0 || n < count {
		return math.NaN()
	}
	var sum float64
	for i := n - count; i < n; i++ {
		if math.IsNaN(values[i]) {
			return math.NaN()
		}
		sum += values[i]
	}
	return sum / float64(count)
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
