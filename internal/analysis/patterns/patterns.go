// Package patterns классифицирует свечные паттерны по последним свечам.
package patterns

import (
	"math"

	"github.com/hermesquantum/signalbot/pkg/models"
)

// Метки паттернов в том виде, в котором они уходят в ленту сигналов
const (
	PatternUnknown          = "Unknown Pattern"
	PatternHammer           = "Hammer Rebound AI-classified"
	PatternShootingStar     = "Shooting Star Pattern"
	PatternBullishEngulfing = "Bullish Engulfing Pattern"
	PatternBearishEngulfing = "Bearish Engulfing Pattern"
	PatternDoji             = "Doji Pattern (indecision)"
	PatternBullishMarubozu  = "Bullish Marubozu (strong buyers)"
	PatternBearishMarubozu  = "Bearish Marubozu (strong sellers)"
	PatternInsideBar        = "Inside Bar Pattern"
	PatternThreeSoldiers    = "Three White Soldiers Pattern"
	PatternBullish          = "Bullish Candle"
	PatternBearish          = "Bearish Candle"
)

// Classify определяет свечной паттерн по последним трем свечам серии.
// Правила проверяются в фиксированном порядке, пороги подобраны
// совместно, порядок менять нельзя. Первое совпадение побеждает.
func Classify(candles []models.Candle) string {
	if len(candles) < 3 {
		return PatternUnknown
	}

	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	third := candles[len(candles)-3]

	lastBody := math.Abs(last.Close - last.Open)
	lastRange := last.High - last.Low
	prevBody := math.Abs(prev.Close - prev.Open)

	upperShadow := last.High - math.Max(last.Open, last.Close)
	lowerShadow := math.Min(last.Open, last.Close) - last.Low

	// Hammer: бычий разворот с длинной нижней тенью
	if last.Bullish() &&
		lastBody < 0.3*lastRange &&
		upperShadow < 0.2*lastRange &&
		lowerShadow > 0.6*lastRange {
		return PatternHammer
	}

	// Shooting Star: медвежий разворот с длинной верхней тенью
	if !last.Bullish() &&
		lastBody < 0.3*lastRange &&
		upperShadow > 0.6*lastRange &&
		lowerShadow < 0.2*lastRange {
		return PatternShootingStar
	}

	// Engulfing: тело последней свечи поглощает предыдущую
	if last.Bullish() && !prev.Bullish() &&
		lastBody > prevBody &&
		last.Open < prev.Close && last.Close > prev.Open {
		return PatternBullishEngulfing
	}
	if !last.Bullish() && prev.Bullish() &&
		lastBody > prevBody &&
		last.Open > prev.Close && last.Close < prev.Open {
		return PatternBearishEngulfing
	}

	// Doji: нерешительность, тело меньше 10% диапазона
	if lastBody < 0.1*lastRange {
		return PatternDoji
	}

	// Marubozu: тело больше 80% диапазона, сильный тренд
	if lastBody > 0.8*lastRange {
		if last.Bullish() {
			return PatternBullishMarubozu
		}
		return PatternBearishMarubozu
	}

	// Inside Bar: консолидация внутри диапазона предыдущей свечи
	if last.High < prev.High && last.Low > prev.Low {
		return PatternInsideBar
	}

	// Three White Soldiers: три подряд растущие бычьи свечи
	if last.Bullish() && prev.Bullish() && third.Bullish() &&
		last.Close > prev.Close && prev.Close > third.Close &&
		last.Open > prev.Open && prev.Open > third.Open {
		return PatternThreeSoldiers
	}

	if last.Bullish() {
		return PatternBullish
	}
	return PatternBearish
}
