// Package detector применяет каскад правил к фрейму с индикаторами
// и решает, есть ли торговый сигнал и в какую сторону.
//
// Каскад оформлен как упорядоченный список правил с явными режимами
// комбинирования (rules.go), что делает приоритеты проверяемыми.
package detector

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hermesquantum/signalbot/internal/analysis/patterns"
	"github.com/hermesquantum/signalbot/internal/analysis/scoring"
	"github.com/hermesquantum/signalbot/pkg/models"
)

// MinCandles минимум свечей для осмысленного каскада
const MinCandles = 5

// Detector детектор сигналов. Чистая функция от (фрейм, настройки),
// собственного состояния между вызовами не имеет.
type Detector struct {
	scorer scoring.Scorer
}

// New создает детектор с заданным скорером
func New(scorer scoring.Scorer) *Detector {
	return &Detector{scorer: scorer}
}

// Detect прогоняет каскад правил по фрейму. Возвращает nil, если
// направление не определилось или уверенность ниже порога из настроек.
func (d *Detector) Detect(frame *models.IndicatorFrame, settings *models.Setting, now time.Time) *models.SignalCandidate {
	n := frame.Len()
	if n < MinCandles {
		return nil
	}

	last := n - 1
	prev := n - 2

	var c cascade

	rsiOutcome := evalRSI(frame, last, prev)
	c.apply(rsiOutcome)

	macdOutcome := evalMACD(frame, last, prev)
	c.apply(macdOutcome)

	emaOutcome := evalEMA(frame, last, prev)
	c.apply(emaOutcome)

	bbOutcome := evalBollinger(frame, last, prev)
	c.apply(bbOutcome)

	if c.direction == "" {
		c.apply(evalMomentum(frame, last))
	}
	if c.direction == "" {
		return nil
	}

	price := frame.Candles[last].Close

	// Волатильность: текущий ATR против среднего ATR за 14 периодов,
	// шкала 0-10. Пока окно среднего не заполнено, берем нейтральные 5.0.
	volatility := 5.0
	if avgATR := tailMean(frame.ATR, 14); !math.IsNaN(avgATR) && avgATR > 0 {
		volatility = math.Min(round1(frame.ATR[last]/avgATR*5), 10)
	}

	// Сила по объему: последние 5 свечей против MA-20 объема
	var volumeSum float64
	for i := n - 5; i < n; i++ {
		volumeSum += frame.Candles[i].Volume
	}
	volumeRatio := volumeSum / (5 * frame.VolumeMA[last])
	strengthByVolume := math.Min(round1(volumeRatio*100), 100)
	volumeAnalysis := fmt.Sprintf("Surge %d%% vs MA-20 volume", int(math.Round(volumeRatio*100)))

	// Давление цены за последние 3 свечи
	price3Ago := frame.Candles[n-3].Close
	pricePressure := round2((price - price3Ago) / price3Ago * 100)

	microtrend := microtrendLabel(frame, c.direction, last, prev)
	pattern := patterns.Classify(frame.Candles)

	confidence := confidenceScore(c.direction, rsiOutcome.analysis, macdOutcome.analysis,
		emaOutcome.analysis, bbOutcome.analysis, volumeRatio)
	if confidence < float64(settings.MinConfidenceThreshold) {
		return nil
	}

	winRate := winRatePrediction(confidence, volatility, strengthByVolume, pricePressure, microtrend)

	// Оценка обучаемого скорера сохраняется как справочная,
	// гейт по уверенности она не подменяет
	mlWin, _ := d.scorer.Score(models.FeatureVector{
		RSI:           frame.RSI[last],
		MACDHist:      frame.MACD[last] - frame.MACDSignal[last],
		EMADiffPct:    (price - frame.EMA50[last]) / price * 100,
		BBPosition:    (price - frame.BBLower[last]) / (frame.BBUpper[last] - frame.BBLower[last]),
		Volatility:    volatility,
		VolumeRatio:   volumeRatio,
		PricePressure: pricePressure,
		IsBuy:         c.direction == models.DirectionBuy,
	})

	return &models.SignalCandidate{
		Direction:         c.direction,
		ExecutedAt:        now.Truncate(time.Minute).Add(time.Minute),
		Reasons:           c.reasons,
		Volatility:        volatility,
		StrengthByVolume:  strengthByVolume,
		PricePressure:     pricePressure,
		Microtrend:        microtrend,
		RSI:               round1(frame.RSI[last]),
		RSIAnalysis:       rsiOutcome.analysis,
		MACDAnalysis:      macdOutcome.analysis,
		EMAAnalysis:       emaOutcome.analysis,
		BollingerAnalysis: bbOutcome.analysis,
		VolumeAnalysis:    volumeAnalysis,
		CandlePattern:     pattern,
		Confidence:        confidence,
		WinRatePrediction: winRate,
		MLWinProbability:  mlWin,
		RiskLevel:         riskLevel(winRate),
	}
}

// confidenceScore пять факторов с весами {1, 0.8, 0.7, 0.5},
// усредненных и приведенных к шкале 0-100
func confidenceScore(direction models.Direction, rsiAnalysis, macdAnalysis, emaAnalysis, bbAnalysis string, volumeRatio float64) float64 {
	rsiFactor := 0.5
	rsiLower := strings.ToLower(rsiAnalysis)
	if (strings.Contains(rsiLower, "oversold") && direction == models.DirectionBuy) ||
		(strings.Contains(rsiLower, "overbought") && direction == models.DirectionSell) {
		rsiFactor = 1
	}

	macdFactor := 0.7
	if strings.Contains(strings.ToLower(macdAnalysis), "cross") {
		macdFactor = 1
	}

	emaFactor := 0.7
	if strings.Contains(strings.ToLower(emaAnalysis), "break") {
		emaFactor = 1
	}

	bbFactor := 0.7
	if strings.Contains(strings.ToLower(bbAnalysis), "break") {
		bbFactor = 1
	}

	volumeFactor := 0.5
	if volumeRatio > 1.2 {
		volumeFactor = 0.8
	}

	avg := (rsiFactor + macdFactor + emaFactor + bbFactor + volumeFactor) / 5
	return math.Min(round1(avg*100), 100)
}

// winRatePrediction пять факторов успеха, усредненных к шкале 0-100
func winRatePrediction(confidence, volatility, strengthByVolume, pricePressure float64, microtrend string) float64 {
	factors := []float64{
		confidence / 100,
		gradeFactor(volatility > 6),
		gradeFactor(strengthByVolume > 80),
		gradeFactor(math.Abs(pricePressure) > 0.5),
		gradeFactor(strings.Contains(microtrend, "confirmed")),
	}

	var sum float64
	for _, f := range factors {
		sum += f
	}
	return math.Min(round1(sum/float64(len(factors))*100), 100)
}

func gradeFactor(favorable bool) float64 {
	if favorable {
		return 0.9
	}
	return 0.7
}

// riskLevel уровень риска по прогнозу win rate
func riskLevel(winRate float64) string {
	switch {
	case winRate > 90:
		return models.RiskVeryLow
	case winRate > 80:
		return models.RiskLow
	case winRate > 70:
		return models.RiskMedium
	case winRate > 60:
		return models.RiskHigh
	default:
		return models.RiskVeryHigh
	}
}

// microtrendLabel структура микротренда относительно предыдущей свечи
func microtrendLabel(f *models.IndicatorFrame, direction models.Direction, last, prev int) string {
	if direction == models.DirectionBuy {
		if f.Candles[last].Low > f.Candles[prev].Low {
			return "Higher low confirmed"
		}
		return "Potential reversal point"
	}
	if f.Candles[last].High < f.Candles[prev].High {
		return "Lower high confirmed"
	}
	return "Potential reversal point"
}

// tailMean среднее последних count значений; NaN, если окно не заполнено
func tailMean(values []float64, count int) float64 {
	if len(values) < count {
		return math.NaN()
	}
	var sum float64
	for _, v := range values[len(values)-count:] {
		if math.IsNaN(v) {
			return math.NaN()
		}
		sum += v
	}
	return sum / float64(count)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
