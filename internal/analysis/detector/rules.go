package detector

import (
	"github.com/hermesquantum/signalbot/pkg/models"
)

// applyMode правило комбинирования исхода с уже накопленным состоянием каскада
type applyMode int

const (
	// modeNone исход не задает направление
	modeNone applyMode = iota
	// modeBias исход задает только смещение, направление не трогает
	modeBias
	// modeAgreeOrUnset направление применяется, если смещение совпадает
	// или направление еще не выбрано
	modeAgreeOrUnset
	// modeUnlessOpposite направление применяется, если смещение
	// не противоположно. Несимметрично относительно modeAgreeOrUnset,
	// порядок и режимы правил согласованы между собой.
	modeUnlessOpposite
)

// ruleOutcome результат одного правила каскада
type ruleOutcome struct {
	direction models.Direction
	mode      applyMode
	analysis  string
	reasons   []string
}

// cascade накапливает состояние по мере применения правил
type cascade struct {
	bias      models.Direction
	direction models.Direction
	reasons   []string
}

// apply вносит исход правила в каскад согласно его режиму
func (c *cascade) apply(o ruleOutcome) {
	c.reasons = append(c.reasons, o.reasons...)

	switch o.mode {
	case modeBias:
		c.bias = o.direction
	case modeAgreeOrUnset:
		if c.bias == o.direction || c.direction == "" {
			c.direction = o.direction
		}
	case modeUnlessOpposite:
		if c.bias != opposite(o.direction) {
			c.direction = o.direction
		}
	}
}

func opposite(d models.Direction) models.Direction {
	if d == models.DirectionBuy {
		return models.DirectionSell
	}
	return models.DirectionBuy
}

// evalRSI классифицирует зону моментума RSI. Смещение выставляется
// только когда движение RSI согласуется с зоной: oversold дает BUY
// лишь при растущем RSI, overbought дает SELL лишь при падающем.
func evalRSI(f *models.IndicatorFrame, last, prev int) ruleOutcome {
	rsi := f.RSI[last]
	rsiPrev := f.RSI[prev]

	switch {
	case rsi < 30:
		if rsi > rsiPrev {
			return ruleOutcome{
				direction: models.DirectionBuy,
				mode:      modeBias,
				analysis:  "Oversold, potential bullish reversal",
				reasons:   []string{"RSI oversold with positive divergence"},
			}
		}
		return ruleOutcome{
			mode:     modeNone,
			analysis: "Oversold, potential bullish reversal",
			reasons:  []string{"RSI oversold but still falling"},
		}
	case rsi > 70:
		if rsi < rsiPrev {
			return ruleOutcome{
				direction: models.DirectionSell,
				mode:      modeBias,
				analysis:  "Overbought, potential bearish reversal",
				reasons:   []string{"RSI overbought with negative divergence"},
			}
		}
		return ruleOutcome{
			mode:     modeNone,
			analysis: "Overbought, potential bearish reversal",
			reasons:  []string{"RSI overbought but still rising"},
		}
	case rsi > 50:
		if rsi > rsiPrev {
			return ruleOutcome{
				direction: models.DirectionBuy,
				mode:      modeBias,
				analysis:  "Bullish momentum",
				reasons:   []string{"RSI bullish and strengthening"},
			}
		}
		return ruleOutcome{
			mode:     modeNone,
			analysis: "Bullish momentum",
			reasons:  []string{"RSI bullish but weakening"},
		}
	default:
		if rsi < rsiPrev {
			return ruleOutcome{
				direction: models.DirectionSell,
				mode:      modeBias,
				analysis:  "Bearish momentum",
				reasons:   []string{"RSI bearish and strengthening"},
			}
		}
		return ruleOutcome{
			mode:     modeNone,
			analysis: "Bearish momentum",
			reasons:  []string{"RSI bearish but weakening"},
		}
	}
}

// evalMACD ищет golden/death cross, иначе смотрит на динамику гистограммы
func evalMACD(f *models.IndicatorFrame, last, prev int) ruleOutcome {
	macd := f.MACD[last]
	signal := f.MACDSignal[last]
	macdPrev := f.MACD[prev]
	signalPrev := f.MACDSignal[prev]

	switch {
	case macd > signal && macdPrev <= signalPrev:
		return ruleOutcome{
			direction: models.DirectionBuy,
			mode:      modeAgreeOrUnset,
			analysis:  "Cross Up + positive histogram",
			reasons:   []string{"MACD golden cross (bullish)"},
		}
	case macd < signal && macdPrev >= signalPrev:
		return ruleOutcome{
			direction: models.DirectionSell,
			mode:      modeAgreeOrUnset,
			analysis:  "Cross Down + negative histogram",
			reasons:   []string{"MACD death cross (bearish)"},
		}
	case macd > signal:
		analysis := "Positive histogram but shrinking"
		reason := "MACD histogram positive"
		if macd-signal > macdPrev-signalPrev {
			analysis = "Positive histogram and growing"
			reason = "MACD histogram positive and momentum strengthening"
		}
		return ruleOutcome{
			direction: models.DirectionBuy,
			mode:      modeAgreeOrUnset,
			analysis:  analysis,
			reasons:   []string{reason},
		}
	case macd < signal:
		analysis := "Negative histogram but shrinking"
		reason := "MACD histogram negative"
		if signal-macd > signalPrev-macdPrev {
			analysis = "Negative histogram and growing"
			reason = "MACD histogram negative and momentum strengthening"
		}
		return ruleOutcome{
			direction: models.DirectionSell,
			mode:      modeAgreeOrUnset,
			analysis:  analysis,
			reasons:   []string{reason},
		}
	default:
		return ruleOutcome{mode: modeNone, analysis: "Neutral histogram"}
	}
}

// evalEMA ищет пробой EMA50, иначе усиление тренда относительно EMA50
func evalEMA(f *models.IndicatorFrame, last, prev int) ruleOutcome {
	price := f.Candles[last].Close
	ema := f.EMA50[last]
	pricePrev := f.Candles[prev].Close
	emaPrev := f.EMA50[prev]

	switch {
	case price > ema && pricePrev <= emaPrev:
		return ruleOutcome{
			direction: models.DirectionBuy,
			mode:      modeAgreeOrUnset,
			analysis:  "Price break above EMA50",
			reasons:   []string{"Breakout above EMA50 (bullish)"},
		}
	case price < ema && pricePrev >= emaPrev:
		return ruleOutcome{
			direction: models.DirectionSell,
			mode:      modeAgreeOrUnset,
			analysis:  "Price break below EMA50",
			reasons:   []string{"Breakdown below EMA50 (bearish)"},
		}
	case price > ema:
		if price-ema > pricePrev-emaPrev {
			return ruleOutcome{
				direction: models.DirectionBuy,
				mode:      modeAgreeOrUnset,
				analysis:  "Price above EMA50, uptrend",
				reasons:   []string{"Uptrend strengthening above EMA50"},
			}
		}
		return ruleOutcome{mode: modeNone, analysis: "Price above EMA50, uptrend"}
	case price < ema:
		if ema-price > emaPrev-pricePrev {
			return ruleOutcome{
				direction: models.DirectionSell,
				mode:      modeAgreeOrUnset,
				analysis:  "Price below EMA50, downtrend",
				reasons:   []string{"Downtrend strengthening below EMA50"},
			}
		}
		return ruleOutcome{mode: modeNone, analysis: "Price below EMA50, downtrend"}
	default:
		return ruleOutcome{mode: modeNone}
	}
}

// evalBollinger касание полос, squeeze либо пробой средней линии.
// Касание полосы применяется в режиме modeUnlessOpposite, а не
// modeAgreeOrUnset. Поведение сохранено намеренно, смена режима
// меняет частоту сигналов и требует отдельной калибровки.
func evalBollinger(f *models.IndicatorFrame, last, prev int) ruleOutcome {
	price := f.Candles[last].Close
	pricePrev := f.Candles[prev].Close
	upper := f.BBUpper[last]
	middle := f.BBMiddle[last]
	lower := f.BBLower[last]

	switch {
	case price <= lower:
		return ruleOutcome{
			direction: models.DirectionBuy,
			mode:      modeUnlessOpposite,
			analysis:  "Break below lower band + potential bullish reversal",
			reasons:   []string{"Price below BB lower (potential oversold)"},
		}
	case price >= upper:
		return ruleOutcome{
			direction: models.DirectionSell,
			mode:      modeUnlessOpposite,
			analysis:  "Break above upper band + potential bearish reversal",
			reasons:   []string{"Price above BB upper (potential overbought)"},
		}
	}

	width := (upper - lower) / middle
	widthPrev := (f.BBUpper[prev] - f.BBLower[prev]) / f.BBMiddle[prev]

	switch {
	case width < 0.02:
		// Направление при squeeze определяют остальные правила
		return ruleOutcome{
			mode:     modeNone,
			analysis: "Strong squeeze, preparing for breakout",
			reasons:  []string{"Bollinger Band squeeze (potential breakout)"},
		}
	case width < widthPrev:
		return ruleOutcome{mode: modeNone, analysis: "Volatility decreasing"}
	default:
		if price > middle && pricePrev <= middle {
			return ruleOutcome{
				direction: models.DirectionBuy,
				mode:      modeAgreeOrUnset,
				analysis:  "Volatility increasing, break above BB middle",
				reasons:   []string{"Break above BB middle (bullish)"},
			}
		}
		if price < middle && pricePrev >= middle {
			return ruleOutcome{
				direction: models.DirectionSell,
				mode:      modeAgreeOrUnset,
				analysis:  "Volatility increasing, break below BB middle",
				reasons:   []string{"Break below BB middle (bearish)"},
			}
		}
		return ruleOutcome{mode: modeNone, analysis: "Volatility increasing"}
	}
}

// evalMomentum запасное правило: строго монотонные закрытия трех
// последних свечей. Применяется, только если каскад не выбрал направление.
func evalMomentum(f *models.IndicatorFrame, last int) ruleOutcome {
	c0 := f.Candles[last-2].Close
	c1 := f.Candles[last-1].Close
	c2 := f.Candles[last].Close

	switch {
	case c2 > c1 && c1 > c0:
		return ruleOutcome{
			direction: models.DirectionBuy,
			mode:      modeAgreeOrUnset,
			reasons:   []string{"Upward momentum from last 3 candles"},
		}
	case c2 < c1 && c1 < c0:
		return ruleOutcome{
			direction: models.DirectionSell,
			mode:      modeAgreeOrUnset,
			reasons:   []string{"Downward momentum from last 3 candles"},
		}
	default:
		return ruleOutcome{mode: modeNone}
	}
}
