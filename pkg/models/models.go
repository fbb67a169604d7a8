package models

import (
	"strings"
	"time"
)

// Direction направление сигнала
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Результаты исполненного сигнала
const (
	ResultWin  = "WIN"
	ResultLoss = "LOSS"
	ResultDraw = "DRAW"
)

// Уровни риска по прогнозу win rate
const (
	RiskVeryLow  = "Very Low"
	RiskLow      = "Low"
	RiskMedium   = "Medium"
	RiskHigh     = "High"
	RiskVeryHigh = "Very High"
)

// Candle представляет свечу OHLCV
type Candle struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"close_time"`
}

// Bullish сообщает, закрылась ли свеча выше открытия
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// IndicatorFrame свечи, дополненные рассчитанными индикаторами.
// Значения до окончания периода разогрева индикатора равны NaN,
// потребители обязаны это учитывать и не сигналить по ним.
type IndicatorFrame struct {
	Candles    []Candle
	RSI        []float64
	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64
	EMA50      []float64
	BBUpper    []float64
	BBMiddle   []float64
	BBLower    []float64
	ATR        []float64
	VolumeMA   []float64
}

// Len возвращает количество свечей во фрейме
func (f *IndicatorFrame) Len() int {
	return len(f.Candles)
}

// FeatureVector вектор признаков для скоринга
type FeatureVector struct {
	RSI           float64
	MACDHist      float64
	EMADiffPct    float64
	BBPosition    float64
	Volatility    float64
	VolumeRatio   float64
	PricePressure float64
	IsBuy         bool
}

// SignalCandidate кандидат в сигналы, произведенный детектором.
// Эфемерный: становится Signal только после прохождения гейта
// по уверенности и окна отправки.
type SignalCandidate struct {
	Direction  Direction
	ExecutedAt time.Time
	Reasons    []string

	// Снимок рынка
	Volatility       float64
	StrengthByVolume float64
	PricePressure    float64
	Microtrend       string

	// Технический анализ
	RSI               float64
	RSIAnalysis       string
	MACDAnalysis      string
	EMAAnalysis       string
	BollingerAnalysis string
	VolumeAnalysis    string
	CandlePattern     string

	// Оценки
	Confidence        float64
	WinRatePrediction float64
	MLWinProbability  float64
	RiskLevel         string
}

// Signal сохраненный торговый сигнал
type Signal struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"size:32;not null;index" json:"symbol"`
	Timeframe string    `gorm:"size:8;not null" json:"timeframe"`
	Direction Direction `gorm:"size:8;not null" json:"direction"`

	ExecutedAt time.Time `gorm:"not null;index" json:"executed_at"`
	SentAt     time.Time `gorm:"not null" json:"sent_at"`

	// Снимок рынка
	Volatility       float64 `json:"volatility"`
	StrengthByVolume float64 `json:"strength_by_volume"`
	PricePressure    float64 `json:"price_pressure"`
	Microtrend       string  `gorm:"size:64" json:"microtrend_structure"`

	// Технический анализ
	RSI               float64 `json:"rsi"`
	RSIAnalysis       string  `gorm:"size:128" json:"rsi_analysis"`
	MACDAnalysis      string  `gorm:"size:128" json:"macd_analysis"`
	EMAAnalysis       string  `gorm:"size:128" json:"ema_analysis"`
	BollingerAnalysis string  `gorm:"size:128" json:"bollinger_analysis"`
	VolumeAnalysis    string  `gorm:"size:128" json:"volume_analysis"`
	CandlePattern     string  `gorm:"size:64" json:"candle_pattern"`
	Reasons           string  `gorm:"type:text" json:"reasons"`

	// Оценки
	Confidence        float64 `json:"confidence"`
	WinRatePrediction float64 `json:"win_rate_prediction"`
	MLWinProbability  float64 `json:"ml_win_probability"`
	RiskLevel         string  `gorm:"size:16" json:"risk_level"`

	ChartURL string `gorm:"size:256" json:"chart_url"`

	// Результат: nil, пока реконсиляция не определила исход.
	// После заполнения сигнал никогда не изменяется.
	Result       *string  `gorm:"size:8" json:"result"`
	OpenPrice    *float64 `json:"open_price"`
	ClosePrice   *float64 `json:"close_price"`
	PostAnalysis string   `gorm:"type:text" json:"post_analysis"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSignal собирает Signal из кандидата
func NewSignal(symbol, timeframe string, c *SignalCandidate, sentAt time.Time) *Signal {
	return &Signal{
		Symbol:            symbol,
		Timeframe:         timeframe,
		Direction:         c.Direction,
		ExecutedAt:        c.ExecutedAt,
		SentAt:            sentAt,
		Volatility:        c.Volatility,
		StrengthByVolume:  c.StrengthByVolume,
		PricePressure:     c.PricePressure,
		Microtrend:        c.Microtrend,
		RSI:               c.RSI,
		RSIAnalysis:       c.RSIAnalysis,
		MACDAnalysis:      c.MACDAnalysis,
		EMAAnalysis:       c.EMAAnalysis,
		BollingerAnalysis: c.BollingerAnalysis,
		VolumeAnalysis:    c.VolumeAnalysis,
		CandlePattern:     c.CandlePattern,
		Reasons:           strings.Join(c.Reasons, ", "),
		Confidence:        c.Confidence,
		WinRatePrediction: c.WinRatePrediction,
		MLWinProbability:  c.MLWinProbability,
		RiskLevel:         c.RiskLevel,
	}
}

// Setting настройки бота (одна запись на установку)
type Setting struct {
	ID                     uint   `gorm:"primaryKey" json:"id"`
	TelegramToken          string `gorm:"size:128" json:"telegram_token"`
	TelegramChatID         string `gorm:"size:64" json:"telegram_chat_id"`
	MarketAPIKey           string `gorm:"size:128" json:"market_api_key"`
	SignalTimeBeforeCandle int    `gorm:"default:10" json:"signal_time_before_candle"`
	MinConfidenceThreshold int    `gorm:"default:75" json:"min_confidence_threshold"`
	TradingTimeframe       string `gorm:"size:8;default:1m" json:"trading_timeframe"`
	ActiveSymbols          string `gorm:"type:text" json:"active_symbols"`
	ActiveStatus           bool   `gorm:"default:false" json:"active_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SymbolsList возвращает список активных символов
func (s *Setting) SymbolsList() []string {
	if s.ActiveSymbols == "" {
		return nil
	}
	parts := strings.Split(s.ActiveSymbols, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			symbols = append(symbols, p)
		}
	}
	return symbols
}
