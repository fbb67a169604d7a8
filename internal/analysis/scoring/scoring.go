// Package scoring оценивает вероятность выигрыша сигнала по вектору
// признаков. Стратегия выбирается один раз при старте: обученная
// модель, если артефакт доступен, иначе детерминированная эвристика.
package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"go.uber.org/zap"

	"github.com/hermesquantum/signalbot/pkg/logger"
	"github.com/hermesquantum/signalbot/pkg/models"
)

// Scorer оценивает вектор признаков.
// Возвращает (вероятность выигрыша 0-100, уверенность 0-100).
type Scorer interface {
	Score(features models.FeatureVector) (winProbability, confidence float64)
}

// New выбирает стратегию скоринга. Ошибка загрузки модели липкая:
// экземпляр навсегда остается на эвристике, повторных попыток нет.
func New(modelPath string) Scorer {
	if modelPath != "" {
		m, err := loadModel(modelPath)
		if err == nil {
			logger.Info("Модель скоринга загружена", zap.String("path", modelPath))
			return m
		}
		logger.Warn("Не удалось загрузить модель скоринга, переключаемся на эвристику",
			zap.String("path", modelPath), zap.Error(err))
	}
	return &HeuristicScorer{}
}

// HeuristicScorer детерминированный эвристический скоринг.
// Базовая вероятность 50, фиксированные поправки по каждому признаку;
// знаки зеркалятся для SELL относительно BUY.
type HeuristicScorer struct{}

// Score реализует Scorer
func (h *HeuristicScorer) Score(f models.FeatureVector) (float64, float64) {
	score := 0.0

	// RSI
	if f.IsBuy {
		switch {
		case f.RSI < 30:
			score += 20
		case f.RSI < 40:
			score += 10
		case f.RSI > 70:
			score -= 20
		}
	} else {
		switch {
		case f.RSI > 70:
			score += 20
		case f.RSI > 60:
			score += 10
		case f.RSI < 30:
			score -= 20
		}
	}

	// Гистограмма MACD с учетом направления
	if (f.IsBuy && f.MACDHist > 0) || (!f.IsBuy && f.MACDHist < 0) {
		score += 15
	} else {
		score -= 5
	}

	// Отклонение цены от EMA50
	if (f.IsBuy && f.EMADiffPct > 0) || (!f.IsBuy && f.EMADiffPct < 0) {
		score += 15
	} else {
		score -= 10
	}

	// Позиция внутри полос Боллинджера
	if f.IsBuy {
		if f.BBPosition < 0.2 {
			score += 15
		} else if f.BBPosition > 0.8 {
			score -= 15
		}
	} else {
		if f.BBPosition > 0.8 {
			score += 15
		} else if f.BBPosition < 0.2 {
			score -= 15
		}
	}

	// Волатильность: крайности добавляют неопределенности
	if f.Volatility > 7 || f.Volatility < 3 {
		score -= 5
	} else {
		score += 10
	}

	// Объем
	if f.VolumeRatio > 1.5 {
		score += 15
	} else if f.VolumeRatio < 0.7 {
		score -= 5
	}

	winProbability := math.Min(math.Max(50+score, 0), 100)
	confidence := math.Max(winProbability-5, 0)
	return winProbability, confidence
}

// modelArtifact артефакт обученной логистической модели
type modelArtifact struct {
	Weights struct {
		RSI           float64 `json:"rsi"`
		MACDHist      float64 `json:"macd_hist"`
		EMADiffPct    float64 `json:"ema_diff_pct"`
		BBPosition    float64 `json:"bb_position"`
		Volatility    float64 `json:"volatility"`
		VolumeRatio   float64 `json:"volume_ratio"`
		PricePressure float64 `json:"price_pressure"`
		IsBuy         float64 `json:"is_buy"`
	} `json:"weights"`
	Bias  float64   `json:"bias"`
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

// ModelScorer скоринг обученной логистической моделью
type ModelScorer struct {
	artifact modelArtifact
}

func loadModel(path string) (*ModelScorer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения артефакта модели: %w", err)
	}

	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("ошибка разбора артефакта модели: %w", err)
	}
	if len(artifact.Means) != 8 || len(artifact.Stds) != 8 {
		return nil, fmt.Errorf("некорректный артефакт модели: ожидается 8 признаков")
	}
	for _, sd := range artifact.Stds {
		if sd == 0 {
			return nil, fmt.Errorf("некорректный артефакт модели: нулевое std")
		}
	}
	return &ModelScorer{artifact: artifact}, nil
}

// Score реализует Scorer
func (m *ModelScorer) Score(f models.FeatureVector) (float64, float64) {
	isBuy := 0.0
	if f.IsBuy {
		isBuy = 1.0
	}
	raw := []float64{
		f.RSI, f.MACDHist, f.EMADiffPct, f.BBPosition,
		f.Volatility, f.VolumeRatio, f.PricePressure, isBuy,
	}
	w := m.artifact.Weights
	weights := []float64{
		w.RSI, w.MACDHist, w.EMADiffPct, w.BBPosition,
		w.Volatility, w.VolumeRatio, w.PricePressure, w.IsBuy,
	}

	z := m.artifact.Bias
	for i, x := range raw {
		z += weights[i] * (x - m.artifact.Means[i]) / m.artifact.Stds[i]
	}

	winProb := 100 / (1 + math.Exp(-z))
	winProb = math.Min(winProb, 100)
	return winProb, winProb
}
