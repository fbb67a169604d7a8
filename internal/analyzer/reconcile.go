package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hermesquantum/signalbot/pkg/logger"
	"github.com/hermesquantum/signalbot/pkg/models"
)

// checkResults сверяет отправленные сигналы с реально закрывшимися
// свечами. Сигнал проверяется не раньше чем через минуту после времени
// исполнения; если свеча пока недоступна, попытка повторится на
// следующем проходе. Сигнал с заполненным результатом не трогается.
func (a *Analyzer) checkResults(ctx context.Context, now time.Time) error {
	signals, err := a.deps.Storage.PendingSignals(ctx, now.Add(-time.Minute))
	if err != nil {
		return fmt.Errorf("ошибка выборки ожидающих сигналов: %w", err)
	}

	for i := range signals {
		signal := &signals[i]
		if err := a.reconcileSignal(ctx, signal); err != nil {
			logger.Error("Ошибка сверки результата сигнала",
				zap.Uint("signal_id", signal.ID), zap.Error(err))
		}
	}
	return nil
}

func (a *Analyzer) reconcileSignal(ctx context.Context, signal *models.Signal) error {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	candle, err := a.deps.Market.CandleByTime(reqCtx, signal.Symbol, signal.Timeframe, signal.ExecutedAt)
	cancel()
	if err != nil {
		// Не фатально: свеча может появиться позже
		logger.Warn("Свеча исполнения пока недоступна",
			zap.Uint("signal_id", signal.ID), zap.Error(err))
		return nil
	}

	result := outcome(signal.Direction, candle)
	signal.Result = &result
	signal.OpenPrice = &candle.Open
	signal.ClosePrice = &candle.Close
	signal.PostAnalysis = postAnalysis(signal, result)

	if err := a.deps.Storage.UpdateSignal(ctx, signal); err != nil {
		return fmt.Errorf("ошибка сохранения результата: %w", err)
	}

	if err := a.deps.Notifier.SendResult(ctx, signal); err != nil {
		logger.Error("Не удалось доставить результат сигнала",
			zap.Uint("signal_id", signal.ID), zap.Error(err))
	}

	logger.Info("Результат сигнала определен",
		zap.Uint("signal_id", signal.ID),
		zap.String("symbol", signal.Symbol),
		zap.String("result", result))
	return nil
}

// outcome исход сделки по направлению и движению свечи исполнения
func outcome(direction models.Direction, candle models.Candle) string {
	switch {
	case candle.Close == candle.Open:
		return models.ResultDraw
	case direction == models.DirectionBuy && candle.Close > candle.Open,
		direction == models.DirectionSell && candle.Close < candle.Open:
		return models.ResultWin
	default:
		return models.ResultLoss
	}
}

// postAnalysis текст разбора исполненного сигнала
func postAnalysis(signal *models.Signal, result string) string {
	open := *signal.OpenPrice
	closePrice := *signal.ClosePrice

	if result == models.ResultWin {
		move := "up"
		if signal.Direction == models.DirectionSell {
			move = "down"
		}
		return fmt.Sprintf("Price moved %s as predicted, from %g to %g, riding the momentum of %s and %s.",
			move, open, closePrice,
			strings.ToLower(signal.RSIAnalysis), strings.ToLower(signal.Microtrend))
	}

	if signal.Direction == models.DirectionBuy {
		return fmt.Sprintf("Prediction did not play out, price moved down from %g to %g, likely due to sudden selling pressure or negative news.",
			open, closePrice)
	}
	return fmt.Sprintf("Prediction did not play out, price moved up from %g to %g, likely due to sudden buying pressure or positive news.",
		open, closePrice)
}
