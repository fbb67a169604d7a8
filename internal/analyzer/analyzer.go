// Package analyzer запускает непрерывный цикл анализа рынка:
// опрос свечей, расчет индикаторов, детекция сигналов, отправка
// и последующая сверка результатов.
package analyzer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hermesquantum/signalbot/internal/analysis/detector"
	"github.com/hermesquantum/signalbot/internal/analysis/indicators"
	"github.com/hermesquantum/signalbot/internal/config"
	"github.com/hermesquantum/signalbot/internal/market"
	"github.com/hermesquantum/signalbot/internal/notify"
	"github.com/hermesquantum/signalbot/internal/storage"
	"github.com/hermesquantum/signalbot/pkg/logger"
	"github.com/hermesquantum/signalbot/pkg/models"
)

const (
	tickInterval    = time.Second
	errorBackoff    = 5 * time.Second
	stopTimeout     = 5 * time.Second
	requestTimeout  = 10 * time.Second
	defaultCooldown = 60 * time.Second
)

// Clock источник времени. Выделен в интерфейс ради тестов.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// ChartGenerator рисует график для сигнала
type ChartGenerator interface {
	Generate(frame *models.IndicatorFrame, signal *models.Signal) (string, error)
}

// Deps зависимости анализатора. Все коллабораторы передаются явно,
// глобального состояния нет.
type Deps struct {
	Config   *config.Config
	Storage  storage.Storage
	Market   market.Provider
	Chart    ChartGenerator
	Notifier notify.Notifier
	Detector *detector.Detector
	// Archive опционален, nil отключает архивирование
	Archive storage.Archive
	// Clock подменяется в тестах, nil дает системные часы
	Clock Clock
}

// Analyzer планировщик анализа. Владеет единственным изменяемым
// состоянием цикла: флагом работы и временем последнего сигнала
// по каждому символу.
type Analyzer struct {
	deps     Deps
	cooldown time.Duration

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	settings *models.Setting

	// Времена последних отправленных сигналов. Живут только в памяти,
	// при рестарте кулдауны обнуляются.
	lastSignal map[string]time.Time
}

// New создает анализатор
func New(deps Deps) *Analyzer {
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}

	cooldown := defaultCooldown
	if deps.Config != nil && deps.Config.Analysis.CooldownSeconds > 0 {
		cooldown = time.Duration(deps.Config.Analysis.CooldownSeconds) * time.Second
	}

	return &Analyzer{
		deps:     deps,
		cooldown: cooldown,
	}
}

// Running сообщает, работает ли цикл анализа
func (a *Analyzer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Start запускает цикл анализа в фоне. Настройки читаются один раз
// на старте, для применения изменений цикл нужно перезапустить.
// Повторный запуск уже работающего цикла ничего не делает.
func (a *Analyzer) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		logger.Warn("Анализ рынка уже запущен")
		return nil
	}

	// Прошлый цикл мог не уложиться в таймаут Stop и все еще крутиться
	if a.done != nil {
		select {
		case <-a.done:
		default:
			a.mu.Unlock()
			return fmt.Errorf("предыдущий цикл анализа еще завершается")
		}
	}

	settings, err := a.deps.Storage.Settings(ctx)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("ошибка чтения настроек: %w", err)
	}

	symbols := settings.SymbolsList()
	if len(symbols) == 0 {
		a.mu.Unlock()
		return fmt.Errorf("не задан ни один активный символ")
	}

	// Учетные данные Telegram берутся из того же снимка настроек
	if r, ok := a.deps.Notifier.(notify.Reconfigurer); ok {
		r.Reconfigure(settings.TelegramToken, settings.TelegramChatID)
	}

	// Все символы сразу пригодны для сигнала
	now := a.deps.Clock.Now()
	a.lastSignal = make(map[string]time.Time, len(symbols))
	for _, symbol := range symbols {
		a.lastSignal[symbol] = now.Add(-time.Hour)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	a.settings = settings
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true
	a.mu.Unlock()

	go a.run(loopCtx)

	logger.Info("Анализ рынка запущен",
		zap.Strings("symbols", symbols),
		zap.String("timeframe", settings.TradingTimeframe))
	return nil
}

// Stop останавливает цикл и ждет его завершения не дольше stopTimeout.
// Остановка кооперативная, затянувшийся сетевой вызов не прерывается
// мгновенно.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	cancel := a.cancel
	done := a.done
	a.running = false
	a.mu.Unlock()

	cancel()
	select {
	case <-done:
		logger.Info("Анализ рынка остановлен")
	case <-time.After(stopTimeout):
		logger.Warn("Цикл анализа не завершился вовремя, не ждем дальше")
	}
}

func (a *Analyzer) run(ctx context.Context) {
	defer close(a.done)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Цикл анализа рынка завершен")
			return
		default:
		}

		pause := tickInterval
		if err := a.tick(ctx); err != nil {
			logger.Error("Ошибка в основном цикле анализа", zap.Error(err))
			pause = errorBackoff
		}

		select {
		case <-ctx.Done():
			logger.Info("Цикл анализа рынка завершен")
			return
		case <-time.After(pause):
		}
	}
}

// tick одна итерация цикла: проход по символам и сверка результатов
func (a *Analyzer) tick(ctx context.Context) error {
	now := a.deps.Clock.Now()

	// Окно отправки: последние секунды перед границей минуты
	sendWindow := now.Second() >= 60-a.settings.SignalTimeBeforeCandle

	for _, symbol := range a.settings.SymbolsList() {
		if now.Sub(a.lastSignal[symbol]) < a.cooldown {
			continue
		}

		if err := a.analyzeSymbol(ctx, symbol, now, sendWindow); err != nil {
			// Сбой одного символа не трогает остальные
			logger.Error("Ошибка анализа символа",
				zap.String("symbol", symbol), zap.Error(err))
		}
	}

	return a.checkResults(ctx, now)
}

// analyzeSymbol полный конвейер по одному символу
func (a *Analyzer) analyzeSymbol(ctx context.Context, symbol string, now time.Time, sendWindow bool) error {
	limit := 100
	minCandles := 50
	if a.deps.Config != nil {
		if a.deps.Config.Trading.HistoryLimit > 0 {
			limit = a.deps.Config.Trading.HistoryLimit
		}
		if a.deps.Config.Analysis.MinCandles > 0 {
			minCandles = a.deps.Config.Analysis.MinCandles
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	candles, err := a.deps.Market.HistoricalCandles(reqCtx, symbol, a.settings.TradingTimeframe, limit)
	cancel()
	if err != nil {
		return fmt.Errorf("ошибка получения свечей: %w", err)
	}

	if len(candles) < minCandles {
		logger.Warn("Недостаточно исторических данных",
			zap.String("symbol", symbol), zap.Int("candles", len(candles)))
		return nil
	}

	frame, err := indicators.Compute(candles)
	if err != nil {
		return fmt.Errorf("ошибка расчета индикаторов: %w", err)
	}

	candidate := a.deps.Detector.Detect(frame, a.settings, now)
	if candidate == nil || !sendWindow {
		return nil
	}

	// Кулдаун обновляется до побочных эффектов, чтобы сбой доставки
	// не привел к пулеметной очереди сигналов
	a.lastSignal[symbol] = now

	signal := models.NewSignal(symbol, a.settings.TradingTimeframe, candidate, now)
	if err := a.deps.Storage.CreateSignal(ctx, signal); err != nil {
		return fmt.Errorf("ошибка сохранения сигнала: %w", err)
	}

	if chartPath, err := a.deps.Chart.Generate(frame, signal); err != nil {
		logger.Warn("Не удалось построить график",
			zap.Uint("signal_id", signal.ID), zap.Error(err))
	} else {
		signal.ChartURL = chartPath
		if err := a.deps.Storage.UpdateSignal(ctx, signal); err != nil {
			logger.Warn("Не удалось сохранить ссылку на график",
				zap.Uint("signal_id", signal.ID), zap.Error(err))
		}
	}

	if a.deps.Archive != nil {
		if err := a.deps.Archive.ArchiveCandles(ctx, candles); err != nil {
			logger.Warn("Не удалось заархивировать свечи", zap.Error(err))
		}
		if err := a.deps.Archive.ArchiveSignal(ctx, signal); err != nil {
			logger.Warn("Не удалось заархивировать сигнал", zap.Error(err))
		}
	}

	if err := a.deps.Notifier.SendSignal(ctx, signal, signal.ChartURL); err != nil {
		logger.Error("Не удалось доставить сигнал",
			zap.Uint("signal_id", signal.ID), zap.Error(err))
	}

	logger.Info("Сигнал отправлен",
		zap.Uint("signal_id", signal.ID),
		zap.String("symbol", symbol),
		zap.String("direction", string(signal.Direction)),
		zap.Float64("confidence", signal.Confidence))
	return nil
}
