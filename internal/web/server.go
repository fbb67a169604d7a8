// Package web тонкая панель оператора: история сигналов, настройки
// и переключатель бота. Аутентификации нет, панель рассчитана на
// локальный доступ.
package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hermesquantum/signalbot/internal/market"
	"github.com/hermesquantum/signalbot/internal/storage"
	"github.com/hermesquantum/signalbot/pkg/logger"
)

// BotController управление циклом анализа
type BotController interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
}

// Server HTTP-сервер панели
type Server struct {
	storage storage.Storage
	bot     BotController
	market  market.Reconfigurer
	engine  *gin.Engine
}

// NewServer собирает сервер и маршруты.
// market может быть nil, тогда смена ключа API не пробрасывается.
func NewServer(store storage.Storage, bot BotController, mkt market.Reconfigurer) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		storage: store,
		bot:     bot,
		market:  mkt,
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/healthz", s.health)

	api := s.engine.Group("/api")
	{
		api.GET("/signals/latest", s.latestSignals)
		api.GET("/signals/:id", s.signalByID)
		api.GET("/settings", s.getSettings)
		api.PUT("/settings", s.updateSettings)
		api.POST("/bot/toggle", s.toggleBot)
	}

	return s
}

// Run блокирует, обслуживая панель на addr
func (s *Server) Run(addr string) error {
	logger.Info("Веб-панель запущена", zap.String("addr", addr))
	return s.engine.Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "bot_running": s.bot.Running()})
}

func (s *Server) latestSignals(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный limit"})
			return
		}
		limit = parsed
	}

	signals, err := s.storage.LatestSignals(c.Request.Context(), limit)
	if err != nil {
		logger.Error("Ошибка выборки сигналов", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ошибка выборки сигналов"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) signalByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный id"})
		return
	}

	signal, err := s.storage.SignalByID(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "сигнал не найден"})
		return
	}
	c.JSON(http.StatusOK, signal)
}

func (s *Server) getSettings(c *gin.Context) {
	settings, err := s.storage.Settings(c.Request.Context())
	if err != nil {
		logger.Error("Ошибка выборки настроек", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ошибка выборки настроек"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// settingsRequest изменяемые через панель поля
type settingsRequest struct {
	TelegramToken          *string `json:"telegram_token"`
	TelegramChatID         *string `json:"telegram_chat_id"`
	MarketAPIKey           *string `json:"market_api_key"`
	SignalTimeBeforeCandle *int    `json:"signal_time_before_candle"`
	MinConfidenceThreshold *int    `json:"min_confidence_threshold"`
	ActiveSymbols          *string `json:"active_symbols"`
}

func (s *Server) updateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректное тело запроса"})
		return
	}

	settings, err := s.storage.Settings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ошибка выборки настроек"})
		return
	}

	if req.TelegramToken != nil {
		settings.TelegramToken = *req.TelegramToken
	}
	if req.TelegramChatID != nil {
		settings.TelegramChatID = *req.TelegramChatID
	}
	if req.SignalTimeBeforeCandle != nil {
		if *req.SignalTimeBeforeCandle < 1 || *req.SignalTimeBeforeCandle > 59 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "signal_time_before_candle вне диапазона 1-59"})
			return
		}
		settings.SignalTimeBeforeCandle = *req.SignalTimeBeforeCandle
	}
	if req.MinConfidenceThreshold != nil {
		if *req.MinConfidenceThreshold < 0 || *req.MinConfidenceThreshold > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_confidence_threshold вне диапазона 0-100"})
			return
		}
		settings.MinConfidenceThreshold = *req.MinConfidenceThreshold
	}
	if req.ActiveSymbols != nil {
		settings.ActiveSymbols = *req.ActiveSymbols
	}
	if req.MarketAPIKey != nil && *req.MarketAPIKey != settings.MarketAPIKey {
		settings.MarketAPIKey = *req.MarketAPIKey
		if s.market != nil {
			s.market.SetAPIKey(*req.MarketAPIKey, "")
		}
	}

	if err := s.storage.SaveSettings(c.Request.Context(), settings); err != nil {
		logger.Error("Ошибка сохранения настроек", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ошибка сохранения настроек"})
		return
	}

	// Работающий цикл держит снимок настроек, изменения подхватятся
	// после перезапуска бота
	c.JSON(http.StatusOK, settings)
}

func (s *Server) toggleBot(c *gin.Context) {
	settings, err := s.storage.Settings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ошибка выборки настроек"})
		return
	}

	if s.bot.Running() {
		s.bot.Stop()
		settings.ActiveStatus = false
	} else {
		if err := s.bot.Start(c.Request.Context()); err != nil {
			logger.Error("Не удалось запустить анализ", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		settings.ActiveStatus = true
	}

	if err := s.storage.SaveSettings(c.Request.Context(), settings); err != nil {
		logger.Error("Ошибка сохранения статуса бота", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"running": s.bot.Running()})
}

// Handler отдает корневой http.Handler, используется в тестах
func (s *Server) Handler() http.Handler {
	return s.engine
}
