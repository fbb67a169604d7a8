package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hermesquantum/signalbot/internal/analysis/detector"
	"github.com/hermesquantum/signalbot/internal/analysis/scoring"
	"github.com/hermesquantum/signalbot/internal/analyzer"
	"github.com/hermesquantum/signalbot/internal/chart"
	"github.com/hermesquantum/signalbot/internal/config"
	"github.com/hermesquantum/signalbot/internal/market"
	"github.com/hermesquantum/signalbot/internal/notify"
	"github.com/hermesquantum/signalbot/internal/storage"
	"github.com/hermesquantum/signalbot/internal/web"
	"github.com/hermesquantum/signalbot/pkg/logger"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Инициализируем хранилище сигналов
	store, err := storage.NewSQLiteStorage(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
	}
	defer store.Close()

	settings, err := store.EnsureSettings(ctx, cfg)
	if err != nil {
		logger.Fatal("Ошибка инициализации настроек", zap.Error(err))
	}

	// Поставщик рыночных данных: биржа с откатом на синтетику
	provider := buildProvider(cfg)

	// Архив временных рядов опционален
	var archive storage.Archive
	if cfg.Archive.Enabled {
		influx, err := storage.NewInfluxArchive(cfg.Archive)
		if err != nil {
			logger.Warn("Архив недоступен, продолжаем без него", zap.Error(err))
		} else {
			defer influx.Close()
			archive = influx
		}
	}

	bot := analyzer.New(analyzer.Deps{
		Config:   cfg,
		Storage:  store,
		Market:   provider,
		Chart:    chart.NewGenerator(cfg.Charts.Dir),
		Notifier: notify.NewTelegramNotifier(settings.TelegramToken, settings.TelegramChatID),
		Detector: detector.New(scoring.New(cfg.Scoring.ModelPath)),
		Archive:  archive,
	})

	if settings.ActiveStatus {
		if err := bot.Start(ctx); err != nil {
			logger.Error("Ошибка автозапуска анализа", zap.Error(err))
		}
	}

	server := web.NewServer(store, bot, provider)
	go func() {
		if err := server.Run(cfg.Web.Addr); err != nil {
			logger.Fatal("Ошибка веб-панели", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Завершение работы...")
	bot.Stop()
}

// buildProvider собирает цепочку поставщиков данных: биржевой клиент,
// откат на синтетический генератор, опциональный кеш поверх
func buildProvider(cfg *config.Config) *market.FallbackProvider {
	var primary market.Provider = market.NewBinanceClient(cfg.Binance)

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		ttl := time.Duration(cfg.Redis.TTLSeconds) * time.Second
		primary = market.NewCachingProvider(rdb, ttl, primary)
	}

	synthetic := market.NewSyntheticProvider(time.Now().UnixNano())
	return market.NewFallbackProvider(primary, synthetic)
}
