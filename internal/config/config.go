package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/hermesquantum/signalbot/pkg/logger"
	"go.uber.org/zap"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance  BinanceConfig  `yaml:"binance"`
	Trading  TradingConfig  `yaml:"trading"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Storage  StorageConfig  `yaml:"storage"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Redis    RedisConfig    `yaml:"redis"`
	Telegram TelegramConfig `yaml:"telegram"`
	Charts   ChartsConfig   `yaml:"charts"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Web      WebConfig      `yaml:"web"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Symbols      []string `yaml:"symbols"`
	Interval     string   `yaml:"interval"`
	HistoryLimit int      `yaml:"history_limit"`
}

// AnalysisConfig содержит настройки аналитического цикла.
// Значения используются как дефолты при первичном заполнении
// настроек в базе; рабочая копия живет в Setting.
type AnalysisConfig struct {
	SignalTimeBeforeCandle int `yaml:"signal_time_before_candle"`
	MinConfidenceThreshold int `yaml:"min_confidence_threshold"`
	CooldownSeconds        int `yaml:"cooldown_seconds"`
	MinCandles             int `yaml:"min_candles"`
}

// StorageConfig настройки реляционного хранилища сигналов
type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

// ArchiveConfig настройки архива временных рядов (InfluxDB)
type ArchiveConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// RedisConfig настройки кеша рыночных данных
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TelegramConfig настройки канала уведомлений
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// ChartsConfig настройки генерации графиков
type ChartsConfig struct {
	Dir string `yaml:"dir"`
}

// ScoringConfig настройки скоринга
type ScoringConfig struct {
	ModelPath string `yaml:"model_path"`
}

// WebConfig настройки веб-панели
type WebConfig struct {
	Addr string `yaml:"addr"`
}

// Load загружает конфигурацию из файла с переопределением из окружения
func Load(path string) (*Config, error) {
	// .env подхватывается молча: файл опционален
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	applyEnv(&config)
	applyDefaults(&config)

	logger.Info("Загружена конфигурация",
		zap.String("path", path),
		zap.Strings("symbols", config.Trading.Symbols))
	return &config, nil
}

// applyEnv переопределяет секреты значениями из окружения
func applyEnv(cfg *Config) {
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Binance.APISecret = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Trading.Interval == "" {
		cfg.Trading.Interval = "1m"
	}
	if cfg.Trading.HistoryLimit == 0 {
		cfg.Trading.HistoryLimit = 100
	}
	if len(cfg.Trading.Symbols) == 0 {
		cfg.Trading.Symbols = []string{"AUD/JPY", "EUR/USD", "GBP/USD", "USD/JPY", "USD/CAD"}
	}
	if cfg.Analysis.SignalTimeBeforeCandle == 0 {
		cfg.Analysis.SignalTimeBeforeCandle = 10
	}
	if cfg.Analysis.MinConfidenceThreshold == 0 {
		cfg.Analysis.MinConfidenceThreshold = 75
	}
	if cfg.Analysis.CooldownSeconds == 0 {
		cfg.Analysis.CooldownSeconds = 60
	}
	if cfg.Analysis.MinCandles == 0 {
		cfg.Analysis.MinCandles = 50
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "hermes_quantum.db"
	}
	if cfg.Charts.Dir == "" {
		cfg.Charts.Dir = "static/charts"
	}
	if cfg.Web.Addr == "" {
		cfg.Web.Addr = ":5000"
	}
	if cfg.Redis.TTLSeconds == 0 {
		cfg.Redis.TTLSeconds = 3
	}
}
