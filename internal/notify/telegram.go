// Package notify доставляет сигналы и их результаты в Telegram.
// Доставка best-effort: ошибка логируется и не повторяется.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hermesquantum/signalbot/pkg/logger"
	"github.com/hermesquantum/signalbot/pkg/models"
)

// Notifier канал доставки сигналов
type Notifier interface {
	SendSignal(ctx context.Context, signal *models.Signal, chartPath string) error
	SendResult(ctx context.Context, signal *models.Signal) error
}

// Reconfigurer нотификатор, умеющий сменить учетные данные на лету
type Reconfigurer interface {
	Reconfigure(token, chatID string)
}

// TelegramNotifier отправляет сообщения через Telegram Bot API
type TelegramNotifier struct {
	mu      sync.RWMutex
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegramNotifier создает нотификатор
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Reconfigure заменяет токен и chat_id. Планировщик вызывает его на
// каждом старте со свежим снимком настроек.
func (t *TelegramNotifier) Reconfigure(token, chatID string) {
	t.mu.Lock()
	t.token = token
	t.chatID = chatID
	t.mu.Unlock()
}

func (t *TelegramNotifier) creds() (string, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token, t.chatID
}

// SendSignal отправляет график с подписью-сигналом. Если график
// недоступен, сигнал уходит обычным текстовым сообщением.
func (t *TelegramNotifier) SendSignal(ctx context.Context, signal *models.Signal, chartPath string) error {
	token, chatID := t.creds()
	if token == "" || chatID == "" {
		return fmt.Errorf("токен или chat_id Telegram не заданы")
	}

	caption := formatSignalMessage(signal)
	if chartPath != "" {
		if err := t.sendPhoto(ctx, token, chatID, chartPath, caption); err == nil {
			return nil
		} else {
			logger.Warn("Не удалось отправить график, шлем текстовый сигнал",
				zap.Uint("signal_id", signal.ID), zap.Error(err))
		}
	}
	return t.sendMessage(ctx, token, chatID, caption)
}

// SendResult отправляет итог исполненного сигнала
func (t *TelegramNotifier) SendResult(ctx context.Context, signal *models.Signal) error {
	token, chatID := t.creds()
	if token == "" || chatID == "" {
		return fmt.Errorf("токен или chat_id Telegram не заданы")
	}
	return t.sendMessage(ctx, token, chatID, formatResultMessage(signal))
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, token, chatID, text string) error {
	form := url.Values{
		"chat_id":                  {chatID},
		"text":                     {text},
		"parse_mode":               {"HTML"},
		"disable_web_page_preview": {"true"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, token),
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return t.do(req)
}

func (t *TelegramNotifier) sendPhoto(ctx context.Context, token, chatID, photoPath, caption string) error {
	file, err := os.Open(photoPath)
	if err != nil {
		return fmt.Errorf("ошибка открытия файла графика: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for key, value := range map[string]string{
		"chat_id":    chatID,
		"caption":    caption,
		"parse_mode": "HTML",
	} {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("ошибка формирования запроса: %w", err)
		}
	}

	part, err := writer.CreateFormFile("photo", filepath.Base(photoPath))
	if err != nil {
		return fmt.Errorf("ошибка формирования запроса: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("ошибка чтения файла графика: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("ошибка формирования запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bot%s/sendPhoto", t.baseURL, token), &body)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return t.do(req)
}

func (t *TelegramNotifier) do(req *http.Request) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка запроса к Telegram: %w", err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("ошибка разбора ответа Telegram: %w", err)
	}
	if !api.OK {
		return fmt.Errorf("Telegram отклонил запрос: %s", api.Description)
	}
	return nil
}

func formatSignalMessage(s *models.Signal) string {
	directionEmoji := "🚀"
	sentiment := "🟢 STRONG BUY"
	volumeDot := "🟢"
	if s.Direction == models.DirectionSell {
		directionEmoji = "🔻"
		sentiment = "🔴 STRONG SELL"
		volumeDot = "🔴"
	}

	return strings.TrimSpace(fmt.Sprintf(`
🤖 <b>[HERMES QUANTUM AI MASTER]</b> 🤖
━━━━━━━━━━━━━━━━━━
🎯 %s | ⏱ %s | 📍 %s %s
⚡️ Execution: %s
🔄 Update: %s

📊 <b>MARKET SNAPSHOT</b> 🎯
🌋 Volatility: %.1f/10
💪 Volume Power: %.1f%% %s
💫 Price Momentum: %.2f%% (3m)
📈 Microtrend: %s

🔬 <b>TECHNICALS</b> 📈
🎯 RSI: %.1f (%s)
💫 MACD: %s
📊 EMA50: %s
🎯 BB: %s
📈 Volume: %s
🕯 Pattern: "%s"
🎯 Sentiment: %s

🤖 <b>AI POWER SCORE: %.1f%%</b> 🎯
🎯 WinRate: %.1f%%
⚠️ Risk Level: %s
━━━━━━━━━━━━━━━━━━`,
		s.Symbol, s.Timeframe, s.Direction, directionEmoji,
		s.ExecutedAt.Format("15:04:05"),
		s.SentAt.Format("15:04:05"),
		s.Volatility, s.StrengthByVolume, volumeDot,
		s.PricePressure, s.Microtrend,
		s.RSI, s.RSIAnalysis,
		s.MACDAnalysis, s.EMAAnalysis, s.BollingerAnalysis,
		s.VolumeAnalysis, s.CandlePattern, sentiment,
		s.Confidence, s.WinRatePrediction, s.RiskLevel))
}

func formatResultMessage(s *models.Signal) string {
	result := ""
	if s.Result != nil {
		result = *s.Result
	}

	emoji := "⚠️"
	switch result {
	case models.ResultWin:
		emoji = "✅"
	case models.ResultLoss:
		emoji = "❌"
	}

	var openPrice, closePrice float64
	if s.OpenPrice != nil {
		openPrice = *s.OpenPrice
	}
	if s.ClosePrice != nil {
		closePrice = *s.ClosePrice
	}

	return strings.TrimSpace(fmt.Sprintf(`
<b>RESULT: %s %s</b>
PAIR: %s
TRADE TIME: %s
OPEN PRICE: %g
CLOSE PRICE: %g

<b>POST-EXECUTION ANALYSIS:</b>
%s`,
		emoji, result, s.Symbol,
		s.ExecutedAt.Format("15:04"),
		openPrice, closePrice, s.PostAnalysis))
}
