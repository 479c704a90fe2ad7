// Package telegram sends alert notifications to a Telegram chat and
// answers control commands from it.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"tripwatch/internal/camera"
)

const defaultAPIBase = "https://api.telegram.org"

// FrameSource supplies the latest annotated frame of a camera as JPEG.
type FrameSource interface {
	CurrentJPEG(cameraID string) ([]byte, error)
}

// Config holds Telegram bot configuration
type Config struct {
	BotToken        string
	ChatID          string
	CooldownSeconds int
	// APIBase overrides the Bot API endpoint.
	APIBase string
}

// TelegramResponse represents the response from Telegram API
type TelegramResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Bot handles Telegram bot operations
type Bot struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client
	frames     FrameSource
	logger     *slog.Logger
	now        func() time.Time

	mu              sync.Mutex
	cooldownTracker map[string]time.Time
	cooldownPeriod  time.Duration
}

// NewBot creates a bot. frames may be nil, in which case alerts are sent
// as text only.
func NewBot(config Config, frames FrameSource, logger *slog.Logger) *Bot {
	cooldownPeriod := time.Duration(config.CooldownSeconds) * time.Second
	if cooldownPeriod == 0 {
		cooldownPeriod = 30 * time.Second
	}
	apiBase := config.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Bot{
		botToken:        config.BotToken,
		chatID:          config.ChatID,
		apiBase:         apiBase,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		frames:          frames,
		logger:          logger.With("component", "telegram"),
		now:             time.Now,
		cooldownTracker: make(map[string]time.Time),
		cooldownPeriod:  cooldownPeriod,
	}
}

// ValidateConfig validates the Telegram bot configuration
func ValidateConfig(config Config) error {
	if config.BotToken == "" {
		return fmt.Errorf("telegram bot token is required when enabled")
	}
	if config.ChatID == "" {
		return fmt.Errorf("telegram chat ID is required when enabled")
	}
	if config.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown seconds cannot be negative")
	}
	return nil
}

// EmitAlert notifies the chat about alert, with the camera's current frame
// attached when one is available. Alerts from a camera inside the
// notification cooldown are skipped without error.
func (b *Bot) EmitAlert(ctx context.Context, alert camera.Alert) error {
	if !b.claimCooldown(alert.CameraID) {
		b.logger.Debug("notification skipped, cooldown", "camera_id", alert.CameraID)
		return nil
	}

	zoneName, _ := alert.Timestamp.Zone()
	message := fmt.Sprintf(
		"🚨 <b>Tripwire Alert!</b>\n\n"+
			"📹 Camera: %s\n"+
			"🕐 Time: %s %s",
		alert.CameraName,
		alert.Timestamp.Format("2 Jan 2006, 15:04:05"),
		zoneName,
	)

	var frame []byte
	if b.frames != nil {
		data, err := b.frames.CurrentJPEG(alert.CameraID)
		if err != nil {
			b.logger.Warn("no frame for notification", "camera_id", alert.CameraID, "error", err)
		}
		frame = data
	}

	var err error
	if len(frame) > 0 {
		err = b.SendPhoto(ctx, frame, message)
	} else {
		err = b.SendMessage(ctx, message)
	}
	if err != nil {
		b.releaseCooldown(alert.CameraID)
	}
	return err
}

// claimCooldown reserves a notification slot for key. It reports false if
// the previous notification is too recent.
func (b *Bot) claimCooldown(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if last, ok := b.cooldownTracker[key]; ok && now.Sub(last) < b.cooldownPeriod {
		return false
	}
	b.cooldownTracker[key] = now
	return true
}

// releaseCooldown forgets a slot whose notification failed, so the next
// alert is not suppressed.
func (b *Bot) releaseCooldown(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cooldownTracker, key)
}

// SendMessage sends a text message
func (b *Bot) SendMessage(ctx context.Context, message string) error {
	payload := map[string]any{
		"chat_id":    b.chatID,
		"text":       message,
		"parse_mode": "HTML",
	}
	_, err := b.sendTelegramRequest(ctx, "sendMessage", payload)
	return err
}

// SendPhoto sends a photo using multipart form data
func (b *Bot) SendPhoto(ctx context.Context, photoData []byte, caption string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", b.chatID); err != nil {
		return fmt.Errorf("failed to write chat_id field: %w", err)
	}

	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("failed to write caption field: %w", err)
		}
		if err := writer.WriteField("parse_mode", "HTML"); err != nil {
			return fmt.Errorf("failed to write parse_mode field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("photo", "frame.jpg")
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(photoData); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	defer resp.Body.Close()

	_, err = handleResponse(resp)
	return err
}

func (b *Bot) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", b.apiBase, b.botToken, method)
}

// sendTelegramRequest sends a generic request to Telegram API
func (b *Bot) sendTelegramRequest(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL(method), bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	return handleResponse(resp)
}

// handleResponse processes the Telegram API response
func handleResponse(resp *http.Response) (json.RawMessage, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var telegramResp TelegramResponse
	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !telegramResp.OK {
		return nil, fmt.Errorf("telegram API error %d: %s", telegramResp.ErrorCode, telegramResp.Description)
	}
	return telegramResp.Result, nil
}
