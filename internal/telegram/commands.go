package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"tripwatch/internal/camera"
)

// Controller is the part of the orchestrator the chat commands drive.
type Controller interface {
	Cameras() []camera.Status
	Toggle(ctx context.Context, id string) (camera.State, error)
	SetSensitivity(id string, value int) error
	CaptureSnapshot(ctx context.Context, id string) (string, error)
	Alerts(limit int) []camera.Alert
}

// Update represents a Telegram update
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *TelegramMessage `json:"message,omitempty"`
}

// TelegramMessage is the part of an incoming message commands need.
type TelegramMessage struct {
	MessageID int64         `json:"message_id"`
	Chat      *TelegramChat `json:"chat,omitempty"`
	Date      int64         `json:"date"`
	Text      string        `json:"text,omitempty"`
}

// TelegramChat represents a Telegram chat
type TelegramChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// CommandHandler answers commands sent to the bot from the configured
// chat. Messages from any other chat are ignored.
type CommandHandler struct {
	bot          *Bot
	control      Controller
	startTime    time.Time
	pollInterval time.Duration

	mu           sync.Mutex
	lastUpdateID int64
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(bot *Bot, control Controller) *CommandHandler {
	return &CommandHandler{
		bot:          bot,
		control:      control,
		startTime:    time.Now(),
		pollInterval: 2 * time.Second,
	}
}

// StartPolling polls for updates until ctx is cancelled.
func (ch *CommandHandler) StartPolling(ctx context.Context) error {
	ch.bot.logger.Info("command polling started")

	ticker := time.NewTicker(ch.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ch.bot.logger.Info("command polling stopped")
			return nil
		case <-ticker.C:
			if err := ch.pollUpdates(ctx); err != nil && ctx.Err() == nil {
				ch.bot.logger.Warn("failed to poll updates", "error", err)
			}
		}
	}
}

// pollUpdates fetches and processes updates from Telegram
func (ch *CommandHandler) pollUpdates(ctx context.Context) error {
	ch.mu.Lock()
	offset := ch.lastUpdateID + 1
	ch.mu.Unlock()

	result, err := ch.bot.sendTelegramRequest(ctx, "getUpdates", map[string]any{
		"offset":  offset,
		"timeout": 1,
	})
	if err != nil {
		return err
	}

	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return fmt.Errorf("failed to parse updates: %w", err)
	}

	for _, update := range updates {
		ch.mu.Lock()
		if update.UpdateID > ch.lastUpdateID {
			ch.lastUpdateID = update.UpdateID
		}
		ch.mu.Unlock()

		if update.Message != nil {
			ch.handleMessage(ctx, update.Message)
		}
	}
	return nil
}

// handleMessage processes an incoming message
func (ch *CommandHandler) handleMessage(ctx context.Context, msg *TelegramMessage) {
	if msg.Chat == nil {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if chatID != ch.bot.chatID {
		ch.bot.logger.Warn("ignoring message from unauthorized chat", "chat_id", chatID)
		return
	}

	response := ch.execute(ctx, msg.Text)
	if response == "" {
		return
	}
	if err := ch.bot.SendMessage(ctx, response); err != nil {
		ch.bot.logger.Warn("failed to send reply", "error", err)
	}
}

// execute runs one command line and returns the reply text.
func (ch *CommandHandler) execute(ctx context.Context, text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}

	parts := strings.Fields(text)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	// Remove bot username suffix if present (e.g., /status@mybot)
	if atIndex := strings.Index(command, "@"); atIndex != -1 {
		command = command[:atIndex]
	}

	switch command {
	case "/start", "/help":
		return helpText
	case "/status":
		return ch.handleStatus()
	case "/cameras":
		return ch.handleCameras()
	case "/toggle":
		return ch.handleToggle(ctx, args)
	case "/sensitivity":
		return ch.handleSensitivity(args)
	case "/snapshot":
		return ch.handleSnapshot(ctx, args)
	case "/alerts":
		return ch.handleAlerts(args)
	default:
		return fmt.Sprintf("Unknown command: %s\nUse /help to see available commands.", command)
	}
}

const helpText = "📋 <b>Available Commands</b>\n\n" +
	"/status - System status\n" +
	"/cameras - List all cameras\n" +
	"/toggle &lt;camera&gt; - Start or stop a camera\n" +
	"/sensitivity &lt;camera&gt; &lt;area&gt; - Set minimum motion area\n" +
	"/snapshot &lt;camera&gt; - Save and send the latest frame\n" +
	"/alerts [limit] - Show recent alerts\n" +
	"/help - Show this help"

func (ch *CommandHandler) handleStatus() string {
	cams := ch.control.Cameras()
	running := 0
	for _, c := range cams {
		if c.State == camera.StateRunning.String() {
			running++
		}
	}
	return fmt.Sprintf(
		"📊 <b>System Status</b>\n\n"+
			"📹 Cameras: %d total, %d running\n"+
			"⏱️ Uptime: %s",
		len(cams), running, formatDuration(time.Since(ch.startTime)),
	)
}

func (ch *CommandHandler) handleCameras() string {
	cams := ch.control.Cameras()
	if len(cams) == 0 {
		return "📹 <b>Cameras</b>\n\nNo cameras configured."
	}

	var sb strings.Builder
	sb.WriteString("📹 <b>Cameras</b>\n\n")
	for _, c := range cams {
		icon := "⚪"
		switch {
		case c.State == camera.StateRunning.String() && c.SourceOpen:
			icon = "🟢"
		case c.State == camera.StateRunning.String():
			icon = "🔴"
		}
		fmt.Fprintf(&sb, "%s <b>%s</b> (%s)\n   Sensitivity: %d, FPS: %d\n", icon, c.Name, c.ID, c.Sensitivity, c.FPS)
	}
	return sb.String()
}

func (ch *CommandHandler) handleToggle(ctx context.Context, args []string) string {
	cam, reply := ch.findCamera(args, "/toggle &lt;camera&gt;")
	if reply != "" {
		return reply
	}

	state, err := ch.control.Toggle(ctx, cam.ID)
	switch {
	case errors.Is(err, camera.ErrSourceUnavailable):
		return fmt.Sprintf("⚠️ Camera '%s' started but its source is unavailable; retrying.", cam.Name)
	case err != nil:
		return fmt.Sprintf("❌ Failed to toggle camera: %v", err)
	case state == camera.StateRunning:
		return fmt.Sprintf("✅ Camera '%s' started.", cam.Name)
	default:
		return fmt.Sprintf("🛑 Camera '%s' stopped.", cam.Name)
	}
}

func (ch *CommandHandler) handleSensitivity(args []string) string {
	const usage = "⚠️ Usage: /sensitivity &lt;camera&gt; &lt;area&gt;"
	if len(args) < 2 {
		return usage
	}
	value, err := strconv.Atoi(args[len(args)-1])
	if err != nil {
		return usage
	}

	cam, reply := ch.findCamera(args[:len(args)-1], "/sensitivity &lt;camera&gt; &lt;area&gt;")
	if reply != "" {
		return reply
	}
	if err := ch.control.SetSensitivity(cam.ID, value); err != nil {
		return fmt.Sprintf("❌ %v", err)
	}
	return fmt.Sprintf("✅ Sensitivity of '%s' set to %d.", cam.Name, value)
}

func (ch *CommandHandler) handleSnapshot(ctx context.Context, args []string) string {
	cam, reply := ch.findCamera(args, "/snapshot &lt;camera&gt;")
	if reply != "" {
		return reply
	}

	id, err := ch.control.CaptureSnapshot(ctx, cam.ID)
	if err != nil {
		return fmt.Sprintf("❌ Failed to capture snapshot: %v", err)
	}
	if id == "" {
		return fmt.Sprintf("⚠️ No frame available from '%s'.", cam.Name)
	}

	if ch.bot.frames != nil {
		if data, err := ch.bot.frames.CurrentJPEG(cam.ID); err == nil && len(data) > 0 {
			caption := fmt.Sprintf("📸 <b>Snapshot</b>\n\n📹 Camera: %s", cam.Name)
			if err := ch.bot.SendPhoto(ctx, data, caption); err != nil {
				ch.bot.logger.Warn("failed to send snapshot photo", "error", err)
			}
		}
	}
	return fmt.Sprintf("💾 Snapshot saved: %s", id)
}

func (ch *CommandHandler) handleAlerts(args []string) string {
	limit := 5
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 && n <= 20 {
			limit = n
		}
	}

	alerts := ch.control.Alerts(limit)
	if len(alerts) == 0 {
		return "📋 <b>Recent Alerts</b>\n\nNo alerts recorded."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 <b>Recent Alerts</b> (last %d)\n\n", len(alerts))
	for i, a := range alerts {
		fmt.Fprintf(&sb, "%d. %s\n   📹 %s\n", i+1, a.Timestamp.Format("Jan 2, 15:04:05"), a.CameraName)
	}
	return sb.String()
}

// findCamera resolves args to a camera by id, then by case-insensitive
// name. A non-empty reply explains why nothing was found.
func (ch *CommandHandler) findCamera(args []string, usage string) (camera.Status, string) {
	if len(args) == 0 {
		return camera.Status{}, "⚠️ Usage: " + usage + "\n\nUse /cameras to see available cameras."
	}
	nameOrID := strings.Join(args, " ")
	cams := ch.control.Cameras()

	for _, c := range cams {
		if c.ID == nameOrID {
			return c, ""
		}
	}

	var matches []camera.Status
	for _, c := range cams {
		if strings.EqualFold(c.Name, nameOrID) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return camera.Status{}, fmt.Sprintf("❌ Camera not found: %s\n\nUse /cameras to see available cameras.", nameOrID)
	case 1:
		return matches[0], ""
	default:
		var sb strings.Builder
		fmt.Fprintf(&sb, "⚠️ Multiple cameras named '%s'. Use camera ID:\n\n", nameOrID)
		for _, c := range matches {
			fmt.Fprintf(&sb, "• %s\n", c.ID)
		}
		return camera.Status{}, sb.String()
	}
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
