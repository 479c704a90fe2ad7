package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripwatch/internal/camera"
)

type fakeAPI struct {
	mu      sync.Mutex
	methods []string
	fail    bool
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.methods = append(f.methods, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
	fail := f.fail
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		return
	}
	w.Write([]byte(`{"ok":true,"result":{}}`))
}

func (f *fakeAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

type staticFrames map[string][]byte

func (s staticFrames) CurrentJPEG(id string) ([]byte, error) { return s[id], nil }

func newTestBot(t *testing.T, api *fakeAPI, frames FrameSource) *Bot {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(srv.Close)
	return NewBot(Config{BotToken: "token", ChatID: "42", CooldownSeconds: 60, APIBase: srv.URL}, frames, nil)
}

func TestValidateConfig(t *testing.T) {
	assert.Error(t, ValidateConfig(Config{ChatID: "1"}))
	assert.Error(t, ValidateConfig(Config{BotToken: "t"}))
	assert.Error(t, ValidateConfig(Config{BotToken: "t", ChatID: "1", CooldownSeconds: -1}))
	assert.NoError(t, ValidateConfig(Config{BotToken: "t", ChatID: "1"}))
}

func TestEmitAlertSendsPhotoWhenFrameAvailable(t *testing.T) {
	api := &fakeAPI{}
	bot := newTestBot(t, api, staticFrames{"gate": {0xFF, 0xD8, 0xFF, 0xD9}})

	require.NoError(t, bot.EmitAlert(context.Background(), camera.Alert{CameraID: "gate", CameraName: "Gate", Timestamp: time.Now()}))
	require.NoError(t, bot.EmitAlert(context.Background(), camera.Alert{CameraID: "yard", CameraName: "Yard", Timestamp: time.Now()}))

	assert.Equal(t, []string{"sendPhoto", "sendMessage"}, api.calls())
}

func TestEmitAlertRespectsPerCameraCooldown(t *testing.T) {
	api := &fakeAPI{}
	bot := newTestBot(t, api, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bot.now = func() time.Time { return now }

	alert := camera.Alert{CameraID: "gate", CameraName: "Gate", Timestamp: now}
	require.NoError(t, bot.EmitAlert(context.Background(), alert))
	require.NoError(t, bot.EmitAlert(context.Background(), alert))
	assert.Len(t, api.calls(), 1)

	now = now.Add(61 * time.Second)
	require.NoError(t, bot.EmitAlert(context.Background(), alert))
	assert.Len(t, api.calls(), 2)
}

func TestFailedNotificationDoesNotStartCooldown(t *testing.T) {
	api := &fakeAPI{fail: true}
	bot := newTestBot(t, api, nil)

	alert := camera.Alert{CameraID: "gate", CameraName: "Gate", Timestamp: time.Now()}
	err := bot.EmitAlert(context.Background(), alert)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")

	api.mu.Lock()
	api.fail = false
	api.mu.Unlock()
	require.NoError(t, bot.EmitAlert(context.Background(), alert))
	assert.Len(t, api.calls(), 2)
}
