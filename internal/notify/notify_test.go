package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingChannel struct {
	name string
	err  error
	mu   sync.Mutex
	got  []string
}

func (r *recordingChannel) Name() string { return r.name }

func (r *recordingChannel) Send(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, text)
	return r.err
}

func (r *recordingChannel) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

type panickingChannel struct{}

func (panickingChannel) Name() string                             { return "panics" }
func (panickingChannel) Send(ctx context.Context, _ string) error { panic("boom") }

func TestDispatcher_IsolatesChannelFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ok := &recordingChannel{name: "ok"}
	failing := &recordingChannel{name: "failing", err: errors.New("webhook 500")}

	d := NewDispatcher(zap.New(core), failing, panickingChannel{}, ok)
	d.Send(context.Background(), "Phase 1 complete")
	d.Wait()

	assert.Equal(t, []string{"Phase 1 complete"}, ok.messages())
	assert.Equal(t, []string{"Phase 1 complete"}, failing.messages())
	assert.Equal(t, 1, logs.FilterMessage("Notification failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Notification channel panicked").Len())
}

func TestDispatcher_SendDoesNotBlockOnSlowChannel(t *testing.T) {
	release := make(chan struct{})
	slow := channelFunc{name: "slow", fn: func(ctx context.Context, _ string) error {
		<-release
		return nil
	}}
	d := NewDispatcher(zap.NewNop(), slow)

	done := make(chan struct{})
	go func() {
		d.Sendf(context.Background(), "trade %d opened", 1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a slow channel")
	}
	close(release)
	d.Wait()
}

type channelFunc struct {
	name string
	fn   func(ctx context.Context, text string) error
}

func (c channelFunc) Name() string                                { return c.name }
func (c channelFunc) Send(ctx context.Context, text string) error { return c.fn(ctx, text) }

func TestDiscordChannel(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ch := NewDiscordChannel(server.URL)
	require.NoError(t, ch.Send(context.Background(), "hello"))

	embeds := body["embeds"].([]any)
	assert.Equal(t, "hello", embeds[0].(map[string]any)["description"])

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer failing.Close()
	err := NewDiscordChannel(failing.URL).Send(context.Background(), "hello")
	assert.ErrorContains(t, err, "429")
}

func TestDiscordChannel_TruncatesOnRuneBoundary(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	text := strings.Repeat("€", discordMaxDescription+10)
	require.NoError(t, NewDiscordChannel(server.URL).Send(context.Background(), text))

	desc := body["embeds"].([]any)[0].(map[string]any)["description"].(string)
	assert.True(t, utf8.ValidString(desc))
	assert.Equal(t, discordMaxDescription, utf8.RuneCountInString(desc))
	assert.True(t, strings.HasSuffix(desc, "€..."))
}

func TestTelegramChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "-100", body["chat_id"])
		w.Header().Set("Content-Type", "application/json")
		if body["text"] == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok": false, "description": "Bad Request: message text is empty"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	ch := NewTelegramChannel("123:abc", "-100")
	ch.client.SetBaseURL(server.URL)

	assert.NoError(t, ch.Send(context.Background(), "hi"))
	err := ch.Send(context.Background(), "bad")
	assert.ErrorContains(t, err, "message text is empty")
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(zap.NewNop())
	server := httptest.NewServer(hub)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Send(context.Background(), "Trade opened"))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "Trade opened", string(msg))

	hub.Close()
	assert.Equal(t, 0, hub.Clients())
}

func TestLogChannel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ch := NewLogChannel(zap.New(core))
	assert.NoError(t, ch.Send(context.Background(), "status"))
	assert.Equal(t, 1, logs.FilterMessage("status").Len())
}
