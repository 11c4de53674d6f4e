package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeBotAPI simulates the Telegram Bot API: it serves a scripted batch of
// updates once and records sent messages.
type fakeBotAPI struct {
	mu      sync.Mutex
	updates string
	served  bool
	sent    []map[string]any
}

func (f *fakeBotAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.served {
				fmt.Fprint(w, `{"ok":true,"result":[]}`)
				return
			}
			f.served = true
			fmt.Fprintf(w, `{"ok":true,"result":%s}`, f.updates)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var payload map[string]any
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("bad sendMessage payload: %v", err)
			}
			f.mu.Lock()
			f.sent = append(f.sent, payload)
			f.mu.Unlock()
			fmt.Fprint(w, `{"ok":true,"result":{}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}
}

func (f *fakeBotAPI) sentMessages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestService(t *testing.T, api *fakeBotAPI) *TelegramService {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	service, err := NewTelegramService(WithToken("test-token"), WithAPIBase(srv.URL))
	if err != nil {
		t.Fatalf("NewTelegramService failed: %v", err)
	}
	return service
}

func TestTelegramServiceEmitsInboundMessages(t *testing.T) {
	api := &fakeBotAPI{updates: `[{"update_id":7,"message":{"text":"Иван Петров","chat":{"id":42},"date":1700000000}}]`}
	service := newTestService(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := service.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer service.Stop()

	select {
	case response := <-service.Responses():
		if response.From != "42" {
			t.Errorf("response from = %q, want 42", response.From)
		}
		if response.Body != "Иван Петров" {
			t.Errorf("response body = %q", response.Body)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no response emitted")
	}
}

func TestTelegramServiceAnswersStartDirectly(t *testing.T) {
	api := &fakeBotAPI{updates: `[{"update_id":1,"message":{"text":"/start","chat":{"id":42},"date":1700000000}}]`}
	service := newTestService(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := service.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer service.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(api.sentMessages()) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	sent := api.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 greeting message, got %d", len(sent))
	}
	if text, _ := sent[0]["text"].(string); text != DefaultGreeting {
		t.Errorf("greeting = %q", text)
	}

	select {
	case response := <-service.Responses():
		t.Errorf("/start must not reach the flow, got %+v", response)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTelegramServiceSendMessage(t *testing.T) {
	api := &fakeBotAPI{updates: `[]`, served: true}
	service := newTestService(t, api)

	if err := service.SendMessage(context.Background(), "42", "Здравствуйте!"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	sent := api.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}
	if id, _ := sent[0]["chat_id"].(float64); int64(id) != 42 {
		t.Errorf("chat_id = %v", sent[0]["chat_id"])
	}
	if text, _ := sent[0]["text"].(string); text != "Здравствуйте!" {
		t.Errorf("text = %q", text)
	}
}

func TestTelegramServiceSendMessageRejectsBadChatID(t *testing.T) {
	api := &fakeBotAPI{served: true}
	service := newTestService(t, api)

	if err := service.SendMessage(context.Background(), "not-a-chat", "привет"); err == nil {
		t.Fatal("expected an error for a non-numeric chat identifier")
	}
}

func TestTelegramServiceStop(t *testing.T) {
	api := &fakeBotAPI{served: true}
	service := newTestService(t, api)

	if err := service.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := service.SendMessage(context.Background(), "42", "привет"); err != ErrServiceStopped {
		t.Errorf("SendMessage after Stop = %v, want ErrServiceStopped", err)
	}

	select {
	case _, ok := <-service.Responses():
		if ok {
			t.Error("expected responses channel to be closed")
		}
	case <-time.After(time.Second):
		t.Error("responses channel not closed after Stop")
	}
}

func TestNewTelegramServiceRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	if _, err := NewTelegramService(); err == nil {
		t.Fatal("expected an error without a bot token")
	}
}
