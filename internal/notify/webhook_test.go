package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"adsio/internal/config"
	"adsio/internal/events"
)

func TestSendWebhook(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad payload: %v", err)
		}
	}))
	defer srv.Close()

	cfg := config.Config{AlertWebhookURL: srv.URL}
	err := SendWebhook(cfg, events.RunCompleted{
		Drug:    "aspirin",
		Status:  "succeeded",
		Signals: 2,
	})
	if err != nil {
		t.Fatalf("SendWebhook: %v", err)
	}
	if got.Drug != "aspirin" || got.Signals != 2 {
		t.Fatalf("unexpected payload %+v", got)
	}
	if got.Text == "" {
		t.Fatal("expected human-readable text")
	}
}

func TestSendWebhookUnconfigured(t *testing.T) {
	if err := SendWebhook(config.Config{}, events.RunCompleted{Drug: "aspirin"}); err != nil {
		t.Fatalf("unconfigured webhook should be a no-op: %v", err)
	}
}

func TestSendWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := SendWebhook(config.Config{AlertWebhookURL: srv.URL}, events.RunCompleted{}); err == nil {
		t.Fatal("expected error for 502")
	}
}
