// Package notify pushes run results to an external webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"adsio/internal/config"
	"adsio/internal/events"
)

// payload is the JSON body posted to the alert webhook.
type payload struct {
	Drug       string `json:"drug"`
	Status     string `json:"status"`
	Signals    int    `json:"signals"`
	ReportPath string `json:"report_path,omitempty"`
	Text       string `json:"text"`
}

// SendWebhook posts one run-completed event to the configured webhook. An
// unconfigured URL is a no-op.
func SendWebhook(cfg config.Config, ev events.RunCompleted) error {
	if cfg.AlertWebhookURL == "" {
		return nil
	}
	p := payload{
		Drug:       ev.Drug,
		Status:     ev.Status,
		Signals:    ev.Signals,
		ReportPath: ev.ReportPath,
		Text:       fmt.Sprintf("ADSIO: %s run %s with %d signal(s)", ev.Drug, ev.Status, ev.Signals),
	}
	buf, _ := json.Marshal(p)
	req, err := http.NewRequest(http.MethodPost, cfg.AlertWebhookURL, bytes.NewBuffer(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

// Listen drains run-completed events and forwards signal-bearing ones to the
// webhook until the context ends. Quiet runs are not forwarded.
func Listen(ctx context.Context, cfg config.Config, sub <-chan events.RunCompleted) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			if ev.Status != "succeeded" || ev.Signals == 0 {
				continue
			}
			if err := SendWebhook(cfg, ev); err != nil {
				log.Printf("[notify] webhook for %s: %v", ev.Drug, err)
			}
		}
	}
}
