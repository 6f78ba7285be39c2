// Package events provides in-process pub/sub for run lifecycle notifications.
package events

import (
	"sync"
	"time"
)

// RunCompleted is published after a pipeline run finishes.
type RunCompleted struct {
	RunID      int64     `json:"run_id"`
	Drug       string    `json:"drug"`
	Status     string    `json:"status"`
	Signals    int       `json:"signals"`
	ReportPath string    `json:"report_path"`
	FinishedAt time.Time `json:"finished_at"`
}

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs []chan RunCompleted
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe() <-chan RunCompleted {
	ch := make(chan RunCompleted, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Publish(ev RunCompleted) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
