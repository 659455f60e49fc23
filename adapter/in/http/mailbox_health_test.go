package http

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"mailbox_server/adapter/out/realtime"
	"mailbox_server/core/domain"
	"mailbox_server/pkg/metrics"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

type fakeStats struct {
	watched int
	metrics *metrics.SyncMetrics
}

func (f *fakeStats) Watched() int                  { return f.watched }
func (f *fakeStats) Metrics() *metrics.SyncMetrics { return f.metrics }

type fakeBreaker string

func (b fakeBreaker) BreakerState() string { return string(b) }

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func TestHealth(t *testing.T) {
	app := newTestApp()
	NewHealthHandler(nil, nil).Register(app)

	resp, err := app.Test(newRequest(fiber.MethodGet, "/health", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		ping       error
		wantStatus int
	}{
		{"all healthy", nil, fiber.StatusOK},
		{"redis down", errors.New("connection refused"), fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewSyncMetrics()
			m.RecordPass(20*time.Millisecond, nil)
			m.RecordSkip()

			app := newTestApp()
			NewHealthHandler(&fakeStats{watched: 2, metrics: m}, fakeBreaker("closed")).
				WithCheck("redis", pingFunc(func(context.Context) error { return tt.ping })).
				Register(app)

			resp, err := app.Test(newRequest(fiber.MethodGet, "/ready", nil), -1)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			raw, _ := io.ReadAll(resp.Body)
			var body struct {
				Sessions int               `json:"sessions"`
				Breaker  string            `json:"gmail_breaker"`
				Checks   map[string]string `json:"checks"`
				Sync     map[string]any    `json:"sync"`
			}
			if err := json.Unmarshal(raw, &body); err != nil {
				t.Fatal(err)
			}
			if body.Sessions != 2 || body.Breaker != "closed" {
				t.Errorf("body = %+v", body)
			}
			if body.Sync["passes"] != float64(1) || body.Sync["skipped"] != float64(1) {
				t.Errorf("sync = %v", body.Sync)
			}
			if _, ok := body.Checks["redis"]; !ok {
				t.Errorf("checks = %v", body.Checks)
			}
		})
	}
}

func TestPresentEvent(t *testing.T) {
	result := &domain.SyncResult{
		Received: []*domain.MessageDetail{textMessage("r1", "alice@example.com", "Hi", "hello")},
		Logs:     []string{"fetched, processed, archived"},
	}
	event := &realtime.Event{Type: realtime.EventSyncCompleted, Seq: 3, Data: result}

	got := presentEvent(event)
	if got == event {
		t.Fatal("presentEvent() returned the shared event")
	}
	resp, ok := got.Data.(MailboxResponse)
	if !ok {
		t.Fatalf("data = %T, want MailboxResponse", got.Data)
	}
	if len(resp.Received) != 1 || resp.Received[0].Body != "hello" || got.Seq != 3 {
		t.Errorf("event = %+v", got)
	}
	if event.Data != result {
		t.Error("original event modified")
	}

	if resp.NextRunAt != nil {
		t.Errorf("next_run_at = %v for a result without a next run", resp.NextRunAt)
	}

	next := time.Now().Add(30 * time.Second)
	polled := presentEvent(&realtime.Event{Type: realtime.EventSyncCompleted, Data: &domain.SyncResult{NextRunAt: next}})
	if r := polled.Data.(MailboxResponse); r.NextRunAt == nil || !r.NextRunAt.Equal(next) || !r.Polling {
		t.Errorf("polled event = %+v", r)
	}

	other := &realtime.Event{Type: "other", Data: "x"}
	if presentEvent(other) != other {
		t.Error("non-sync event should pass through")
	}
}
