package http

import (
	"bufio"
	"time"

	"mailbox_server/adapter/in/worker"
	"mailbox_server/adapter/out/realtime"
	"mailbox_server/core/domain"
	"mailbox_server/infra/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// =============================================================================
// SSE Handler
// =============================================================================

// SSEHandler handles Server-Sent Events connections.
type SSEHandler struct {
	hub *realtime.SSEHub
	log zerolog.Logger
}

func NewSSEHandler(hub *realtime.SSEHub, log zerolog.Logger) *SSEHandler {
	return &SSEHandler{
		hub: hub,
		log: log.With().Str("handler", "sse").Logger(),
	}
}

func (h *SSEHandler) Register(app fiber.Router) {
	app.Get("/events", h.Stream)
}

// Stream pushes every completed sync pass of the session until the client
// goes away or the session logs out.
func (h *SSEHandler) Stream(c *fiber.Ctx) error {
	sess, err := middleware.GetSession(c)
	if err != nil {
		return err
	}

	sessionID := sess.ID.String()
	client := h.hub.CreateClient(sessionID)
	log := h.log.With().Str("session_id", sessionID).Logger()
	log.Info().Msg("SSE client connected")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(client.HeartbeatInterval())
		defer ticker.Stop()
		defer func() {
			client.Close()
			log.Info().Msg("SSE client disconnected")
		}()

		w.WriteString("event: connected\n")
		w.WriteString("data: {\"status\":\"connected\"}\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case event, ok := <-client.Events:
				if !ok {
					return
				}

				frame, err := realtime.SerializeEvent(presentEvent(event))
				if err != nil {
					log.Error().Err(err).Msg("failed to serialize event")
					continue
				}
				w.Write(frame)
				if err := w.Flush(); err != nil {
					log.Debug().Err(err).Msg("client disconnected during write")
					return
				}

			case <-ticker.C:
				w.WriteString(": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					log.Debug().Err(err).Msg("client disconnected during heartbeat")
					return
				}
			}
		}
	})

	return nil
}

// presentEvent renders sync results the way GET /mailbox does. The event is
// shared between streams, so a copy is returned.
func presentEvent(event *realtime.Event) *realtime.Event {
	result, ok := event.Data.(*domain.SyncResult)
	if !ok {
		return event
	}
	cp := *event
	// Results published by a polling session carry their next run time.
	cp.Data = newMailboxResponse(worker.Snapshot{Result: result, Polling: !result.NextRunAt.IsZero()})
	return &cp
}
