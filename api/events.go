package api

import (
	"bufio"
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parlor/pkg/session"
	"github.com/papercomputeco/parlor/pkg/sse"
)

// EventState is the type of the first event of every stream: a snapshot of
// the session the following change events apply to.
const EventState = "state"

// retryMillis is the reconnect delay suggested to clients.
const retryMillis = 2000

// handleEvents streams the session's change events as server-sent events
// until the client disconnects, the session closes or the server shuts down.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}

	// Subscribe before the state snapshot so no change falls in between.
	events, unsubscribe := sess.Subscribe()

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		err := streamEvents(s.ctx, sse.NewWriter(w), sess.State(), events, s.config.KeepAlive)
		s.config.Logger.Debug("event stream closed",
			"session_id", sess.ID(),
			"reason", err,
		)
	})
	return nil
}

// streamEvents writes the state snapshot followed by every event received on
// events. It returns nil when events is closed and the write or context error
// otherwise. A keep-alive comment is written after every idle interval.
func streamEvents(ctx context.Context, w *sse.Writer, state session.State, events <-chan session.Event, keepAlive time.Duration) error {
	if err := w.Retry(retryMillis); err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := w.Write(&sse.Event{Type: EventState, Data: string(data)}); err != nil {
		return err
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := w.Comment("keep-alive"); err != nil {
				return err
			}

		case ev, ok := <-events:
			if !ok {
				return nil
			}

			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if err := w.Write(&sse.Event{
				ID:   strconv.FormatUint(ev.Seq, 10),
				Type: string(ev.Type),
				Data: string(data),
			}); err != nil {
				return err
			}
			ticker.Reset(keepAlive)
		}
	}
}
