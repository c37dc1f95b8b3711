package httpapi

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/jhacksman/feedeater/internal/bus"
	"github.com/jhacksman/feedeater/internal/normalize"
)

// busStream implements GET /api/bus/stream: a history slice (deduped by
// message id) followed by live envelopes, deduping by message id against
// the set already sent (spec.md §4.10, §8 S6).
func (s *Server) busStream(c echo.Context) error {
	ctx := c.Request().Context()
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	seen := make(map[string]bool)

	rows, err := bus.History(ctx, s.Store, 60, 500, "", "", "")
	if err != nil {
		return err
	}
	for i := len(rows) - 1; i >= 0; i-- { // oldest first
		row := rows[i]
		if seen[row.MessageID] {
			continue
		}
		seen[row.MessageID] = true
		if err := writeSSEFrame(resp, "messageCreated", row.Data); err != nil {
			return err
		}
	}
	resp.Flush()

	durable := "sse-bus-" + uuid.NewString()
	return s.Bridge.Stream(ctx, normalize.WildcardMessageCreated, durable, seen, func(subject string, data []byte) error {
		if err := writeSSEFrame(resp, "messageCreated", data); err != nil {
			return err
		}
		resp.Flush()
		return nil
	})
}

// logStream implements GET /api/logs/stream: live log entries only (the
// log topic has no history replay requirement in spec.md §4.9).
func (s *Server) logStream(c echo.Context) error {
	ctx := c.Request().Context()
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	durable := "sse-logs-" + uuid.NewString()
	return s.Bridge.Stream(ctx, "feedeater.*.log", durable, make(map[string]bool), func(subject string, data []byte) error {
		if err := writeSSEFrame(resp, "log", data); err != nil {
			return err
		}
		resp.Flush()
		return nil
	})
}

func writeSSEFrame(resp *echo.Response, event string, data []byte) error {
	_, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event, data)
	return err
}
