// Status stream handler.
//
// Exposes GET /pair/{requestId}/events: a WebSocket that pushes a status
// snapshot on every state change of the pairing request, starting with the
// current state at subscription time. Intermediate snapshots may be dropped
// for slow consumers; the stream always converges on the latest state.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ADDICT-HUB/X-guru-pair/internal/http/middleware"
)

const streamWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamEvents godoc
// @ID          streamPairingEvents
// @Summary     Stream pairing status snapshots
// @Description Upgrades to a WebSocket and pushes the full status snapshot on every state change until the client disconnects.
// @Tags        Pairing
//
// @Param       requestId  path  string  true  "Pairing request ID (UUID)" format(uuid)
//
// @Success     101  {string} string "Switching Protocols"
// @Failure     404  {object} handlers.ErrorResponse "Unknown request"
// @Router      /pair/{requestId}/events [get]
func (h *Handlers) StreamEvents(c *gin.Context) {
	requestID := c.Param("requestId")

	// Resolve the subscription before upgrading so unknown ids still get a
	// regular JSON 404.
	updates, cancel, found := h.svc.Watch(requestID)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "pairing request not found")
		return
	}
	defer cancel()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote its own error response.
		middleware.LoggerFrom(c).Warn().Err(err).Str("pair_request_id", requestID).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	// Reader goroutine: the client never sends payloads, but reading is what
	// surfaces the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v any) error {
		_ = ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return ws.WriteJSON(v)
	}

	// Current state first, then every change.
	if snap, err := h.svc.Status(c.Request.Context(), requestID); err == nil {
		if err := write(snap); err != nil {
			return
		}
	}
	for {
		select {
		case req, open := <-updates:
			if !open {
				return
			}
			snap, err := h.svc.Status(c.Request.Context(), req.RequestID)
			if err != nil {
				return
			}
			if err := write(snap); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
