package web

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	// Same-origin is not enforced; the API routes answer any origin as well
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WebSocket accepts one binary message holding a whole recording, answers
// with one JSON message shaped like the API response and closes.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	conn.SetReadLimit(h.maxUpload)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("WebSocket read failed")
		}
		if err == websocket.ErrReadLimit {
			h.closeWith(conn, websocket.CloseMessageTooBig, tooLarge(h.maxUpload).Error())
		}
		return
	}

	if msgType != websocket.BinaryMessage {
		h.reply(conn, http.StatusBadRequest, ErrorResponse{Error: "expected a binary message with audio", Stage: "upload"})
		return
	}

	up, err := spool(bytes.NewReader(data), h.maxUpload, zerolog.Ctx(ctx))
	if err != nil {
		h.logFailure(ctx, err)
		status, stage := classify(err)
		h.reply(conn, status, ErrorResponse{Error: err.Error(), Stage: stage})
		return
	}
	defer up.Remove()

	result, err := h.run(ctx, up)
	if err != nil {
		status, stage := classify(err)
		h.reply(conn, status, ErrorResponse{Error: err.Error(), Stage: stage})
		return
	}

	h.reply(conn, http.StatusOK, result)
}

// reply writes v and closes the connection. Errors close with an
// internal-error code so clients can tell them from a normal finish.
func (h *Handler) reply(conn *websocket.Conn, status int, v interface{}) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket write failed")
		return
	}

	code := websocket.CloseNormalClosure
	if status >= http.StatusInternalServerError {
		code = websocket.CloseInternalServerErr
	} else if status >= http.StatusBadRequest {
		code = websocket.ClosePolicyViolation
	}
	h.closeWith(conn, code, "")
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}
