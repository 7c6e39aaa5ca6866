package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"room-web/internal/domain"
	"room-web/internal/middleware"
	"room-web/internal/observability"
	"room-web/internal/session"
	ws "room-web/internal/websocket"
)

// SessionEvents resolves a session and streams its auth transitions.
type SessionEvents interface {
	CurrentUser(ctx context.Context, sessionToken string) (*domain.Session, error)
	Subscribe(sessionToken string, fn func(session.Event)) (unsubscribe func())
}

// WebSocketHandler upgrades /ws/session for pages of a signed-in visitor.
type WebSocketHandler struct {
	sessions SessionEvents
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(sessions SessionEvents, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     middleware.OriginChecker(allowedOrigins),
		},
	}
}

// HandleConnection subscribes the socket to the caller's session. The
// subscription ends when the browser goes away.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetSessionToken(r.Context())

	sess, err := h.sessions.CurrentUser(r.Context(), token)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrSessionUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeJSONError(w, status, "Session unavailable")
		return
	}
	if !sess.Authenticated() {
		writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.FromContext(r.Context()).Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(conn)
	unsubscribe := h.sessions.Subscribe(token, client.Notify)

	go client.WritePump()
	go client.ReadPump(unsubscribe)
}
