package upload

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-uploader/internal/server"
	httperrors "github.com/gokatarajesh/quiz-uploader/pkg/http/errors"
	ws "github.com/gokatarajesh/quiz-uploader/pkg/http/ws"
)

// StreamHandler serves /ws/uploads. Clients send watch_run with a run id
// and receive upload_progress messages for that run.
type StreamHandler struct {
	hub      *ws.Hub
	upgrader *websocket.Upgrader
	logger   zerolog.Logger
}

func NewStreamHandler(hub *ws.Hub, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		hub:      hub,
		upgrader: &server.WSUpgrader,
		logger:   logger.With().Str("component", "upload_stream").Logger(),
	}
}

// HandleWebSocket upgrades the request. Authentication happens in the
// session middleware in front of it.
func (h *StreamHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	wsConn := ws.NewConnection(conn, h.logger.With().Str("conn_id", connID).Logger())
	h.hub.RegisterConnection(connID, wsConn)

	go wsConn.WritePump()
	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(connID, msg)
	})

	h.hub.UnregisterConnection(connID)
}

func (h *StreamHandler) handleMessage(connID string, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeWatchRun, ws.TypeUnwatchRun:
		var req ws.WatchRunPayload
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.RunID == "" {
			return h.sendError(connID, msg.RequestID, httperrors.ErrCodeInvalidPayload, "run_id is required")
		}
		if msg.Type == ws.TypeUnwatchRun {
			h.hub.Unwatch(req.RunID, connID)
			return nil
		}
		h.hub.Watch(req.RunID, connID)
		return h.reply(connID, msg.RequestID, ws.TypeWatching, req)
	case ws.TypePing:
		return h.reply(connID, msg.RequestID, ws.TypePong, nil)
	default:
		return h.sendError(connID, msg.RequestID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *StreamHandler) reply(connID, requestID, kind string, payload any) error {
	out, err := ws.NewMessage(kind, payload)
	if err != nil {
		return err
	}
	out.RequestID = requestID
	return h.hub.SendTo(connID, out)
}

func (h *StreamHandler) sendError(connID, requestID, code, message string) error {
	return h.reply(connID, requestID, ws.TypeError, ws.ErrorPayload{Code: code, Message: message})
}
