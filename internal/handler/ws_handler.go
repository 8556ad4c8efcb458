package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	ws "github.com/stemsi/exstem-cbt/internal/websocket"
)

// actionTimeout bounds the storage work done for a single socket message.
const actionTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams answer saves and the final submit over one socket.
type WSHandler struct {
	engine   SessionEngine
	log      zerolog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(engine SessionEngine, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		engine:   engine,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		now:      time.Now,
	}
}

// SessionStream godoc
// WS /ws/v1/student/sessions/:session_id/stream?token=...
// Upgrades to WebSocket for low-latency answer saves and submit.
// Every message goes through the same engine calls as the REST routes.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}
	studentID := claims.UserID

	// Ownership and liveness are checked before the upgrade so the client
	// gets a regular HTTP error it can act on.
	state, err := h.engine.LoadSession(c.Request.Context(), sessionID, studentID)
	if err != nil {
		failSession(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	session := state.Session
	for {
		var env ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, wsLog, studentID, sessionID, env.Data)
		case ws.ActionSubmit:
			if h.handleSubmit(conn, wsLog, studentID, sessionID, env.Data) {
				return
			}
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{
				Event:            ws.EventPong,
				RemainingSeconds: session.ServerRemaining(h.now()),
			})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		}
	}
}

// handleAnswer applies one partial answer update.
func (h *WSHandler) handleAnswer(conn *websocket.Conn, wsLog zerolog.Logger, studentID int, sessionID uuid.UUID, data json.RawMessage) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		ws.WriteError(conn, string(response.ErrInvalidPayload), "malformed answer payload")
		return
	}

	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		ws.WriteError(conn, string(response.ErrInvalidID), "invalid question_id")
		return
	}

	wire := model.RecordAnswerRequest{
		SelectedOption:   req.SelectedOption,
		Flagged:          req.Flagged,
		RemainingSeconds: req.RemainingSeconds,
	}
	patch, ok := wire.ToPatch()
	if !ok {
		ws.WriteError(conn, string(response.ErrValidation), "selected_option must be one of A, B, C, D or empty")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	remaining, err := h.engine.RecordAnswer(ctx, service.RecordAnswerInput{
		StudentID:        studentID,
		SessionID:        sessionID,
		QuestionID:       questionID,
		Patch:            patch,
		RemainingSeconds: req.RemainingSeconds,
	})
	if err != nil {
		h.writeEngineError(conn, wsLog, err)
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{
		Event:            ws.EventSaved,
		QuestionID:       questionID.String(),
		RemainingSeconds: remaining,
	})
}

// handleSubmit finalizes the session and reports the grade. It returns true
// once the session is terminal and the socket should close.
func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, studentID int, sessionID uuid.UUID, data json.RawMessage) bool {
	var req ws.SubmitRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			ws.WriteError(conn, string(response.ErrInvalidPayload), "malformed submit payload")
			return false
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	session, err := h.engine.Submit(ctx, sessionID, studentID, req.RemainingSeconds)
	if err != nil {
		h.writeEngineError(conn, wsLog, err)
		return false
	}

	graded := ws.GradedResponse{
		Event:           ws.EventGraded,
		Status:          string(session.Status),
		CorrectCount:    session.CorrectCount,
		WrongCount:      session.WrongCount,
		UnansweredCount: session.UnansweredCount,
	}
	if session.Score != nil {
		graded.Score = *session.Score
	}
	if session.Total != nil {
		graded.Total = *session.Total
	}
	ws.WriteTyped(conn, graded)

	wsLog.Info().Str("status", graded.Status).Int("score", graded.Score).Msg("Session submitted over socket")
	return true
}

func (h *WSHandler) writeEngineError(conn *websocket.Conn, wsLog zerolog.Logger, err error) {
	status, code := sessionError(err)
	if status >= http.StatusInternalServerError {
		wsLog.Error().Err(err).Msg("Socket action failed")
	}
	ws.WriteError(conn, string(code), response.GetMessage(code))
}
