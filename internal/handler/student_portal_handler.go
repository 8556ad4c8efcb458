package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
)

// SessionEngine is the exam session lifecycle as seen by transports.
type SessionEngine interface {
	StartSession(ctx context.Context, studentID, subjectID int) (*service.StartResult, error)
	LoadSession(ctx context.Context, sessionID uuid.UUID, studentID int) (*service.SessionState, error)
	RecordAnswer(ctx context.Context, in service.RecordAnswerInput) (int, error)
	Submit(ctx context.Context, sessionID uuid.UUID, studentID int, remainingSeconds *int) (*model.ExamSession, error)
	GetResult(ctx context.Context, sessionID uuid.UUID, studentID int) (*service.ResultView, error)
	ListHistory(ctx context.Context, studentID int) ([]service.HistoryEntry, error)
}

// SubjectLister lists subjects open for exams.
type SubjectLister interface {
	ListActive(ctx context.Context) ([]model.Subject, error)
}

// LeaderboardGetter reads subject rankings.
type LeaderboardGetter interface {
	Get(ctx context.Context, subjectID, studentID, n int) (*service.Leaderboard, error)
}

// StudentPortalHandler handles student-facing exam endpoints.
type StudentPortalHandler struct {
	engine      SessionEngine
	subjects    SubjectLister
	leaderboard LeaderboardGetter
	log         zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	engine SessionEngine,
	subjects SubjectLister,
	leaderboard LeaderboardGetter,
	log zerolog.Logger,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		engine:      engine,
		subjects:    subjects,
		leaderboard: leaderboard,
		log:         log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// ListSubjects godoc
// GET /api/v1/student/subjects
// Returns subjects a student can start a session for.
func (h *StudentPortalHandler) ListSubjects(c *gin.Context) {
	subjects, err := h.subjects.ListActive(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"subjects": subjects})
}

// StartSession godoc
// POST /api/v1/student/subjects/:subject_id/sessions
// Starts a session, or resumes the one already in progress (idempotent).
func (h *StudentPortalHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	subjectID, err := strconv.Atoi(c.Param("subject_id"))
	if err != nil || subjectID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.engine.StartSession(c.Request.Context(), claims.UserID, subjectID)
	if err != nil {
		failSession(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if result.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, result)
}

// ListHistory godoc
// GET /api/v1/student/sessions
// Returns the student's sessions, newest first, without per-question detail.
func (h *StudentPortalHandler) ListHistory(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	history, err := h.engine.ListHistory(c.Request.Context(), claims.UserID)
	if err != nil {
		failSession(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": history})
}

// LoadSession godoc
// GET /api/v1/student/sessions/:session_id
// Returns questions, saved answers and the remaining time of a live session.
// This is what the exam page calls after a reload.
func (h *StudentPortalHandler) LoadSession(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	state, err := h.engine.LoadSession(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failSession(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// RecordAnswer godoc
// PATCH /api/v1/student/sessions/:session_id/answers/:question_id
// Partially updates one answer. Absent fields keep their stored value.
func (h *StudentPortalHandler) RecordAnswer(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	patch, valid := req.ToPatch()
	if !valid {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"selected_option": "selected_option must be one of A, B, C, D or empty"})
		return
	}

	remaining, err := h.engine.RecordAnswer(c.Request.Context(), service.RecordAnswerInput{
		StudentID:        claims.UserID,
		SessionID:        sessionID,
		QuestionID:       questionID,
		Patch:            patch,
		RemainingSeconds: req.RemainingSeconds,
	})
	if err != nil {
		failSession(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_id":       questionID,
		"remaining_seconds": remaining,
	})
}

// SubmitSession godoc
// POST /api/v1/student/sessions/:session_id/submit
// Grades and closes the session. Submitting again returns the stored result.
func (h *StudentPortalHandler) SubmitSession(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	var req model.SubmitSessionRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	session, err := h.engine.Submit(c.Request.Context(), sessionID, claims.UserID, req.RemainingSeconds)
	if err != nil {
		failSession(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetResult godoc
// GET /api/v1/student/sessions/:session_id/result
// Returns the graded result. Per-question detail is included only during
// the review window; afterwards review_expired is true and items is absent.
func (h *StudentPortalHandler) GetResult(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	view, err := h.engine.GetResult(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failSession(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// GetLeaderboard godoc
// GET /api/v1/student/subjects/:subject_id/leaderboard?limit=10
// Returns the best scores for a subject and the caller's own rank.
func (h *StudentPortalHandler) GetLeaderboard(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	subjectID, err := strconv.Atoi(c.Param("subject_id"))
	if err != nil || subjectID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	limit := defaultLeaderboardSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"limit": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLeaderboardSize)
	}

	board, err := h.leaderboard.Get(c.Request.Context(), subjectID, claims.UserID, limit)
	if err != nil {
		h.log.Error().Err(err).Int("subject_id", subjectID).Msg("Leaderboard read failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, board)
}

// sessionParams extracts the caller and the :session_id path param, writing
// the error response itself when either is missing or malformed.
func sessionParams(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, sessionID, true
}
