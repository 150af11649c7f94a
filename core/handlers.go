/*
This file implements the REST handlers surrounding the chat pipeline:
account registration and login, chat history and thread management, and
feedback collection.

All handlers here are CRUD plumbing over the relational store; the
authenticated user comes from the bearer token and every lookup is scoped to
that user.
*/
package core

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const maxHistoryLimit = 100

// handleRegister creates a new user account.
func (s *Server) handleRegister(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/auth/register")

	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id and password are required"})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "password must be at least 8 characters"})
	}

	ctx := c.Request().Context()
	if _, err := s.db.GetUserByUserID(ctx, req.UserID); err == nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "user already exists"})
	} else if !isNoRows(err) {
		requestLogger.WithError(err).Error("User lookup failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "registration failed"})
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		requestLogger.WithError(err).Error("Password hashing failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "registration failed"})
	}

	if _, err := s.db.CreateUser(ctx, req.UserID, hash, req.Email, req.FirstName, req.LastName); err != nil {
		requestLogger.WithError(err).Error("User creation failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "registration failed"})
	}

	requestLogger.WithField("userId", req.UserID).Info("User registered")
	return c.JSON(http.StatusCreated, map[string]string{"user_id": req.UserID})
}

// handleLogin exchanges credentials for a bearer token.
func (s *Server) handleLogin(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/auth/login")

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	user, err := s.db.GetUserByUserID(c.Request().Context(), strings.TrimSpace(req.UserID))
	if isNoRows(err) || (err == nil && !CheckPassword(user.PasswordHash, req.Password)) {
		requestLogger.WithField("userId", req.UserID).Warn("Login rejected")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}
	if err != nil {
		requestLogger.WithError(err).Error("User lookup failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "login failed"})
	}
	if !user.IsActive {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "account is inactive"})
	}

	token, err := IssueToken(user.UserID, s.config.JWTSecret, s.config.TokenLifetime)
	if err != nil {
		requestLogger.WithError(err).Error("Token issuance failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "login failed"})
	}

	requestLogger.WithField("userId", user.UserID).Info("User logged in")
	return c.JSON(http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.config.TokenLifetime.Seconds()),
	})
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(c echo.Context) error {
	user, err := s.db.GetUserByUserID(c.Request().Context(), AuthenticatedUser(c))
	if isNoRows(err) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"user_id":    user.UserID,
		"email":      user.Email,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"created_at": user.CreatedAt,
	})
}

// handleChatHistory lists the user's turns, optionally scoped to one thread.
func (s *Server) handleChatHistory(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := s.db.GetUserByUserID(ctx, AuthenticatedUser(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	}

	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 1 || val > maxHistoryLimit {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 100"})
		}
		limit = val
	}

	records, err := s.db.ListChatHistory(ctx, user.ID, c.QueryParam("chat_thread_id"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "history lookup failed"})
	}

	items := make([]map[string]any, 0, len(records))
	for _, r := range records {
		item := map[string]any{
			"id":               r.ID,
			"chat_thread_id":   r.ChatThreadID,
			"user_query":       r.UserQuery,
			"bot_response":     r.BotResponse,
			"response_time_ms": r.ResponseTimeMs,
			"created_at":       r.CreatedAt,
		}
		if r.ToolsUsed != "" {
			var toolNames []string
			if json.Unmarshal([]byte(r.ToolsUsed), &toolNames) == nil {
				item["tools_used"] = toolNames
			}
		}
		if r.Evaluation != "" {
			var evaluation EvaluationResult
			if json.Unmarshal([]byte(r.Evaluation), &evaluation) == nil {
				item["evaluation"] = evaluation
			}
		}
		items = append(items, item)
	}

	return c.JSON(http.StatusOK, map[string]any{"history": items, "count": len(items)})
}

// handleListThreads summarizes the user's conversation threads.
func (s *Server) handleListThreads(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := s.db.GetUserByUserID(ctx, AuthenticatedUser(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	}

	threads, err := s.db.ListThreads(ctx, user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "thread lookup failed"})
	}

	items := make([]map[string]any, 0, len(threads))
	for _, t := range threads {
		items = append(items, map[string]any{
			"chat_thread_id": t.ChatThreadID,
			"message_count":  t.MessageCount,
			"last_activity":  t.LastActivity,
			"first_query":    t.FirstQuery,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"threads": items, "count": len(items)})
}

// handleDeleteThread removes one thread's history and its in-memory state.
func (s *Server) handleDeleteThread(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/chat/threads/:threadId")

	ctx := c.Request().Context()
	userID := AuthenticatedUser(c)
	threadID := c.Param("threadId")

	user, err := s.db.GetUserByUserID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	}

	deleted, err := s.db.DeleteThread(ctx, user.ID, threadID)
	if err != nil {
		requestLogger.WithError(err).Error("Thread deletion failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "deletion failed"})
	}
	s.memory.Delete(threadID, userID)

	requestLogger.WithFields(logrus.Fields{
		"threadId": threadID,
		"deleted":  deleted,
	}).Info("Thread deleted")
	return c.JSON(http.StatusOK, map[string]any{"deleted_messages": deleted})
}

// handleDeleteAllThreads wipes the user's entire chat history.
func (s *Server) handleDeleteAllThreads(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/chat/threads")

	ctx := c.Request().Context()
	user, err := s.db.GetUserByUserID(ctx, AuthenticatedUser(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	}

	deleted, err := s.db.DeleteAllThreads(ctx, user.ID)
	if err != nil {
		requestLogger.WithError(err).Error("History deletion failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "deletion failed"})
	}

	requestLogger.WithField("deleted", deleted).Info("All threads deleted")
	return c.JSON(http.StatusOK, map[string]any{"deleted_messages": deleted})
}

// handleFeedback records a thumbs up/down for one chat turn. Ratings: 1
// positive, 2 negative.
func (s *Server) handleFeedback(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/feedback")

	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Rating != 1 && req.Rating != 2 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "rating must be 1 (positive) or 2 (negative)"})
	}

	ctx := c.Request().Context()
	user, err := s.db.GetUserByUserID(ctx, AuthenticatedUser(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	}

	// Ownership check: the turn being rated must belong to the caller.
	if _, err := s.db.GetChatTurn(ctx, user.ID, req.ChatHistoryID); isNoRows(err) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "chat message not found"})
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	}

	if err := s.db.UpsertFeedback(ctx, user.ID, req.ChatHistoryID, req.Rating, req.Comments); err != nil {
		requestLogger.WithError(err).Error("Feedback save failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "feedback save failed"})
	}

	requestLogger.WithFields(logrus.Fields{
		"chatHistoryId": req.ChatHistoryID,
		"rating":        req.Rating,
	}).Info("Feedback recorded")
	return c.JSON(http.StatusOK, map[string]string{"status": "recorded"})
}

// handleMyFeedback lists the user's feedback entries.
func (s *Server) handleMyFeedback(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := s.db.GetUserByUserID(ctx, AuthenticatedUser(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	}

	records, err := s.db.ListFeedback(ctx, user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "feedback lookup failed"})
	}

	items := make([]map[string]any, 0, len(records))
	for _, r := range records {
		items = append(items, map[string]any{
			"id":              r.ID,
			"chat_history_id": r.ChatHistoryID,
			"rating":          r.Rating,
			"comments":        r.Comments,
			"created_at":      r.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"feedback": items, "count": len(items)})
}
