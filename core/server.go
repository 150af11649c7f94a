/*
This file implements the HTTP server: dependency wiring and the chat
endpoints.

The streaming endpoint speaks server-sent events, one JSON StreamEvent per
"data:" line, flushed per event. A turn's stream is always well-terminated:
stream_complete follows both successful turns and aborted ones. The judge
runs after stream_complete in the request's context, so a client disconnect
also cancels the evaluation.
*/
package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/arslan2k12/BankingBot/store"
	"github.com/arslan2k12/BankingBot/tools"
	"github.com/arslan2k12/BankingBot/vectorstore"
)

// Server holds the wired application: engine, judge, stores and execution
// tracking. Constructed once at startup and passed to echo by reference.
type Server struct {
	engine        *Engine
	judge         *Judge
	db            *store.Store
	memory        *ConversationStore
	cancelManager *CancelManager
	config        *Config
	logger        *logrus.Logger
}

// NewServer creates a server instance with all dependencies initialized.
func NewServer(config *Config, logger *logrus.Logger, db *store.Store, index *vectorstore.VectorStore) (*Server, error) {
	logger.Info("Starting server initialization")

	model, err := NewChatModel(config, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize chat model: %w", err)
	}

	registry := tools.NewRegistry()
	for _, spec := range []*tools.Spec{
		tools.NewBalanceTool(db),
		tools.NewTransactionsTool(db),
		tools.NewCreditCardTool(db),
		tools.NewDocumentSearchTool(index),
	} {
		if err := registry.Register(spec); err != nil {
			return nil, fmt.Errorf("register tools: %w", err)
		}
	}
	logger.WithField("tools", strings.Join(registry.Names(), ",")).Info("Tool registry initialized")

	memory := NewConversationStore(config.ConversationMaxAge, config.CleanupInterval, logger)
	logger.WithField("conversationMaxAge", config.ConversationMaxAge).Info("Conversation store initialized")

	return &Server{
		engine:        NewEngine(model, registry, memory, config, logger),
		judge:         NewJudge(model, config, logger),
		db:            db,
		memory:        memory,
		cancelManager: NewCancelManager(),
		config:        config,
		logger:        logger,
	}, nil
}

// RegisterRoutes attaches all endpoints to the echo instance.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	s.logger.Info("Registering routes")

	e.POST("/auth/register", s.handleRegister)
	e.POST("/auth/login", s.handleLogin)

	auth := AuthMiddleware(s.config.JWTSecret)
	e.GET("/auth/me", s.handleMe, auth)

	e.POST("/chat/message", s.handleChatMessage, auth)
	e.POST("/chat/stream", s.handleStreamChat, auth)
	e.GET("/chat/history", s.handleChatHistory, auth)
	e.GET("/chat/threads", s.handleListThreads, auth)
	e.DELETE("/chat/threads/:threadId", s.handleDeleteThread, auth)
	e.DELETE("/chat/threads", s.handleDeleteAllThreads, auth)

	e.POST("/feedback", s.handleFeedback, auth)
	e.GET("/feedback/my-feedback", s.handleMyFeedback, auth)

	e.POST("/stop", s.handleStopExecution, auth)
	e.GET("/status", s.handleStatus)

	s.logger.Info("Routes registered successfully")
}

func (s *Server) requestLogger(c echo.Context, endpoint string) *logrus.Entry {
	requestID := c.Request().Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return s.logger.WithFields(logrus.Fields{
		"requestId": requestID,
		"endpoint":  endpoint,
		"method":    c.Request().Method,
		"clientIP":  c.RealIP(),
	})
}

// handleChatMessage runs one turn without streaming and returns the final
// answer together with its evaluation.
func (s *Server) handleChatMessage(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/chat/message")
	requestLogger.Info("Received chat request")

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse request body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Message is required"})
	}

	userID := AuthenticatedUser(c)
	threadID := req.ChatThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer cancel()

	startTime := time.Now()
	result, err := s.engine.RunTurn(ctx, userID, threadID, req.Message, func(ExecEvent) {})
	if err != nil {
		requestLogger.WithError(err).Error("Turn failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": s.errorMessage(err)})
	}

	evaluation := s.judge.EvaluateResponse(ctx, req.Message, result.FinalAnswer, result.ToolContext)
	s.persistTurn(ctx, requestLogger, userID, threadID, req.Message, result, time.Since(startTime), evaluation)

	return c.JSON(http.StatusOK, ChatResponse{
		Response:     result.FinalAnswer,
		ChatThreadID: threadID,
		ToolsUsed:    result.ToolsUsed,
		Evaluation:   evaluation,
	})
}

// handleStreamChat runs one turn while streaming the normalized event
// protocol over SSE.
func (s *Server) handleStreamChat(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/chat/stream")
	requestLogger.Info("Received streaming chat request")

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse streaming request body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Message is required"})
	}

	userID := AuthenticatedUser(c)
	threadID := req.ChatThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")

	// Cancellation flows from two sides: client disconnect through the
	// request context, explicit /stop through the cancel manager.
	executionID := fmt.Sprintf("exec_%d", time.Now().UnixNano())
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer func() {
		s.cancelManager.RemoveExecution(executionID)
		cancel()
	}()
	s.cancelManager.AddExecution(executionID, cancel)

	normalizer := NewStreamNormalizer(userID, threadID, func(ev StreamEvent) {
		s.sendStreamEvent(c, ev)
	})

	requestLogger.WithFields(logrus.Fields{
		"userId":      userID,
		"threadId":    threadID,
		"executionID": executionID,
	}).Info("Starting streaming execution")

	normalizer.StreamStart(executionID)

	startTime := time.Now()
	result, err := s.engine.RunTurn(ctx, userID, threadID, req.Message, normalizer.Handle)
	if err != nil {
		requestLogger.WithError(err).Error("Streaming turn failed")
		normalizer.Error(s.errorMessage(err))
		normalizer.StreamComplete()
		normalizer.Completion()
		return nil
	}

	normalizer.StreamComplete()
	normalizer.Completion()

	// The judge runs in the request's context: a disconnected client also
	// cancels the evaluation.
	evaluation := s.judge.EvaluateResponse(ctx, req.Message, result.FinalAnswer, result.ToolContext)
	normalizer.EmitEvaluation(evaluation)

	s.persistTurn(ctx, requestLogger, userID, threadID, req.Message, result, time.Since(startTime), evaluation)

	requestLogger.WithFields(logrus.Fields{
		"executionID":    executionID,
		"responseLength": len(result.FinalAnswer),
		"duration":       time.Since(startTime),
	}).Info("Streaming execution completed")
	return nil
}

// persistTurn records the completed turn in chat_history and bot_logs.
// Persistence failures are logged, never surfaced to the client.
func (s *Server) persistTurn(ctx context.Context, requestLogger *logrus.Entry, userID, threadID, message string, result *TurnResult, elapsed time.Duration, evaluation *EvaluationResult) {
	user, err := s.db.GetUserByUserID(ctx, userID)
	if err != nil {
		requestLogger.WithError(err).Warn("Could not resolve user for persistence")
		return
	}

	toolsJSON, _ := json.Marshal(result.ToolsUsed)
	evaluationJSON := ""
	if evaluation != nil {
		if data, err := json.Marshal(evaluation); err == nil {
			evaluationJSON = string(data)
		}
	}

	chatID, err := s.db.SaveChatTurn(ctx, user.ID, store.ChatRecord{
		ChatThreadID:   threadID,
		UserQuery:      message,
		BotResponse:    result.FinalAnswer,
		ToolsUsed:      string(toolsJSON),
		ResponseTimeMs: elapsed.Milliseconds(),
		Evaluation:     evaluationJSON,
	})
	if err != nil {
		requestLogger.WithError(err).Error("Failed to persist chat turn")
		return
	}

	s.db.LogBotEvent(ctx, user.ID, threadID, "INFO",
		fmt.Sprintf("turn completed: chat_history_id=%d tools=%s", chatID, strings.Join(result.ToolsUsed, ",")))
}

// sendStreamEvent writes one SSE frame and flushes it immediately.
func (s *Server) sendStreamEvent(c echo.Context, ev StreamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode stream event")
		return
	}
	fmt.Fprintf(c.Response(), "data: %s\n\n", string(data))
	c.Response().Flush()
}

// errorMessage maps turn errors to client-safe text.
func (s *Server) errorMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Please try again."
	default:
		return "An error occurred while processing your request. Please try again."
	}
}

// handleStopExecution cancels an in-flight streaming turn by execution id.
func (s *Server) handleStopExecution(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/stop")

	var req StopRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse stop request")
		return c.JSON(http.StatusBadRequest, StopResponse{
			Success: false,
			Message: "Invalid request body",
		})
	}
	if req.ExecutionID == "" {
		return c.JSON(http.StatusBadRequest, StopResponse{
			Success: false,
			Message: "executionId is required",
		})
	}

	requestLogger.WithField("executionID", req.ExecutionID).Info("Attempting to stop execution")

	if s.cancelManager.CancelExecution(req.ExecutionID) {
		requestLogger.WithField("executionID", req.ExecutionID).Info("Execution stopped successfully")
		return c.JSON(http.StatusOK, StopResponse{
			Success: true,
			Message: "Execution stopped",
			Stopped: true,
		})
	}

	requestLogger.WithField("executionID", req.ExecutionID).Warn("Execution not found or already completed")
	return c.JSON(http.StatusOK, StopResponse{
		Success: true,
		Message: "Execution not found or already completed",
		Stopped: false,
	})
}

// handleStatus reports service health and operational counters.
func (s *Server) handleStatus(c echo.Context) error {
	dbStatus := "ok"
	if err := s.db.Ping(c.Request().Context()); err != nil {
		dbStatus = "unavailable"
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":           "running",
		"database":         dbStatus,
		"llmProvider":      s.config.LLMProvider,
		"conversations":    s.memory.Stats(),
		"activeExecutions": len(s.cancelManager.GetActiveExecutions()),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

// isNoRows is shared by the ownership-checked lookups in handlers.go.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
