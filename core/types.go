/*
This file defines the wire types for the chat API: the inbound request
shapes, the server-sent event protocol emitted while a turn executes, and the
execution control types.

The streaming protocol is a sequence of JSON objects tagged by Type. A normal
turn produces, in order: stream_start, one or more react_step/reasoning_token
events, stream_complete, completion, and finally evaluation and
evaluation_complete once the judge has scored the exchange. A failed turn
replaces the react steps' tail with a single error event but still terminates
with stream_complete.
*/
package core

// Stream event types.
const (
	EventStreamStart        = "stream_start"
	EventReactStep          = "react_step"
	EventReasoningToken     = "reasoning_token"
	EventError              = "error"
	EventStreamComplete     = "stream_complete"
	EventCompletion         = "completion"
	EventEvaluation         = "evaluation"
	EventEvaluationComplete = "evaluation_complete"
)

// Reasoning phases carried by react_step events.
const (
	PhaseThought     = "THOUGHT"
	PhaseAction      = "ACTION"
	PhaseObservation = "OBSERVATION"
	PhaseFinalAnswer = "FINAL_ANSWER"
)

// ChatRequest represents an incoming chat message. The authenticated user is
// taken from the bearer token, never from the request body.
type ChatRequest struct {
	Message      string `json:"message"`
	ChatThreadID string `json:"chat_thread_id,omitempty"` // Omitted for a new conversation; server assigns one
}

// ChatResponse is the non-streaming reply: the final answer plus turn metadata.
type ChatResponse struct {
	Response     string            `json:"response"`
	ChatThreadID string            `json:"chat_thread_id"`
	ToolsUsed    []string          `json:"tools_used"`
	Evaluation   *EvaluationResult `json:"evaluation,omitempty"`
}

// StreamEvent is one server-sent event in the turn protocol. Fields beyond
// Type are populated per event kind; omitempty keeps each event minimal.
type StreamEvent struct {
	Type           string            `json:"type"`
	Step           int               `json:"step,omitempty"`
	Phase          string            `json:"phase,omitempty"`
	Content        string            `json:"content,omitempty"`
	Details        map[string]any    `json:"details,omitempty"`
	UserID         string            `json:"user_id,omitempty"`
	ChatThreadID   string            `json:"chat_thread_id,omitempty"`
	ToolsUsed      int               `json:"tools_used,omitempty"`
	ResponseLength int               `json:"response_length,omitempty"`
	Evaluation     *EvaluationResult `json:"evaluation,omitempty"`
	Timestamp      string            `json:"timestamp"`
}

// StopRequest asks the server to cancel an in-flight turn.
type StopRequest struct {
	ExecutionID string `json:"executionId"`
}

// StopResponse reports the outcome of a stop request.
type StopResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Stopped bool   `json:"stopped"`
}

// RegisterRequest creates a new user account.
type RegisterRequest struct {
	UserID    string `json:"user_id"`
	Password  string `json:"password"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// LoginRequest exchanges credentials for a bearer token.
type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// FeedbackRequest rates one chat turn: 1 thumbs up, 2 thumbs down.
type FeedbackRequest struct {
	ChatHistoryID int64  `json:"chat_history_id"`
	Rating        int    `json:"rating"`
	Comments      string `json:"comments,omitempty"`
}
