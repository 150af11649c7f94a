/*
This file implements the execution event model and the stream normalizer.

The turn engine reports its progress as ExecEvent values, a closed set of
variants decoded once at the engine boundary: model start/token/end, tool
start/end, and chain end. The StreamNormalizer translates those into the
client-facing StreamEvent protocol, owning the per-turn step counter and the
once-only emission of the FINAL_ANSWER step.
*/
package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// ExecEventKind discriminates the engine's execution event variants.
type ExecEventKind int

const (
	ExecModelStart ExecEventKind = iota
	ExecModelToken
	ExecModelEnd
	ExecToolStart
	ExecToolEnd
	ExecChainEnd
)

// ToolCallInfo identifies one requested tool call.
type ToolCallInfo struct {
	Name      string
	Arguments string // Raw JSON arguments as produced by the model
	CallID    string
}

// ExecEvent is one engine-internal execution event. Fields are populated per
// Kind: Content for ModelToken/ModelEnd, ToolCalls for ModelEnd, Tool and
// Output for the tool events, Messages for ChainEnd.
type ExecEvent struct {
	Kind      ExecEventKind
	Content   string
	ToolCalls []ToolCallInfo
	Tool      ToolCallInfo
	Output    string
	Messages  []llms.MessageContent
}

// EventSink receives normalized stream events in order.
type EventSink func(StreamEvent)

// StreamNormalizer converts ExecEvents into the StreamEvent protocol for one
// turn. Not safe for concurrent use; the engine delivers events sequentially.
type StreamNormalizer struct {
	userID       string
	threadID     string
	sink         EventSink
	step         int
	finalEmitted bool
	finalAnswer  string
	toolsUsed    []string
}

// NewStreamNormalizer creates a normalizer for one turn. Events are pushed to
// sink as they are produced.
func NewStreamNormalizer(userID, threadID string, sink EventSink) *StreamNormalizer {
	return &StreamNormalizer{
		userID:   userID,
		threadID: threadID,
		sink:     sink,
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// StreamStart emits the opening event of the turn. A non-empty executionID
// is included so the client can target /stop.
func (n *StreamNormalizer) StreamStart(executionID string) {
	var details map[string]any
	if executionID != "" {
		details = map[string]any{"execution_id": executionID}
	}
	n.sink(StreamEvent{
		Type:         EventStreamStart,
		UserID:       n.userID,
		ChatThreadID: n.threadID,
		Details:      details,
		Timestamp:    timestamp(),
	})
}

// Handle translates one execution event. Unknown kinds are impossible by
// construction; the switch is exhaustive over the variant set.
func (n *StreamNormalizer) Handle(ev ExecEvent) {
	switch ev.Kind {
	case ExecModelStart:
		n.step++
		n.emitStep(PhaseThought, "Analyzing the request and deciding the next action", nil)

	case ExecModelToken:
		if ev.Content == "" {
			return
		}
		n.sink(StreamEvent{
			Type:      EventReasoningToken,
			Content:   ev.Content,
			Step:      n.step,
			UserID:    n.userID,
			Timestamp: timestamp(),
		})

	case ExecModelEnd:
		if len(ev.ToolCalls) == 0 {
			return
		}
		// Announce the first requested call; each call still gets its own
		// ToolStart/ToolEnd pair.
		call := ev.ToolCalls[0]
		n.emitStep(PhaseAction, fmt.Sprintf("Decided to call %s", call.Name), map[string]any{
			"tool_name": call.Name,
			"arguments": decodeArguments(call.Arguments),
			"call_id":   call.CallID,
		})

	case ExecToolStart:
		n.step++
		n.toolsUsed = appendDistinct(n.toolsUsed, ev.Tool.Name)
		n.emitStep(PhaseAction, fmt.Sprintf("Executing %s", ev.Tool.Name), map[string]any{
			"tool_name": ev.Tool.Name,
			"arguments": decodeArguments(ev.Tool.Arguments),
			"call_id":   ev.Tool.CallID,
			"status":    "started",
		})

	case ExecToolEnd:
		n.emitStep(PhaseObservation, resultPreview(ev.Tool.Name, ev.Output), map[string]any{
			"tool_name": ev.Tool.Name,
			"call_id":   ev.Tool.CallID,
		})

	case ExecChainEnd:
		if n.finalEmitted {
			return
		}
		answer := lastFinalAnswer(ev.Messages)
		if answer == "" {
			return
		}
		n.finalEmitted = true
		n.finalAnswer = answer
		n.step++
		n.emitStep(PhaseFinalAnswer, answer, nil)
	}
}

// Error emits a single terminal error event for an aborted turn.
func (n *StreamNormalizer) Error(message string) {
	n.sink(StreamEvent{
		Type:      EventError,
		Content:   message,
		Timestamp: timestamp(),
	})
}

// StreamComplete terminates the event stream. Emitted on success and failure
// alike so the client always sees a well-formed stream.
func (n *StreamNormalizer) StreamComplete() {
	n.sink(StreamEvent{
		Type:      EventStreamComplete,
		Timestamp: timestamp(),
	})
}

// Completion emits the turn summary following stream_complete.
func (n *StreamNormalizer) Completion() {
	n.sink(StreamEvent{
		Type:           EventCompletion,
		ChatThreadID:   n.threadID,
		ToolsUsed:      len(n.toolsUsed),
		ResponseLength: len(n.finalAnswer),
		Timestamp:      timestamp(),
	})
}

// EmitEvaluation appends the judge's verdict to the stream: the full result,
// then a compact completion marker.
func (n *StreamNormalizer) EmitEvaluation(result *EvaluationResult) {
	n.sink(StreamEvent{
		Type:       EventEvaluation,
		Evaluation: result,
		UserID:     n.userID,
		Timestamp:  timestamp(),
	})
	n.sink(StreamEvent{
		Type:       EventEvaluationComplete,
		Content:    fmt.Sprintf("Evaluation complete: overall score %d/5 (%s confidence)", result.OverallScore, result.ConfidenceLevel),
		Evaluation: result,
		UserID:     n.userID,
		Details: map[string]any{
			"overall_score":    result.OverallScore,
			"confidence_level": result.ConfidenceLevel,
		},
		Timestamp: timestamp(),
	})
}

// FinalAnswer returns the answer text emitted by this turn, empty if none.
func (n *StreamNormalizer) FinalAnswer() string { return n.finalAnswer }

// ToolsUsed returns the distinct tool names used, in first-use order.
func (n *StreamNormalizer) ToolsUsed() []string { return n.toolsUsed }

func (n *StreamNormalizer) emitStep(phase, content string, details map[string]any) {
	n.sink(StreamEvent{
		Type:      EventReactStep,
		Step:      n.step,
		Phase:     phase,
		Content:   content,
		Details:   details,
		UserID:    n.userID,
		Timestamp: timestamp(),
	})
}

// lastFinalAnswer scans the message list in reverse for the last assistant
// message that carries text and no tool calls.
func lastFinalAnswer(messages []llms.MessageContent) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != llms.ChatMessageTypeAI {
			continue
		}
		var text strings.Builder
		hasToolCall := false
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				text.WriteString(p.Text)
			case llms.ToolCall:
				hasToolCall = true
			}
		}
		if !hasToolCall && strings.TrimSpace(text.String()) != "" {
			return text.String()
		}
	}
	return ""
}

func decodeArguments(raw string) map[string]any {
	args := make(map[string]any)
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &args)
	}
	return args
}

func appendDistinct(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}

const rawPreviewLimit = 150

// resultPreview renders a one-line human-readable summary of a tool's output
// for OBSERVATION steps. Unrecognized output falls back to a truncated raw
// preview.
func resultPreview(toolName, output string) string {
	var payload map[string]any
	if err := json.Unmarshal([]byte(output), &payload); err != nil {
		return rawPreview(output)
	}

	if errKind, ok := payload["error"].(string); ok {
		return fmt.Sprintf("Tool error: %s", errKind)
	}

	switch toolName {
	case "get_account_balance":
		accounts, ok := payload["accounts"].([]any)
		total, okTotal := payload["total_balance"].(float64)
		if ok && okTotal {
			return fmt.Sprintf("Found %d accounts with total balance $%.2f", len(accounts), total)
		}
	case "get_transactions":
		txns, ok := payload["transactions"].([]any)
		total, okTotal := payload["total_count"].(float64)
		if ok && okTotal {
			return fmt.Sprintf("Found %d of %d matching transactions", len(txns), int(total))
		}
	case "get_credit_card_info":
		if total, ok := payload["total_cards"].(float64); ok {
			return fmt.Sprintf("Found %d credit cards", int(total))
		}
	case "search_bank_documents":
		if results, ok := payload["results"].([]any); ok {
			if len(results) == 0 {
				if msg, ok := payload["message"].(string); ok {
					return msg
				}
				return "No relevant documents found"
			}
			return fmt.Sprintf("Found %d relevant documents", len(results))
		}
	}
	return rawPreview(output)
}

func rawPreview(output string) string {
	preview := strings.TrimSpace(output)
	if len(preview) > rawPreviewLimit {
		preview = preview[:rawPreviewLimit] + "..."
	}
	return preview
}
