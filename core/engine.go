/*
This file implements the turn execution engine: one conversation turn run as
an iterative think/act/observe loop against a function-calling model.

Per turn the engine acquires the conversation's lock, replays its history
behind the system prompt, and alternates between model calls and tool
dispatch until the model answers without requesting tools or the round cap is
reached. Tool failures come back as error envelopes the model can react to;
only model-call failures abort the turn. All progress is reported to the
caller's ExecEvent sink as it happens.
*/
package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"

	"github.com/arslan2k12/BankingBot/tools"
)

// degradedAnswer is the forced final answer when the round cap is exceeded.
const degradedAnswer = "I was unable to complete your request within the allowed number of steps. " +
	"Please try rephrasing your question or breaking it into smaller parts."

// Engine runs conversation turns against the model and tool registry.
type Engine struct {
	model    llms.Model
	registry *tools.Registry
	memory   *ConversationStore
	config   *Config
	logger   *logrus.Logger
}

// TurnResult summarizes a completed turn for persistence and evaluation.
type TurnResult struct {
	FinalAnswer string
	ToolsUsed   []string // Distinct tool names in first-use order
	ToolContext []string // Full unsummarized tool outputs, for the judge
}

// NewEngine wires the engine's collaborators.
func NewEngine(model llms.Model, registry *tools.Registry, memory *ConversationStore, config *Config, logger *logrus.Logger) *Engine {
	return &Engine{
		model:    model,
		registry: registry,
		memory:   memory,
		config:   config,
		logger:   logger,
	}
}

// RunTurn executes one turn for the authenticated user. The raw message is
// identity-injected before it reaches the model. Events are pushed to sink in
// order; on error the caller owns emitting the terminal error and
// stream_complete events.
func (e *Engine) RunTurn(ctx context.Context, userID, threadID, message string, sink func(ExecEvent)) (*TurnResult, error) {
	turnLogger := e.logger.WithFields(logrus.Fields{
		"userId":   userID,
		"threadId": threadID,
	})
	turnLogger.WithField("message", truncateForLog(message, e.config.LogTruncateLength)).Info("Turn started")

	conversation := e.memory.GetOrCreate(threadID, userID)
	conversation.Lock()
	defer conversation.Unlock()

	history := conversation.History()
	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt))
	messages = append(messages, history...)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, InjectIdentity(message, userID)))
	newStart := len(messages) - 1 // This turn's messages begin at the injected human message

	result := &TurnResult{}
	completed := false

	for round := 0; round < e.config.MaxToolRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("turn cancelled: %w", err)
		}

		sink(ExecEvent{Kind: ExecModelStart})

		response, err := e.model.GenerateContent(ctx, messages,
			llms.WithTools(e.registry.Definitions()),
			llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
				sink(ExecEvent{Kind: ExecModelToken, Content: string(chunk)})
				return nil
			}),
		)
		if err != nil {
			turnLogger.WithError(err).Error("Model call failed")
			return nil, fmt.Errorf("model call: %w", err)
		}
		if len(response.Choices) == 0 {
			turnLogger.Error("Model returned no choices")
			return nil, fmt.Errorf("model call: empty response")
		}
		choice := response.Choices[0]

		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if choice.Content != "" {
			assistant.Parts = append(assistant.Parts, llms.TextContent{Text: choice.Content})
		}
		calls := make([]ToolCallInfo, 0, len(choice.ToolCalls))
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			assistant.Parts = append(assistant.Parts, llms.ToolCall{
				ID:           tc.ID,
				Type:         tc.Type,
				FunctionCall: &llms.FunctionCall{Name: tc.FunctionCall.Name, Arguments: tc.FunctionCall.Arguments},
			})
			calls = append(calls, ToolCallInfo{
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
				CallID:    tc.ID,
			})
		}
		messages = append(messages, assistant)

		sink(ExecEvent{Kind: ExecModelEnd, Content: choice.Content, ToolCalls: calls})

		if len(calls) == 0 {
			completed = true
			break
		}

		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("turn cancelled: %w", err)
			}

			sink(ExecEvent{Kind: ExecToolStart, Tool: call})
			output := e.registry.Dispatch(ctx, call.Name, call.Arguments)
			sink(ExecEvent{Kind: ExecToolEnd, Tool: call, Output: output})

			result.ToolsUsed = appendDistinct(result.ToolsUsed, call.Name)
			result.ToolContext = append(result.ToolContext, fmt.Sprintf("[%s] %s", call.Name, output))

			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: call.CallID,
					Name:       call.Name,
					Content:    output,
				}},
			})
		}
	}

	if !completed {
		turnLogger.WithField("maxToolRounds", e.config.MaxToolRounds).Warn("Round cap exceeded, forcing degraded answer")
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, degradedAnswer))
	}

	sink(ExecEvent{Kind: ExecChainEnd, Messages: messages})

	result.FinalAnswer = lastFinalAnswer(messages)
	conversation.Append(messages[newStart:]...)

	turnLogger.WithFields(logrus.Fields{
		"toolsUsed":      strings.Join(result.ToolsUsed, ","),
		"responseLength": len(result.FinalAnswer),
	}).Info("Turn completed")
	return result, nil
}
