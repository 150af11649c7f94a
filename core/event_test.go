package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func collectEvents() (*[]StreamEvent, EventSink) {
	events := &[]StreamEvent{}
	return events, func(ev StreamEvent) { *events = append(*events, ev) }
}

func finalAnswerMessages(answer string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "hi"),
		{
			Role: llms.ChatMessageTypeAI,
			Parts: []llms.ContentPart{llms.ToolCall{
				ID:           "call_1",
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: "get_account_balance", Arguments: "{}"},
			}},
		},
		llms.TextParts(llms.ChatMessageTypeAI, answer),
	}
}

func TestNormalizerSingleFinalAnswer(t *testing.T) {
	events, sink := collectEvents()
	n := NewStreamNormalizer("jane_smith", "t1", sink)

	messages := finalAnswerMessages("Your balance is $350.50")
	n.Handle(ExecEvent{Kind: ExecChainEnd, Messages: messages})
	n.Handle(ExecEvent{Kind: ExecChainEnd, Messages: messages})
	n.Handle(ExecEvent{Kind: ExecChainEnd, Messages: messages})

	finals := 0
	for _, ev := range *events {
		if ev.Type == EventReactStep && ev.Phase == PhaseFinalAnswer {
			finals++
			assert.Equal(t, "Your balance is $350.50", ev.Content)
		}
	}
	assert.Equal(t, 1, finals, "duplicate chain-end signals must not duplicate the final answer")
	assert.Equal(t, "Your balance is $350.50", n.FinalAnswer())
}

func TestNormalizerFinalAnswerSkipsToolCallMessages(t *testing.T) {
	// The last AI message carries a tool call; the scan must pick the
	// last AI message with plain text and no pending calls.
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeAI, "the real answer"),
		{
			Role: llms.ChatMessageTypeAI,
			Parts: []llms.ContentPart{llms.ToolCall{
				ID:           "call_9",
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: "get_transactions", Arguments: "{}"},
			}},
		},
	}
	assert.Equal(t, "the real answer", lastFinalAnswer(messages))
	assert.Equal(t, "", lastFinalAnswer(nil))
}

func TestNormalizerStepMonotonicity(t *testing.T) {
	events, sink := collectEvents()
	n := NewStreamNormalizer("jane_smith", "t1", sink)

	call := ToolCallInfo{Name: "get_account_balance", Arguments: `{"user_id":"jane_smith"}`, CallID: "call_1"}
	n.Handle(ExecEvent{Kind: ExecModelStart})
	n.Handle(ExecEvent{Kind: ExecModelToken, Content: "Thinking"})
	n.Handle(ExecEvent{Kind: ExecModelEnd, ToolCalls: []ToolCallInfo{call}})
	n.Handle(ExecEvent{Kind: ExecToolStart, Tool: call})
	n.Handle(ExecEvent{Kind: ExecToolEnd, Tool: call, Output: `{"accounts":[],"total_balance":0}`})
	n.Handle(ExecEvent{Kind: ExecModelStart})
	n.Handle(ExecEvent{Kind: ExecChainEnd, Messages: finalAnswerMessages("done")})

	lastStep := 0
	first := true
	for _, ev := range *events {
		if ev.Type != EventReactStep && ev.Type != EventReasoningToken {
			continue
		}
		if first {
			assert.Equal(t, 1, ev.Step, "step counter starts at 1")
			first = false
		}
		assert.GreaterOrEqual(t, ev.Step, lastStep, "steps never decrease")
		lastStep = ev.Step
	}
	assert.Equal(t, 4, lastStep)
}

func TestNormalizerSuppressesEmptyTokens(t *testing.T) {
	events, sink := collectEvents()
	n := NewStreamNormalizer("jane_smith", "t1", sink)

	n.Handle(ExecEvent{Kind: ExecModelStart})
	n.Handle(ExecEvent{Kind: ExecModelToken, Content: ""})
	n.Handle(ExecEvent{Kind: ExecModelToken, Content: "ok"})

	tokens := 0
	for _, ev := range *events {
		if ev.Type == EventReasoningToken {
			tokens++
		}
	}
	assert.Equal(t, 1, tokens)
}

func TestNormalizerActionDetails(t *testing.T) {
	events, sink := collectEvents()
	n := NewStreamNormalizer("jane_smith", "t1", sink)

	call := ToolCallInfo{Name: "get_transactions", Arguments: `{"user_id":"jane_smith","limit":5}`, CallID: "call_2"}
	n.Handle(ExecEvent{Kind: ExecModelEnd, ToolCalls: []ToolCallInfo{call}})

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, PhaseAction, ev.Phase)
	assert.Equal(t, "get_transactions", ev.Details["tool_name"])
	assert.Equal(t, "call_2", ev.Details["call_id"])
	args := ev.Details["arguments"].(map[string]any)
	assert.Equal(t, "jane_smith", args["user_id"])
}

func TestResultPreviews(t *testing.T) {
	cases := []struct {
		tool     string
		output   string
		expected string
	}{
		{"get_account_balance", `{"accounts":[{},{}],"total_balance":350.5}`, "Found 2 accounts with total balance $350.50"},
		{"get_transactions", `{"transactions":[{}],"total_count":7}`, "Found 1 of 7 matching transactions"},
		{"get_credit_card_info", `{"credit_cards":[],"total_cards":2}`, "Found 2 credit cards"},
		{"search_bank_documents", `{"results":[{},{},{}]}`, "Found 3 relevant documents"},
		{"search_bank_documents", `{"results":[],"message":"No relevant documents found for your query."}`, "No relevant documents found for your query."},
		{"get_account_balance", `{"error":"User not found","user_id":"ghost"}`, "Tool error: User not found"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, resultPreview(tc.tool, tc.output), "tool=%s", tc.tool)
	}

	long := strings.Repeat("x", 400)
	preview := resultPreview("unknown_tool", long)
	assert.Len(t, preview, rawPreviewLimit+3)
	assert.True(t, strings.HasSuffix(preview, "..."))
}

func TestNormalizerEvaluationEvents(t *testing.T) {
	events, sink := collectEvents()
	n := NewStreamNormalizer("jane_smith", "t1", sink)

	result := &EvaluationResult{OverallScore: 4, ConfidenceLevel: "High", Summary: "solid answer"}
	n.EmitEvaluation(result)

	require.Len(t, *events, 2)
	assert.Equal(t, EventEvaluation, (*events)[0].Type)
	assert.Equal(t, result, (*events)[0].Evaluation)

	// The closing event carries the full evaluation too, so a client that
	// only reads the terminal frame still gets the verdict.
	closing := (*events)[1]
	assert.Equal(t, EventEvaluationComplete, closing.Type)
	assert.Equal(t, result, closing.Evaluation)
	assert.Contains(t, closing.Content, "4/5")
	assert.Equal(t, 4, closing.Details["overall_score"])
}

func TestNormalizerStreamLifecycle(t *testing.T) {
	events, sink := collectEvents()
	n := NewStreamNormalizer("jane_smith", "t1", sink)

	n.StreamStart("exec_42")
	call := ToolCallInfo{Name: "get_account_balance", Arguments: "{}", CallID: "c1"}
	n.Handle(ExecEvent{Kind: ExecModelStart})
	n.Handle(ExecEvent{Kind: ExecToolStart, Tool: call})
	n.Handle(ExecEvent{Kind: ExecToolEnd, Tool: call, Output: `{"accounts":[],"total_balance":0}`})
	n.Handle(ExecEvent{Kind: ExecChainEnd, Messages: finalAnswerMessages("all done")})
	n.StreamComplete()
	n.Completion()

	types := make([]string, 0, len(*events))
	for _, ev := range *events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, EventStreamStart, types[0])
	assert.Equal(t, "exec_42", (*events)[0].Details["execution_id"])
	assert.Equal(t, EventStreamComplete, types[len(types)-2])
	assert.Equal(t, EventCompletion, types[len(types)-1])

	completion := (*events)[len(*events)-1]
	assert.Equal(t, 1, completion.ToolsUsed)
	assert.Equal(t, len("all done"), completion.ResponseLength)
	assert.Equal(t, "t1", completion.ChatThreadID)
}
