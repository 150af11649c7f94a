package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/arslan2k12/BankingBot/tools"
)

// scriptedModel plays back canned responses and records every call's
// messages. A nil response at an index means return err.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*llms.ContentResponse
	err       error
	calls     [][]llms.MessageContent
	delay     time.Duration
	active    int32
	maxActive int32
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	current := atomic.AddInt32(&m.active, 1)
	defer atomic.AddInt32(&m.active, -1)
	for {
		max := atomic.LoadInt32(&m.maxActive)
		if current <= max || atomic.CompareAndSwapInt32(&m.maxActive, max, current) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]llms.MessageContent, len(messages))
	copy(snapshot, messages)
	m.calls = append(m.calls, snapshot)

	if len(m.responses) == 0 {
		return nil, m.err
	}
	response := m.responses[0]
	m.responses = m.responses[1:]
	if response == nil {
		return nil, m.err
	}

	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	if opts.StreamingFunc != nil && len(response.Choices) > 0 && response.Choices[0].Content != "" {
		_ = opts.StreamingFunc(ctx, []byte(response.Choices[0].Content))
	}
	return response, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	response, err := m.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return response.Choices[0].Content, nil
}

func textResponse(content string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content, StopReason: "stop"}}}
}

func toolCallResponse(name, arguments, callID string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		StopReason: "tool_calls",
		ToolCalls: []llms.ToolCall{{
			ID:           callID,
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: arguments},
		}},
	}}}
}

func stubRegistry(t *testing.T, invocations *int32) *tools.Registry {
	t.Helper()
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&tools.Spec{
		Name:        "get_account_balance",
		Description: "stub",
		Parameters:  map[string]any{"user_id": map[string]any{"type": "string"}},
		Required:    []string{"user_id"},
		Handler: func(context.Context, map[string]any) string {
			if invocations != nil {
				atomic.AddInt32(invocations, 1)
			}
			return `{"accounts":[{"balance":100.0},{"balance":250.5}],"total_balance":350.5,"currency":"USD"}`
		},
	}))
	return registry
}

func newTestEngine(t *testing.T, model llms.Model, registry *tools.Registry, maxRounds int) *Engine {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	config := &Config{MaxToolRounds: maxRounds, LogTruncateLength: 500}
	memory := NewConversationStore(time.Hour, time.Hour, logger)
	return NewEngine(model, registry, memory, config, logger)
}

func TestRunTurnBalanceScenario(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse("get_account_balance", `{"user_id":"jane_smith"}`, "call_1"),
		textResponse("Your total balance is $350.50 across 2 accounts."),
	}}
	engine := newTestEngine(t, model, stubRegistry(t, nil), 12)

	events, sink := collectEvents()
	n := NewStreamNormalizer("jane_smith", "t1", sink)
	n.StreamStart("")

	result, err := engine.RunTurn(context.Background(), "jane_smith", "t1", "What's my account balance?", n.Handle)
	require.NoError(t, err)
	n.StreamComplete()
	n.Completion()

	assert.Contains(t, result.FinalAnswer, "$350.50")
	assert.Equal(t, []string{"get_account_balance"}, result.ToolsUsed)
	require.Len(t, result.ToolContext, 1)
	assert.Contains(t, result.ToolContext[0], `"total_balance":350.5`)

	// Protocol ordering: stream_start, THOUGHT+, ACTION(tool), OBSERVATION,
	// exactly one FINAL_ANSWER with a dollar figure, stream_complete, completion.
	var phases []string
	finals := 0
	for _, ev := range *events {
		if ev.Type == EventReactStep {
			phases = append(phases, ev.Phase)
			if ev.Phase == PhaseFinalAnswer {
				finals++
				assert.Contains(t, ev.Content, "$")
			}
		}
	}
	assert.Equal(t, 1, finals)
	assert.Equal(t, EventStreamStart, (*events)[0].Type)
	assert.Equal(t, EventStreamComplete, (*events)[len(*events)-2].Type)
	assert.Equal(t, EventCompletion, (*events)[len(*events)-1].Type)

	joined := strings.Join(phases, ",")
	assert.Contains(t, joined, PhaseThought)
	assert.Regexp(t, `ACTION.*OBSERVATION.*FINAL_ANSWER$`, joined)

	// The model saw the identity-injected message, never the raw one.
	require.Len(t, model.calls, 2)
	firstCall := model.calls[0]
	human := firstCall[len(firstCall)-1]
	text := human.Parts[0].(llms.TextContent).Text
	assert.Equal(t, "[AUTHENTICATED_USER_ID: jane_smith] What's my account balance?", text)

	// The second call carried the tool observation back to the model.
	secondCall := model.calls[1]
	last := secondCall[len(secondCall)-1]
	assert.Equal(t, llms.ChatMessageTypeTool, last.Role)
	toolResponse := last.Parts[0].(llms.ToolCallResponse)
	assert.Equal(t, "call_1", toolResponse.ToolCallID)
	assert.Contains(t, toolResponse.Content, "total_balance")
}

func TestRunTurnLoopCap(t *testing.T) {
	// A pathological model that always requests another tool call.
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse("get_account_balance", `{"user_id":"jane_smith"}`, "call_1"),
		toolCallResponse("get_account_balance", `{"user_id":"jane_smith"}`, "call_2"),
		toolCallResponse("get_account_balance", `{"user_id":"jane_smith"}`, "call_3"),
		toolCallResponse("get_account_balance", `{"user_id":"jane_smith"}`, "call_4"),
	}}
	var invocations int32
	engine := newTestEngine(t, model, stubRegistry(t, &invocations), 3)

	events, sink := collectEvents()
	n := NewStreamNormalizer("jane_smith", "t1", sink)

	result, err := engine.RunTurn(context.Background(), "jane_smith", "t1", "loop forever", n.Handle)
	require.NoError(t, err, "round cap terminates the turn normally")

	assert.Equal(t, degradedAnswer, result.FinalAnswer)
	assert.EqualValues(t, 3, invocations, "tool ran once per allowed round")

	finals := 0
	for _, ev := range *events {
		if ev.Type == EventReactStep && ev.Phase == PhaseFinalAnswer {
			finals++
			assert.Equal(t, degradedAnswer, ev.Content)
		}
	}
	assert.Equal(t, 1, finals)
}

func TestRunTurnModelError(t *testing.T) {
	model := &scriptedModel{err: errors.New("upstream unavailable")}
	engine := newTestEngine(t, model, stubRegistry(t, nil), 12)

	events, sink := collectEvents()
	n := NewStreamNormalizer("jane_smith", "t1", sink)

	_, err := engine.RunTurn(context.Background(), "jane_smith", "t1", "hello", n.Handle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model call")

	for _, ev := range *events {
		assert.NotEqual(t, PhaseFinalAnswer, ev.Phase, "aborted turns emit no final answer")
	}
}

func TestRunTurnCancelled(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{textResponse("hi")}}
	engine := newTestEngine(t, model, stubRegistry(t, nil), 12)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.RunTurn(ctx, "jane_smith", "t1", "hello", func(ExecEvent) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunTurnSerializesSameConversation(t *testing.T) {
	model := &scriptedModel{
		responses: []*llms.ContentResponse{textResponse("one"), textResponse("two")},
		delay:     30 * time.Millisecond,
	}
	engine := newTestEngine(t, model, stubRegistry(t, nil), 12)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.RunTurn(context.Background(), "jane_smith", "t1", "hello", func(ExecEvent) {})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&model.maxActive),
		"turns on the same conversation never overlap")
}

func TestRunTurnCarriesConversationHistory(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		textResponse("first answer"),
		textResponse("second answer"),
	}}
	engine := newTestEngine(t, model, stubRegistry(t, nil), 12)

	_, err := engine.RunTurn(context.Background(), "jane_smith", "t1", "first question", func(ExecEvent) {})
	require.NoError(t, err)
	_, err = engine.RunTurn(context.Background(), "jane_smith", "t1", "second question", func(ExecEvent) {})
	require.NoError(t, err)

	require.Len(t, model.calls, 2)
	// system + injected human
	assert.Len(t, model.calls[0], 2)
	// system + prior human + prior answer + new human
	assert.Len(t, model.calls[1], 4)

	// Different user on the same thread id must not see jane's history.
	model.responses = []*llms.ContentResponse{textResponse("other")}
	_, err = engine.RunTurn(context.Background(), "john_doe", "t1", "who am I?", func(ExecEvent) {})
	require.NoError(t, err)
	assert.Len(t, model.calls[2], 2)
}
