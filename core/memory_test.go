package core

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/tmc/langchaingo/llms"
)

func newTestConversationStore() *ConversationStore {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewConversationStore(time.Hour, time.Hour, logger)
}

func TestConversationKeyScopesUser(t *testing.T) {
	assert.Equal(t, "t1_jane_smith", ConversationKey("t1", "jane_smith"))
	assert.NotEqual(t, ConversationKey("t1", "jane_smith"), ConversationKey("t1", "john_doe"))
}

func TestHistoryReturnsCopy(t *testing.T) {
	store := newTestConversationStore()
	conv := store.GetOrCreate("t1", "jane_smith")
	conv.Append(llms.TextParts(llms.ChatMessageTypeHuman, "hello"))

	history := conv.History()
	history[0] = llms.TextParts(llms.ChatMessageTypeHuman, "tampered")

	assert.Equal(t, "hello", conv.History()[0].Parts[0].(llms.TextContent).Text)
}

// Exercises Stats and GetOrCreate concurrently with an in-flight turn
// appending history; run under -race this fails if the history and
// timestamps are not guarded by a single lock.
func TestStatsDuringActiveTurn(t *testing.T) {
	store := newTestConversationStore()
	conv := store.GetOrCreate("t1", "jane_smith")

	const turns = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < turns; i++ {
			conv.Lock()
			conv.Append(llms.TextParts(llms.ChatMessageTypeHuman, "hi"))
			conv.Unlock()
		}
	}()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	for {
		select {
		case <-done:
			stats := store.Stats()
			assert.Equal(t, 1, stats["totalConversations"])
			assert.Equal(t, turns, stats["totalMessages"])
			return
		default:
			store.Stats()
			store.GetOrCreate("t1", "jane_smith")
		}
	}
}

func TestDeleteConversation(t *testing.T) {
	store := newTestConversationStore()
	store.GetOrCreate("t1", "jane_smith")

	assert.True(t, store.Delete("t1", "jane_smith"))
	assert.False(t, store.Delete("t1", "jane_smith"))
	assert.Equal(t, 0, store.Stats()["totalConversations"])
}
