package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, userID string) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), userID, "x", userID+"@example.com", "Jane", "Smith")
	require.NoError(t, err)
	return id
}

func TestGetUserByUserID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "jane_smith")

	user, err := s.GetUserByUserID(ctx, "jane_smith")
	require.NoError(t, err)
	assert.Equal(t, "jane_smith", user.UserID)
	assert.True(t, user.IsActive)

	_, err = s.GetUserByUserID(ctx, "nobody")
	assert.Error(t, err)
}

func TestListActiveAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	userID := seedUser(t, s, "jane_smith")
	_, err := s.SeedAccount(ctx, userID, "CHK001", "checking", 100.00)
	require.NoError(t, err)
	_, err = s.SeedAccount(ctx, userID, "SAV001", "savings", 250.50)
	require.NoError(t, err)

	accounts, err := s.ListActiveAccounts(ctx, userID, "")
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	var total float64
	for _, a := range accounts {
		total += a.Balance
	}
	assert.InDelta(t, 350.50, total, 0.001)

	filtered, err := s.ListActiveAccounts(ctx, userID, "SAV001")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "savings", filtered[0].AccountType)
}

func TestListTransactionsOrderingAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	userID := seedUser(t, s, "jane_smith")
	accountID, err := s.SeedAccount(ctx, userID, "CHK001", "checking", 500)
	require.NoError(t, err)

	dates := []string{"2025-01-05", "2025-01-20", "2025-01-10"}
	for i, date := range dates {
		require.NoError(t, s.SeedTransaction(ctx, accountID, Transaction{
			TransactionID:   "txn" + string(rune('a'+i)),
			TransactionType: "debit",
			Amount:          10.0 * float64(i+1),
			TransactionDate: date,
		}))
	}

	txns, total, err := s.ListTransactions(ctx, userID, TransactionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total, "total_count reflects all matches regardless of limit")
	require.Len(t, txns, 2)
	assert.Equal(t, "2025-01-20", txns[0].TransactionDate, "newest first")
	assert.Equal(t, "2025-01-10", txns[1].TransactionDate)
}

func TestListTransactionsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	userID := seedUser(t, s, "jane_smith")
	accountID, err := s.SeedAccount(ctx, userID, "CHK001", "checking", 500)
	require.NoError(t, err)

	require.NoError(t, s.SeedTransaction(ctx, accountID, Transaction{
		TransactionID: "t1", TransactionType: "debit", Amount: 25, TransactionDate: "2025-02-01",
	}))
	require.NoError(t, s.SeedTransaction(ctx, accountID, Transaction{
		TransactionID: "t2", TransactionType: "credit", Amount: 100, TransactionDate: "2025-02-15",
	}))

	txns, total, err := s.ListTransactions(ctx, userID, TransactionFilter{
		TransactionType: "credit",
		Limit:           10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, txns, 1)
	assert.Equal(t, "t2", txns[0].TransactionID)

	txns, total, err = s.ListTransactions(ctx, userID, TransactionFilter{
		StartDate: "2025-02-10",
		EndDate:   "2025-02-28",
		Limit:     10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, txns, 1)
	assert.Equal(t, "t2", txns[0].TransactionID)
}

func TestChatHistoryAndThreads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	userID := seedUser(t, s, "jane_smith")
	otherID := seedUser(t, s, "john_doe")

	chatID, err := s.SaveChatTurn(ctx, userID, ChatRecord{
		ChatThreadID: "t1", UserQuery: "balance?", BotResponse: "$350.50",
		ToolsUsed: `["get_account_balance"]`, ResponseTimeMs: 1200,
	})
	require.NoError(t, err)
	_, err = s.SaveChatTurn(ctx, userID, ChatRecord{
		ChatThreadID: "t2", UserQuery: "hi", BotResponse: "hello",
	})
	require.NoError(t, err)

	require.NoError(t, s.UpdateChatEvaluation(ctx, chatID, `{"overall_score":5}`))

	records, err := s.ListChatHistory(ctx, userID, "t1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "$350.50", records[0].BotResponse)
	assert.Contains(t, records[0].Evaluation, `"overall_score":5`)

	threads, err := s.ListThreads(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, threads, 2)

	// Ownership: another user sees nothing and cannot fetch the turn.
	records, err = s.ListChatHistory(ctx, otherID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
	_, err = s.GetChatTurn(ctx, otherID, chatID)
	assert.Error(t, err)

	deleted, err := s.DeleteThread(ctx, userID, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestFeedbackUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	userID := seedUser(t, s, "jane_smith")
	chatID, err := s.SaveChatTurn(ctx, userID, ChatRecord{
		ChatThreadID: "t1", UserQuery: "q", BotResponse: "a",
	})
	require.NoError(t, err)

	require.NoError(t, s.UpsertFeedback(ctx, userID, chatID, 1, "great"))
	require.NoError(t, s.UpsertFeedback(ctx, userID, chatID, 2, "changed my mind"))

	records, err := s.ListFeedback(ctx, userID)
	require.NoError(t, err)
	require.Len(t, records, 1, "second rating replaces the first")
	assert.Equal(t, 2, records[0].Rating)
	assert.Equal(t, "changed my mind", records[0].Comments)
}
