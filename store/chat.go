package store

import (
	"context"
	"fmt"
)

// ChatRecord is one persisted conversation turn.
type ChatRecord struct {
	ID             int64
	ChatThreadID   string
	UserQuery      string
	BotResponse    string
	ToolsUsed      string // JSON array of tool names
	ResponseTimeMs int64
	Evaluation     string // JSON evaluation result, empty if not evaluated
	CreatedAt      string
}

// ThreadSummary describes one conversation thread for listing.
type ThreadSummary struct {
	ChatThreadID string
	MessageCount int
	LastActivity string
	FirstQuery   string
}

// FeedbackRecord is a user's thumbs up/down on one chat turn.
type FeedbackRecord struct {
	ID            int64
	ChatHistoryID int64
	Rating        int
	Comments      string
	CreatedAt     string
}

// SaveChatTurn persists a completed turn and returns the chat_history row id.
func (s *Store) SaveChatTurn(ctx context.Context, userDBID int64, rec ChatRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_history (user_id, chat_thread_id, user_query, bot_response, tools_used, response_time_ms, evaluation)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userDBID, rec.ChatThreadID, rec.UserQuery, rec.BotResponse, rec.ToolsUsed, rec.ResponseTimeMs, rec.Evaluation)
	if err != nil {
		return 0, fmt.Errorf("insert chat turn: %w", err)
	}
	return res.LastInsertId()
}

// UpdateChatEvaluation attaches the judge's verdict to an already-saved turn.
func (s *Store) UpdateChatEvaluation(ctx context.Context, chatHistoryID int64, evaluation string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_history SET evaluation = ? WHERE id = ?`, evaluation, chatHistoryID)
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	return nil
}

// ListChatHistory returns the user's turns newest-first, optionally scoped to
// one thread.
func (s *Store) ListChatHistory(ctx context.Context, userDBID int64, threadID string, limit int) ([]ChatRecord, error) {
	query := `SELECT id, chat_thread_id, user_query, bot_response, COALESCE(tools_used, ''),
			COALESCE(response_time_ms, 0), COALESCE(evaluation, ''), created_at
		FROM chat_history WHERE user_id = ?`
	args := []any{userDBID}
	if threadID != "" {
		query += ` AND chat_thread_id = ?`
		args = append(args, threadID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat history: %w", err)
	}
	defer rows.Close()

	var records []ChatRecord
	for rows.Next() {
		var r ChatRecord
		if err := rows.Scan(&r.ID, &r.ChatThreadID, &r.UserQuery, &r.BotResponse,
			&r.ToolsUsed, &r.ResponseTimeMs, &r.Evaluation, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetChatTurn fetches one turn, enforcing ownership by userDBID.
func (s *Store) GetChatTurn(ctx context.Context, userDBID, chatHistoryID int64) (*ChatRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chat_thread_id, user_query, bot_response, COALESCE(tools_used, ''),
			COALESCE(response_time_ms, 0), COALESCE(evaluation, ''), created_at
		FROM chat_history WHERE id = ? AND user_id = ?`, chatHistoryID, userDBID)

	var r ChatRecord
	if err := row.Scan(&r.ID, &r.ChatThreadID, &r.UserQuery, &r.BotResponse,
		&r.ToolsUsed, &r.ResponseTimeMs, &r.Evaluation, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListThreads summarizes the user's conversation threads, most recent first.
func (s *Store) ListThreads(ctx context.Context, userDBID int64) ([]ThreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_thread_id, COUNT(*), MAX(created_at),
			(SELECT user_query FROM chat_history h2
			 WHERE h2.user_id = h.user_id AND h2.chat_thread_id = h.chat_thread_id
			 ORDER BY h2.created_at ASC, h2.id ASC LIMIT 1)
		FROM chat_history h WHERE user_id = ?
		GROUP BY chat_thread_id ORDER BY MAX(created_at) DESC`, userDBID)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var threads []ThreadSummary
	for rows.Next() {
		var t ThreadSummary
		if err := rows.Scan(&t.ChatThreadID, &t.MessageCount, &t.LastActivity, &t.FirstQuery); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// DeleteThread removes one thread's history. Returns the number of turns removed.
func (s *Store) DeleteThread(ctx context.Context, userDBID int64, threadID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_history WHERE user_id = ? AND chat_thread_id = ?`, userDBID, threadID)
	if err != nil {
		return 0, fmt.Errorf("delete thread: %w", err)
	}
	return res.RowsAffected()
}

// DeleteAllThreads removes the user's entire chat history.
func (s *Store) DeleteAllThreads(ctx context.Context, userDBID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_history WHERE user_id = ?`, userDBID)
	if err != nil {
		return 0, fmt.Errorf("delete threads: %w", err)
	}
	return res.RowsAffected()
}

// UpsertFeedback records a rating for a chat turn, replacing any prior rating
// by the same user for the same turn.
func (s *Store) UpsertFeedback(ctx context.Context, userDBID, chatHistoryID int64, rating int, comments string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (user_id, chat_history_id, rating, comments)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, chat_history_id)
		DO UPDATE SET rating = excluded.rating, comments = excluded.comments`,
		userDBID, chatHistoryID, rating, comments)
	if err != nil {
		return fmt.Errorf("upsert feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the user's feedback entries newest-first.
func (s *Store) ListFeedback(ctx context.Context, userDBID int64) ([]FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_history_id, rating, COALESCE(comments, ''), created_at
		FROM feedback WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userDBID)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var records []FeedbackRecord
	for rows.Next() {
		var r FeedbackRecord
		if err := rows.Scan(&r.ID, &r.ChatHistoryID, &r.Rating, &r.Comments, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LogBotEvent appends an interaction milestone to bot_logs. Failures are
// logged and swallowed; diagnostics must never break a turn.
func (s *Store) LogBotEvent(ctx context.Context, userDBID int64, threadID, level, message string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_logs (user_id, chat_thread_id, log_level, message)
		VALUES (?, ?, ?, ?)`, userDBID, threadID, level, message)
	if err != nil {
		s.logger.WithField("error", err.Error()).Warn("Failed to write bot log")
	}
}
