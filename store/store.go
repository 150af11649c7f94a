/*
Package store provides the relational persistence layer for the BankingBot
application.

It wraps a SQLite database accessed through database/sql and exposes typed
read/write operations for the entities the chat backend needs: users and their
accounts, transactions and credit cards on the banking side, plus chat
history, feedback and bot logs on the conversation side.

The banking entities are read-only from the chat path; only the conversation
entities are written during normal operation.
*/
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Store wraps the SQL database and provides all persistence operations.
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

// Open opens (or creates) the SQLite database at the given path and applies
// the schema migrations.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent turns.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.WithField("path", path).Info("Database opened and migrated")
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			email TEXT UNIQUE,
			first_name TEXT,
			last_name TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			account_number TEXT NOT NULL UNIQUE,
			account_type TEXT NOT NULL,
			balance REAL NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'USD',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL REFERENCES accounts(id),
			transaction_id TEXT NOT NULL UNIQUE,
			transaction_type TEXT NOT NULL,
			amount REAL NOT NULL,
			description TEXT,
			category TEXT,
			merchant TEXT,
			transaction_date TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, transaction_date);

		CREATE TABLE IF NOT EXISTS credit_cards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			card_number TEXT NOT NULL UNIQUE,
			card_type TEXT NOT NULL,
			credit_limit REAL NOT NULL,
			current_balance REAL NOT NULL DEFAULT 0,
			minimum_payment REAL NOT NULL DEFAULT 0,
			due_date TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS chat_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			chat_thread_id TEXT NOT NULL,
			user_query TEXT NOT NULL,
			bot_response TEXT NOT NULL,
			tools_used TEXT,
			response_time_ms INTEGER,
			evaluation TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_chat_history_thread ON chat_history(user_id, chat_thread_id);

		CREATE TABLE IF NOT EXISTS feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			chat_history_id INTEGER NOT NULL REFERENCES chat_history(id),
			rating INTEGER NOT NULL,
			comments TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(user_id, chat_history_id)
		);

		CREATE TABLE IF NOT EXISTS bot_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER,
			chat_thread_id TEXT,
			log_level TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`)
	return err
}

// Ping verifies database connectivity, used by the status endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
