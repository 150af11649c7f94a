package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// User is a registered customer of the bank.
type User struct {
	ID           int64
	UserID       string
	PasswordHash string
	Email        string
	FirstName    string
	LastName     string
	IsActive     bool
	CreatedAt    string
}

// Account is a deposit account owned by a user.
type Account struct {
	ID            int64
	AccountNumber string
	AccountType   string
	Balance       float64
	Currency      string
}

// Transaction is one debit or credit against an account.
type Transaction struct {
	TransactionID   string
	AccountNumber   string
	TransactionType string
	Amount          float64
	Description     string
	Category        string
	Merchant        string
	TransactionDate string
	CreatedAt       string
}

// TransactionFilter narrows ListTransactions; zero values mean "no filter".
type TransactionFilter struct {
	AccountNumber   string
	StartDate       string
	EndDate         string
	TransactionType string
	Limit           int
}

// CreditCard is a credit card held by a user. CardNumber is the full
// unmasked number; masking happens at the tool boundary.
type CreditCard struct {
	CardNumber     string
	CardType       string
	CreditLimit    float64
	CurrentBalance float64
	MinimumPayment float64
	DueDate        string
}

// GetUserByUserID resolves a user by their external user_id. Returns
// sql.ErrNoRows when no such user exists.
func (s *Store) GetUserByUserID(ctx context.Context, userID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, password_hash, COALESCE(email, ''),
		       COALESCE(first_name, ''), COALESCE(last_name, ''), is_active, created_at
		FROM users WHERE user_id = ?`, userID)

	var u User
	if err := row.Scan(&u.ID, &u.UserID, &u.PasswordHash, &u.Email,
		&u.FirstName, &u.LastName, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user row and returns its database id.
func (s *Store) CreateUser(ctx context.Context, userID, passwordHash, email, firstName, lastName string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, password_hash, email, first_name, last_name)
		VALUES (?, ?, ?, ?, ?)`,
		userID, passwordHash, email, firstName, lastName)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

// ListActiveAccounts returns the user's active accounts, optionally
// filtered to a single account number.
func (s *Store) ListActiveAccounts(ctx context.Context, userDBID int64, accountNumber string) ([]Account, error) {
	query := `SELECT id, account_number, account_type, balance, currency
		FROM accounts WHERE user_id = ? AND is_active = 1`
	args := []any{userDBID}
	if accountNumber != "" {
		query += ` AND account_number = ?`
		args = append(args, accountNumber)
	}
	query += ` ORDER BY account_number`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.AccountNumber, &a.AccountType, &a.Balance, &a.Currency); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ListTransactions returns the user's transactions newest-first, capped at
// filter.Limit, plus the total match count before the cap is applied.
func (s *Store) ListTransactions(ctx context.Context, userDBID int64, filter TransactionFilter) ([]Transaction, int, error) {
	var conds []string
	var args []any
	conds = append(conds, "a.user_id = ?", "a.is_active = 1")
	args = append(args, userDBID)

	if filter.AccountNumber != "" {
		conds = append(conds, "a.account_number = ?")
		args = append(args, filter.AccountNumber)
	}
	if filter.StartDate != "" {
		conds = append(conds, "t.transaction_date >= ?")
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		// End date is inclusive of the whole day.
		conds = append(conds, "t.transaction_date <= ?")
		args = append(args, filter.EndDate+"T23:59:59")
	}
	if filter.TransactionType != "" {
		conds = append(conds, "t.transaction_type = ?")
		args = append(args, filter.TransactionType)
	}
	where := strings.Join(conds, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM transactions t JOIN accounts a ON a.id = t.account_id WHERE ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	query := `SELECT t.transaction_id, a.account_number, t.transaction_type, t.amount,
			COALESCE(t.description, ''), COALESCE(t.category, ''), COALESCE(t.merchant, ''),
			t.transaction_date, t.created_at
		FROM transactions t JOIN accounts a ON a.id = t.account_id
		WHERE ` + where + ` ORDER BY t.transaction_date DESC LIMIT ?`
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.TransactionID, &t.AccountNumber, &t.TransactionType, &t.Amount,
			&t.Description, &t.Category, &t.Merchant, &t.TransactionDate, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		txns = append(txns, t)
	}
	return txns, total, rows.Err()
}

// ListActiveCreditCards returns the user's active credit cards.
func (s *Store) ListActiveCreditCards(ctx context.Context, userDBID int64) ([]CreditCard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT card_number, card_type, credit_limit, current_balance, minimum_payment, COALESCE(due_date, '')
		FROM credit_cards WHERE user_id = ? AND is_active = 1 ORDER BY card_number`, userDBID)
	if err != nil {
		return nil, fmt.Errorf("query credit cards: %w", err)
	}
	defer rows.Close()

	var cards []CreditCard
	for rows.Next() {
		var c CreditCard
		if err := rows.Scan(&c.CardNumber, &c.CardType, &c.CreditLimit, &c.CurrentBalance,
			&c.MinimumPayment, &c.DueDate); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// Seed helpers used by tests and local bootstrap.

// SeedAccount inserts an account for a user.
func (s *Store) SeedAccount(ctx context.Context, userDBID int64, accountNumber, accountType string, balance float64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, account_number, account_type, balance)
		VALUES (?, ?, ?, ?)`, userDBID, accountNumber, accountType, balance)
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return res.LastInsertId()
}

// SeedTransaction inserts a transaction against an account.
func (s *Store) SeedTransaction(ctx context.Context, accountDBID int64, txn Transaction) error {
	date := txn.TransactionDate
	if date == "" {
		date = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (account_id, transaction_id, transaction_type, amount, description, category, merchant, transaction_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		accountDBID, txn.TransactionID, txn.TransactionType, txn.Amount,
		txn.Description, txn.Category, txn.Merchant, date)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// SeedCreditCard inserts a credit card for a user.
func (s *Store) SeedCreditCard(ctx context.Context, userDBID int64, card CreditCard) error {
	var due sql.NullString
	if card.DueDate != "" {
		due = sql.NullString{String: card.DueDate, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_cards (user_id, card_number, card_type, credit_limit, current_balance, minimum_payment, due_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userDBID, card.CardNumber, card.CardType, card.CreditLimit, card.CurrentBalance, card.MinimumPayment, due)
	if err != nil {
		return fmt.Errorf("insert credit card: %w", err)
	}
	return nil
}
