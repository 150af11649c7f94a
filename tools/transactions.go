package tools

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/arslan2k12/BankingBot/store"
)

var transactionsLogger = logrus.WithField("tool", "get_transactions")

// NewTransactionsTool returns the get_transactions tool backed by the given store.
func NewTransactionsTool(db *store.Store) *Spec {
	return &Spec{
		Name: "get_transactions",
		Description: "Get transaction history for the authenticated user, newest first. " +
			"Supports filtering by account number, date range (YYYY-MM-DD) and " +
			"transaction type (debit or credit). Returns at most 'limit' transactions " +
			"(1-100, default 10) plus the total matching count.",
		Parameters: map[string]any{
			"user_id": map[string]any{
				"type":        "string",
				"description": "The authenticated user's ID from the AUTHENTICATED_USER_ID tag.",
			},
			"account_number": map[string]any{
				"type":        "string",
				"description": "Optional specific account number to filter by.",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of transactions to return (1-100, default 10).",
			},
			"start_date": map[string]any{
				"type":        "string",
				"description": "Optional earliest transaction date, YYYY-MM-DD.",
			},
			"end_date": map[string]any{
				"type":        "string",
				"description": "Optional latest transaction date, YYYY-MM-DD.",
			},
			"transaction_type": map[string]any{
				"type":        "string",
				"description": "Optional filter: 'debit' or 'credit'.",
			},
		},
		Required: []string{"user_id"},
		Handler: func(ctx context.Context, args map[string]any) string {
			return getTransactions(ctx, db, args)
		},
	}
}

func getTransactions(ctx context.Context, db *store.Store, args map[string]any) string {
	userID := stringArg(args, "user_id")
	toolLogger := transactionsLogger.WithField("userId", userID)
	toolLogger.Info("Transactions tool called")

	if env := validateUserID(userID, "check their transactions"); env != "" {
		toolLogger.Warn("Rejected placeholder user_id")
		return env
	}

	limit, env := limitArg(args)
	if env != "" {
		return env
	}
	accountNumber, env := accountNumberArg(args)
	if env != "" {
		return env
	}
	startDate, env := dateArg(args, "start_date")
	if env != "" {
		return env
	}
	endDate, env := dateArg(args, "end_date")
	if env != "" {
		return env
	}
	txnType, env := transactionTypeArg(args)
	if env != "" {
		return env
	}

	user, err := db.GetUserByUserID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		toolLogger.Warn("User not found")
		return userErrorEnvelope(ErrKindUserNotFound, userID,
			"No user found with ID '"+userID+"'. Please verify the user ID is correct.",
			"Ask user to verify their user ID.")
	}
	if err != nil {
		toolLogger.WithError(err).Error("Transaction retrieval failed")
		return errorEnvelope(ErrKindQueryFailed, err.Error(), "")
	}

	txns, total, err := db.ListTransactions(ctx, user.ID, store.TransactionFilter{
		AccountNumber:   accountNumber,
		StartDate:       startDate,
		EndDate:         endDate,
		TransactionType: txnType,
		Limit:           limit,
	})
	if err != nil {
		toolLogger.WithError(err).Error("Transaction retrieval failed")
		return errorEnvelope(ErrKindQueryFailed, err.Error(), "")
	}

	list := make([]map[string]any, 0, len(txns))
	for _, t := range txns {
		list = append(list, map[string]any{
			"transaction_id":   t.TransactionID,
			"account_number":   t.AccountNumber,
			"transaction_type": t.TransactionType,
			"amount":           t.Amount,
			"description":      t.Description,
			"category":         t.Category,
			"merchant":         t.Merchant,
			"transaction_date": t.TransactionDate,
			"created_at":       t.CreatedAt,
		})
	}

	var accountFilter any
	if accountNumber != "" {
		accountFilter = accountNumber
	}

	toolLogger.WithFields(logrus.Fields{
		"returned":   len(list),
		"totalCount": total,
	}).Info("Transaction retrieval successful")
	return marshal(map[string]any{
		"transactions":   list,
		"total_count":    total,
		"limit":          limit,
		"account_filter": accountFilter,
	})
}
