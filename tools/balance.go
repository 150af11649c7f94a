package tools

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arslan2k12/BankingBot/store"
)

var balanceLogger = logrus.WithField("tool", "get_account_balance")

// NewBalanceTool returns the get_account_balance tool backed by the given store.
func NewBalanceTool(db *store.Store) *Spec {
	return &Spec{
		Name: "get_account_balance",
		Description: "Get current account balance information for the authenticated user. " +
			"Returns each active account with its balance plus the total across accounts. " +
			"Optionally filter to a single account number.",
		Parameters: map[string]any{
			"user_id": map[string]any{
				"type":        "string",
				"description": "The authenticated user's ID from the AUTHENTICATED_USER_ID tag.",
			},
			"account_number": map[string]any{
				"type":        "string",
				"description": "Optional specific account number to check.",
			},
		},
		Required: []string{"user_id"},
		Handler: func(ctx context.Context, args map[string]any) string {
			return getAccountBalance(ctx, db, args)
		},
	}
}

func getAccountBalance(ctx context.Context, db *store.Store, args map[string]any) string {
	userID := stringArg(args, "user_id")
	toolLogger := balanceLogger.WithField("userId", userID)
	toolLogger.Info("Balance tool called")

	if env := validateUserID(userID, "check their account balance"); env != "" {
		toolLogger.Warn("Rejected placeholder user_id")
		return env
	}
	accountNumber, env := accountNumberArg(args)
	if env != "" {
		return env
	}

	user, err := db.GetUserByUserID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		toolLogger.Warn("User not found")
		return userErrorEnvelope(ErrKindUserNotFound, userID,
			"No user found with ID '"+userID+"'. Please verify the user ID is correct.",
			"Ask user to verify their user ID or provide account number instead.")
	}
	if err != nil {
		toolLogger.WithError(err).Error("Balance retrieval failed")
		return errorEnvelope(ErrKindQueryFailed, err.Error(), "")
	}

	accounts, err := db.ListActiveAccounts(ctx, user.ID, accountNumber)
	if err != nil {
		toolLogger.WithError(err).Error("Balance retrieval failed")
		return errorEnvelope(ErrKindQueryFailed, err.Error(), "")
	}

	balances := make([]map[string]any, 0, len(accounts))
	var total float64
	for _, a := range accounts {
		total += a.Balance
		balances = append(balances, map[string]any{
			"account_number": a.AccountNumber,
			"account_type":   a.AccountType,
			"balance":        a.Balance,
			"currency":       a.Currency,
		})
	}

	toolLogger.WithField("accounts", len(balances)).Info("Balance retrieval successful")
	return marshal(map[string]any{
		"accounts":      balances,
		"total_balance": math.Round(total*100) / 100,
		"currency":      "USD",
		"as_of_date":    time.Now().UTC().Format(time.RFC3339),
	})
}
