package tools

import (
	"context"
	"database/sql"
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/arslan2k12/BankingBot/store"
)

var creditCardLogger = logrus.WithField("tool", "get_credit_card_info")

// NewCreditCardTool returns the get_credit_card_info tool backed by the given store.
func NewCreditCardTool(db *store.Store) *Spec {
	return &Spec{
		Name: "get_credit_card_info",
		Description: "Get credit card information for the authenticated user: masked card " +
			"number, credit limit, current balance, available credit, minimum payment, " +
			"due date and utilization rate for each active card.",
		Parameters: map[string]any{
			"user_id": map[string]any{
				"type":        "string",
				"description": "The authenticated user's ID from the AUTHENTICATED_USER_ID tag.",
			},
		},
		Required: []string{"user_id"},
		Handler: func(ctx context.Context, args map[string]any) string {
			return getCreditCardInfo(ctx, db, args)
		},
	}
}

// maskCardNumber hides everything except the last four digits.
func maskCardNumber(number string) string {
	if len(number) < 4 {
		return "****"
	}
	return "****-****-****-" + number[len(number)-4:]
}

func getCreditCardInfo(ctx context.Context, db *store.Store, args map[string]any) string {
	userID := stringArg(args, "user_id")
	toolLogger := creditCardLogger.WithField("userId", userID)
	toolLogger.Info("Credit card tool called")

	if env := validateUserID(userID, "check their credit card information"); env != "" {
		toolLogger.Warn("Rejected placeholder user_id")
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
		toolLogger.WithError(err).Error("Credit card retrieval failed")
		return errorEnvelope(ErrKindQueryFailed, err.Error(), "")
	}

	cards, err := db.ListActiveCreditCards(ctx, user.ID)
	if err != nil {
		toolLogger.WithError(err).Error("Credit card retrieval failed")
		return errorEnvelope(ErrKindQueryFailed, err.Error(), "")
	}

	list := make([]map[string]any, 0, len(cards))
	for _, c := range cards {
		var utilization float64
		if c.CreditLimit > 0 {
			utilization = math.Round(c.CurrentBalance/c.CreditLimit*100*100) / 100
		}
		var dueDate any
		if c.DueDate != "" {
			dueDate = c.DueDate
		}
		list = append(list, map[string]any{
			"card_number":      maskCardNumber(c.CardNumber),
			"card_type":        c.CardType,
			"credit_limit":     c.CreditLimit,
			"current_balance":  c.CurrentBalance,
			"available_credit": c.CreditLimit - c.CurrentBalance,
			"minimum_payment":  c.MinimumPayment,
			"due_date":         dueDate,
			"utilization_rate": utilization,
		})
	}

	toolLogger.WithField("cards", len(list)).Info("Credit card retrieval successful")
	return marshal(map[string]any{
		"credit_cards": list,
		"total_cards":  len(list),
	})
}
