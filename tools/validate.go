package tools

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Placeholder identities the model sometimes invents instead of using the
// authenticated user's id. Matched case-insensitively; a match means the call
// is rejected before any store access.
var placeholderUserIDs = map[string]struct{}{
	"user_id":            {},
	"your_user_id":       {},
	"none":               {},
	"null":               {},
	"":                   {},
	"placeholder":        {},
	"example":            {},
	"test_user":          {},
	"userid":             {},
	"authenticated_user": {},
}

var accountNumberPattern = regexp.MustCompile(`^[A-Z0-9]{1,20}$`)

const (
	defaultTransactionLimit = 10
	maxTransactionLimit     = 100
)

// IsPlaceholderUserID reports whether the given id is empty or a known
// placeholder value.
func IsPlaceholderUserID(userID string) bool {
	_, bad := placeholderUserIDs[strings.ToLower(strings.TrimSpace(userID))]
	return bad
}

// validateUserID returns a non-empty error envelope when the user_id argument
// must be rejected.
func validateUserID(userID, purpose string) string {
	if !IsPlaceholderUserID(userID) {
		return ""
	}
	return userErrorEnvelope(ErrKindInvalidUserID, userID,
		fmt.Sprintf("The user_id '%s' appears to be a placeholder or invalid. I need the actual authenticated user's ID to %s.", userID, purpose),
		"The user is already authenticated - please use their actual user_id from the authentication context, not a placeholder.")
}

// stringArg extracts an optional string argument, tolerating explicit nulls.
func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// limitArg extracts and bounds-checks the limit argument. JSON numbers decode
// as float64; non-integral values are rejected rather than truncated.
func limitArg(args map[string]any) (int, string) {
	v, ok := args["limit"]
	if !ok || v == nil {
		return defaultTransactionLimit, ""
	}
	f, isNum := v.(float64)
	if !isNum || f != float64(int(f)) {
		return 0, errorEnvelope(ErrKindValidation,
			fmt.Sprintf("limit must be an integer, got %v", v),
			fmt.Sprintf("Provide a whole number between 1 and %d.", maxTransactionLimit))
	}
	limit := int(f)
	if limit < 1 || limit > maxTransactionLimit {
		return 0, errorEnvelope(ErrKindValidation,
			fmt.Sprintf("limit must be between 1 and %d, got %d", maxTransactionLimit, limit),
			fmt.Sprintf("Provide a limit between 1 and %d.", maxTransactionLimit))
	}
	return limit, ""
}

// dateArg validates an optional YYYY-MM-DD argument.
func dateArg(args map[string]any, key string) (string, string) {
	raw := stringArg(args, key)
	if raw == "" {
		return "", ""
	}
	if _, err := time.Parse("2006-01-02", raw); err != nil {
		return "", errorEnvelope(ErrKindValidation,
			fmt.Sprintf("%s must be in YYYY-MM-DD format, got '%s'", key, raw),
			"Provide the date as YYYY-MM-DD, for example 2025-03-14.")
	}
	return raw, ""
}

// transactionTypeArg validates the optional debit/credit filter.
func transactionTypeArg(args map[string]any) (string, string) {
	raw := strings.ToLower(stringArg(args, "transaction_type"))
	switch raw {
	case "", "debit", "credit":
		return raw, ""
	}
	return "", errorEnvelope(ErrKindValidation,
		fmt.Sprintf("transaction_type must be 'debit' or 'credit', got '%s'", raw),
		"Use 'debit', 'credit', or omit the filter entirely.")
}

// accountNumberArg validates the optional account_number filter.
func accountNumberArg(args map[string]any) (string, string) {
	raw := stringArg(args, "account_number")
	if raw == "" {
		return "", ""
	}
	if !accountNumberPattern.MatchString(raw) {
		return "", errorEnvelope(ErrKindValidation,
			fmt.Sprintf("account_number '%s' is not a valid account number", raw),
			"Account numbers are 1-20 uppercase letters and digits.")
	}
	return raw, ""
}
