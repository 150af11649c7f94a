package tools

import "encoding/json"

// Error kinds appearing in the "error" field of tool error envelopes.
const (
	ErrKindInvalidUserID = "Invalid user_id parameter"
	ErrKindUserNotFound  = "User not found"
	ErrKindValidation    = "Validation error"
	ErrKindUnknownTool   = "Unknown tool"
	ErrKindQueryFailed   = "Database query failed"
	ErrKindSearchFailed  = "Document search failed"
)

// errorEnvelope serializes the uniform error variant
// {error, message?, suggestion?}.
func errorEnvelope(kind, message, suggestion string) string {
	return marshal(map[string]any{
		"error":      kind,
		"message":    message,
		"suggestion": suggestion,
	})
}

// userErrorEnvelope is errorEnvelope with the offending user_id included.
func userErrorEnvelope(kind, userID, message, suggestion string) string {
	return marshal(map[string]any{
		"error":      kind,
		"user_id":    userID,
		"message":    message,
		"suggestion": suggestion,
	})
}

// marshal serializes a tool payload. Envelopes are built from plain maps and
// strings, so encoding cannot fail; the fallback covers the impossible case.
func marshal(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return `{"error":"Internal error","message":"failed to encode tool result"}`
	}
	return string(data)
}
