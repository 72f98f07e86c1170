package observability

import "github.com/google/uuid"

// NewRequestID generates a request identifier for log correlation.
func NewRequestID() string {
	return newIdentifier("req")
}

// NewSessionID generates a dialogue session identifier.
func NewSessionID() string {
	return newIdentifier("session")
}

// newIdentifier prefers UUIDv7 so identifiers sort by creation time in
// logs and session listings.
func newIdentifier(prefix string) string {
	if u, err := uuid.NewV7(); err == nil {
		return prefix + "-" + u.String()
	}
	return prefix + "-" + uuid.NewString()
}
