package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	transient := NewTransientError(errors.New("connection reset"), "")
	assert.True(t, IsTransient(transient))
	assert.False(t, IsPermanent(transient))
	assert.Equal(t, ErrorTypeTransient, GetErrorType(transient))

	permanent := NewPermanentError(errors.New("bad request"), "")
	assert.True(t, IsPermanent(permanent))
	assert.False(t, IsTransient(permanent))
	assert.Equal(t, ErrorTypePermanent, GetErrorType(permanent))

	degraded := NewDegradedError(errors.New("strategy failed"), "", "fallback")
	assert.True(t, IsDegraded(degraded))
	assert.Equal(t, ErrorTypeDegraded, GetErrorType(degraded))
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	inner := NewTransientError(errors.New("timeout"), "")
	wrapped := fmt.Errorf("querying index: %w", inner)

	assert.True(t, IsTransient(wrapped))
	assert.Equal(t, ErrorTypeTransient, GetErrorType(wrapped))
}

func TestHTTPStatusHeuristics(t *testing.T) {
	assert.True(t, IsTransient(errors.New("API error 429: too many requests")))
	assert.True(t, IsTransient(errors.New("HTTP 503: service unavailable")))
	assert.True(t, IsPermanent(errors.New("API error 401: unauthorized")))
	assert.True(t, IsPermanent(errors.New("collection not found")))
}

func TestRetrievalUnavailableIsPermanent(t *testing.T) {
	err := NewRetrievalUnavailable("similarity index", errors.New("dial tcp: connect: connection refused"))

	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "similarity index")
	assert.Contains(t, FormatForUser(err), "retrieval is unavailable")
}

func TestExtractionDegradedCarriesStrategy(t *testing.T) {
	err := NewExtractionDegraded("generative", errors.New("completion timeout"))

	assert.True(t, IsDegraded(err))
	assert.Contains(t, err.Error(), `"generative"`)
	assert.ErrorContains(t, errors.Unwrap(err), "completion timeout")
}

func TestMalformedCandidate(t *testing.T) {
	err := &MalformedCandidateError{ID: "exh-007", Reason: "date_to before date_from"}

	assert.True(t, IsMalformedCandidate(err))
	assert.True(t, IsMalformedCandidate(fmt.Errorf("loading catalog: %w", err)))
	assert.Equal(t, "malformed candidate exh-007: date_to before date_from", err.Error())
	assert.False(t, IsMalformedCandidate(errors.New("date_to before date_from")))
}

func TestFormatForUserPrefersCustomMessage(t *testing.T) {
	err := NewTransientError(errors.New("raw tcp detail"), "The embedding service is busy, retrying.")
	assert.Equal(t, "The embedding service is busy, retrying.", FormatForUser(err))
}

func TestFormatForUserPatterns(t *testing.T) {
	assert.Contains(t, FormatForUser(errors.New("429 rate limit exceeded")), "rate limit")
	assert.Contains(t, FormatForUser(errors.New("context deadline exceeded")), "timed out")
	assert.Equal(t, "", FormatForUser(nil))
}
