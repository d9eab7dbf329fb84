package models

import (
	"fmt"
	"strings"
)

// Kind buckets a backend failure for user-facing reporting.
type Kind int

const (
	KindGeneric Kind = iota
	KindQuota
	KindCredential
	KindSafety
)

// User-facing messages per failure kind. Raw backend errors never reach the
// client except as the bounded tail of the generic message.
const (
	quotaMessage      = "AI quota exceeded. Please try again later."
	credentialMessage = "AI configuration error. Please contact support."
	safetyMessage     = "Your message was blocked by safety filters. Please rephrase and try again."
	genericPrefix     = "AI error: "

	// EmptyReplyMessage covers a backend that answered without content.
	EmptyReplyMessage = "AI returned an empty response. Your API quota may be exhausted."

	maxGenericLen = 120
)

// Classify matches known substrings of the error text. Quota wins over
// credential so a 429 mentioning the API key still reads as a quota issue.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	errStr := strings.ToLower(err.Error())

	if containsAny(errStr, "429", "quota", "rate limit", "resource exhausted", "too many requests") {
		return KindQuota
	}
	if containsAny(errStr, "401", "403", "unauthorized", "forbidden", "api key", "api_key", "permission denied") {
		return KindCredential
	}
	if containsAny(errStr, "safety", "blocked") {
		return KindSafety
	}
	return KindGeneric
}

// UserMessage converts a backend failure into the single sanitized message
// shown to the client.
func UserMessage(err error) string {
	switch Classify(err) {
	case KindQuota:
		return quotaMessage
	case KindCredential:
		return credentialMessage
	case KindSafety:
		return safetyMessage
	default:
		return genericPrefix + truncate(err.Error(), maxGenericLen)
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// ErrModelUnavailable reports a backend that answered with something other
// than a model response, e.g. a reverse proxy error page or a refused
// connection.
type ErrModelUnavailable struct {
	Provider string
	Body     string
	Cause    error
}

func (e *ErrModelUnavailable) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("model backend %q unavailable: %v", e.Provider, e.Cause)
	case e.Body != "":
		return fmt.Sprintf("model backend %q unavailable: %s", e.Provider, e.Body)
	default:
		return fmt.Sprintf("model backend %q unavailable", e.Provider)
	}
}

func (e *ErrModelUnavailable) Unwrap() error { return e.Cause }
