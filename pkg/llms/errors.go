package llms

import (
	"fmt"
	"strings"
)

// ErrorKind is the closed taxonomy of user-facing error kinds a loop or
// tool call can fail with (spec §7).
type ErrorKind string

const (
	ErrRateLimit      ErrorKind = "rate_limit"
	ErrTimeout        ErrorKind = "timeout"
	ErrAuthentication ErrorKind = "authentication"
	ErrValidation     ErrorKind = "validation"
	ErrDomain         ErrorKind = "domain"
	ErrUnexpected     ErrorKind = "unexpected"
)

// CallError wraps a failure from the LLM layer (or anything classified into
// the same taxonomy) with a safe user-facing message and a verbose,
// log-only one. Never put secrets in either message.
type CallError struct {
	Kind        ErrorKind
	SafeMessage string
	LogMessage  string
	Err         error
}

func (e *CallError) Error() string {
	return e.SafeMessage
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// NewCallError builds a CallError, defaulting the safe message to a generic
// one when the kind is ErrUnexpected so internals never leak to the user.
func NewCallError(kind ErrorKind, safe, verbose string, err error) *CallError {
	if kind == ErrUnexpected && safe == "" {
		safe = "Something went wrong processing your request."
	}
	return &CallError{Kind: kind, SafeMessage: safe, LogMessage: verbose, Err: err}
}

// Classify maps a raw provider error (by message substring and/or a type
// hint) into the closed taxonomy. Unknown shapes fall back to
// ErrUnexpected — callers should prefer Classify over hand-rolled string
// matching so the policy lives in one place.
func Classify(typeHint string, rawMessage string, err error) *CallError {
	switch {
	case containsAny(rawMessage, "rate limit", "429", "too many requests"):
		return NewCallError(ErrRateLimit,
			"The model provider is throttling requests. Please try again shortly.",
			fmt.Sprintf("rate limit: %s", rawMessage), err)
	case containsAny(rawMessage, "timeout", "deadline exceeded", "context canceled"):
		return NewCallError(ErrTimeout,
			"The request took too long and was cancelled.",
			fmt.Sprintf("timeout: %s", rawMessage), err)
	case containsAny(rawMessage, "unauthorized", "invalid api key", "invalid_api_key", "401", "403", "forbidden"):
		return NewCallError(ErrAuthentication,
			"Authentication with the model provider failed.",
			fmt.Sprintf("auth: %s", rawMessage), err)
	case containsAny(rawMessage, "invalid request", "validation", "400", "bad request"):
		return NewCallError(ErrValidation,
			"The request was malformed.",
			fmt.Sprintf("validation: %s", rawMessage), err)
	case typeHint != "":
		return NewCallError(ErrDomain, "The request could not be completed.",
			fmt.Sprintf("domain(%s): %s", typeHint, rawMessage), err)
	default:
		return NewCallError(ErrUnexpected, "",
			fmt.Sprintf("unexpected: %s", rawMessage), err)
	}
}

func containsAny(s string, substrs ...string) bool {
	low := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(low, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// AuthenticationRequiredError is the distinct sub-case of Authentication
// raised when a per-user tool-server token is missing or invalid. It
// carries enough for the UI to prompt the user (spec §4.A, §4.C).
type AuthenticationRequiredError struct {
	ServerName   string
	AuthType     string
	OAuthStartURL string
}

func (e *AuthenticationRequiredError) Error() string {
	return fmt.Sprintf("authentication required for server %q (type %s)", e.ServerName, e.AuthType)
}

// ToolTimeoutError marks a tool invocation that exceeded its bounded
// deadline, distinct from AuthenticationRequiredError and from generic
// transport failures so callers can branch on it with errors.As.
type ToolTimeoutError struct {
	Server string
	Tool   string
	After  string
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("tool %s on server %s timed out after %s", e.Tool, e.Server, e.After)
}
