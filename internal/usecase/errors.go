package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorRateLimited  ErrorCode = "RATE_LIMITED"
	ErrorNotFound     ErrorCode = "NOT_FOUND"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

// User-facing replies. The widget shows them verbatim.
const (
	ReplyTooShort        = "Meddelandet är för kort. Skriv minst två tecken."
	ReplyTooLong         = "Meddelandet är för långt. Korta ner det och försök igen."
	ReplyMissingTenant   = "Förfrågan saknar organisation. Ladda om sidan och försök igen."
	ReplyMissingSession  = "Förfrågan saknar session. Ladda om sidan och försök igen."
	ReplySessionMismatch = "Sessionen tillhör en annan organisation. Ladda om sidan och försök igen."
	ReplyInvalidField    = "Ogiltigt värde i förfrågan."
	ReplyRateLimited     = "Du har skickat för många meddelanden. Vänta en stund och försök igen."
	ReplyNotFound        = "Ärendet kunde inte hittas."
	ReplyApology         = "Tyvärr kan jag inte svara just nu. Försök igen om en liten stund."
	ReplyInternal        = "Något gick fel hos oss. Försök igen senare."
)

type Error struct {
	Code   ErrorCode
	Reason string
	Reply  string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UserReply is the text shown to the customer for this error.
func (e *Error) UserReply() string {
	if e == nil {
		return ""
	}
	if e.Reply != "" {
		return e.Reply
	}
	return defaultReply(e.Code)
}

func defaultReply(code ErrorCode) string {
	switch code {
	case ErrorInvalidInput:
		return ReplyInvalidField
	case ErrorRateLimited:
		return ReplyRateLimited
	case ErrorNotFound:
		return ReplyNotFound
	case ErrorUpstream:
		return ReplyApology
	default:
		return ReplyInternal
	}
}

// AsError unwraps err to *Error. Anything else is reported as internal.
func AsError(err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	return newError(ErrorInternal, "unclassified", err)
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func invalid(reason, reply string) *Error {
	return &Error{Code: ErrorInvalidInput, Reason: reason, Reply: reply}
}
