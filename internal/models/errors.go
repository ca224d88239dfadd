package models

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes failures surfaced to the session controller.
type ErrorKind int

const (
	// KindUnknown is anything that doesn't fit another kind.
	KindUnknown ErrorKind = iota
	// KindValidation is a violated local precondition. Such requests never reach the network.
	KindValidation
	// KindHTTPStatus means the backend answered with a non-2xx status.
	KindHTTPStatus
	// KindNetwork means the request was sent but no response was received.
	KindNetwork
	// KindDecode means the response stream contained bytes that are not valid UTF-8.
	KindDecode
	// KindCancelled means the operation was cancelled, usually because it was superseded.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindHTTPStatus:
		return "http_status"
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by the dispatcher, the stream decoder, and the session
// components. Code and Detail are filled only for KindHTTPStatus.
type Error struct {
	Kind    ErrorKind
	Message string
	Code    int
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Kind == KindHTTPStatus {
		msg = fmt.Sprintf("%s: status %d", e.Message, e.Code)
		if e.Detail != "" {
			msg += ": " + e.Detail
		}
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind and message, so sentinel errors can be
// matched with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// Sentinel errors for easy checking.
var (
	ErrEmptyMessage     = &Error{Kind: KindValidation, Message: "message is empty"}
	ErrMissingAPIKey    = &Error{Kind: KindValidation, Message: "API key is required"}
	ErrNoFile           = &Error{Kind: KindValidation, Message: "no file selected"}
	ErrAlreadyUploaded  = &Error{Kind: KindValidation, Message: "document is already uploaded, select a file to upload again"}
	ErrBusy             = &Error{Kind: KindValidation, Message: "a response is still streaming"}
	ErrUploadInProgress = &Error{Kind: KindValidation, Message: "an upload is already in progress"}
	ErrSuperseded       = &Error{Kind: KindCancelled, Message: "request superseded"}
)

// ValidationError returns a KindValidation error with the given message.
func ValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// KindOf returns the kind of err, or KindUnknown if err isn't an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// NetworkErrorMessage is shown when the backend couldn't be reached.
const NetworkErrorMessage = "Network error: could not reach the server. Please check your connection."

// DisplayMessage converts err into the single line shown to the user. Server-provided details are
// reported verbatim.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}

	switch e.Kind {
	case KindValidation:
		return e.Message
	case KindHTTPStatus:
		if e.Detail != "" {
			return e.Detail
		}
		return fmt.Sprintf("Request failed with status %d", e.Code)
	case KindNetwork:
		return NetworkErrorMessage
	case KindDecode:
		return "The response stream was interrupted: " + e.Message
	case KindCancelled:
		return "Request cancelled"
	default:
		return err.Error()
	}
}
