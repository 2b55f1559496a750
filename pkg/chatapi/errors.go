package chatapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// Error codes the server reports in `error_code`.
const (
	CodeInvalidSession   = "INVALID_SESSION"
	CodeMissingSessionID = "MISSING_SESSION_ID"
	CodeNoData           = "NO_DATA"
)

// APIError is a response the server sent back as a rejection.
type APIError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("chatapi: %s: %s (%s, status %d)", e.Op, msg, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("chatapi: %s: %s (status %d)", e.Op, msg, e.StatusCode)
}

// SessionInvalid reports whether the server no longer recognizes the session.
func (e *APIError) SessionInvalid() bool {
	if e == nil {
		return false
	}
	return e.Code == CodeInvalidSession || e.Code == CodeMissingSessionID
}

// NetworkError is a transport failure: no usable response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("chatapi: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func IsSessionInvalid(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.SessionInvalid()
}

func IsNoData(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == CodeNoData
}

func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// UserMessage returns the server-provided message of an APIError, or fallback.
func UserMessage(err error, fallback string) string {
	if apiErr, ok := AsAPIError(err); ok && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	return fallback
}

type errorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func decodeAPIError(op string, statusCode int, raw []byte) *APIError {
	e := &APIError{Op: op, StatusCode: statusCode}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		e.Code = strings.TrimSpace(body.ErrorCode)
		e.Message = body.Error
		if e.Message == "" {
			e.Message = body.Message
		}
	}
	return e
}
