package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorType represents the category of a provider API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request_error"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeAuthentication  ErrorType = "authentication_error"
	ErrorTypeTooManyRequests ErrorType = "rate_limit_exceeded"
)

// APIError represents a structured API error with type, code, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse is the `default` error envelope returned on any endpoint.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// ParseErrorBody decodes a provider error envelope from a response body.
// Returns nil if the body is not a well-formed error envelope.
func ParseErrorBody(body []byte) *APIError {
	var envelope ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return nil
	}
	if envelope.Error.Message == "" && envelope.Error.Code == "" {
		return nil
	}
	return envelope.Error
}

// ChainBroken is returned when the server rejects a previous_response_id
// that no longer resolves, or when a chained request is missing items the
// server expects (pending tool outputs, duplicates). Callers recover by
// resetting the session's chain state and resending full history.
type ChainBroken struct {
	Message string
}

func (e *ChainBroken) Error() string {
	return "previous response chain broken: " + e.Message
}

// DetectChainBreak inspects an invalid-request error body and reports
// whether it describes a broken response chain. The patterns cover the
// provider variants observed in practice: a rejected previous_response_id,
// input items the server cannot resolve, duplicate items from resending
// acknowledged history, and missing tool outputs for calls pending in the
// chained response.
func DetectChainBreak(body []byte) *ChainBroken {
	return DetectChainBreakError(ParseErrorBody(body))
}

// DetectChainBreakError applies the same patterns to an already-decoded
// error envelope.
func DetectChainBreakError(apiErr *APIError) *ChainBroken {
	if apiErr == nil || apiErr.Type != ErrorTypeInvalidRequest {
		return nil
	}

	msg := strings.ToLower(apiErr.Message)
	param := apiErr.Param

	switch {
	case param == "previous_response_id":
	case strings.Contains(msg, "previous") && strings.Contains(msg, "not found"):
	case strings.HasPrefix(param, "input") && strings.Contains(msg, "not found"):
	case param == "input" && strings.Contains(msg, "duplicate item"):
	case param == "input" && strings.Contains(msg, "no tool output found"):
	case param == "input" && strings.Contains(msg, "output is missing"):
	default:
		return nil
	}

	return &ChainBroken{Message: apiErr.Message}
}
