package entities

import "strings"

// ErrorDetail is the structured, serializable form of a failed build or invocation.
// Type is one of "build", "invocation", "boundary", "policy", "network",
// "config", "timeout" or "internal".
type ErrorDetail struct {
	// Wrapped is the detail of the underlying cause, if it has one.
	Wrapped *ErrorDetail `json:"wrapped,omitempty"`

	// Details carries context such as the failing stage or invocation id.
	Details map[string]any `json:"details,omitempty"`

	Message string `json:"message"`
	Type    string `json:"type"`

	// Code is the failing phase, stage or boundary kind.
	Code string `json:"code,omitempty"`

	IsTimeout bool `json:"is_timeout,omitempty"`
}

// Error renders "type: message [code]: wrapped". Internal errors omit the type.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	if e.Type != "" && e.Type != "internal" {
		sb.WriteString(e.Type)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Code != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Code)
		sb.WriteString("]")
	}
	if e.Wrapped != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Wrapped.Error())
	}
	return sb.String()
}

// With records a detail value and returns the receiver.
func (e *ErrorDetail) With(key string, value any) *ErrorDetail {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}
