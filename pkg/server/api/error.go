package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx response except 429, which
// carries an AdmitResponse.
type ErrorResponse struct {
	// Error contains the error details.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error.
	Type string `json:"type"`

	// Param is the name of the parameter that caused the error (if applicable).
	Param string `json:"param,omitempty"`

	// RequestID correlates the error with server logs.
	RequestID string `json:"request_id,omitempty"`
}

// Error type constants.
const (
	// ErrorTypeInvalidRequest indicates a client-side error (400).
	ErrorTypeInvalidRequest = "invalid_request_error"

	// ErrorTypeAuthentication indicates a missing or rejected API key (401).
	ErrorTypeAuthentication = "authentication_error"

	// ErrorTypeNotFound indicates an unknown policy or route (404).
	ErrorTypeNotFound = "not_found"

	// ErrorTypeMethodNotAllowed indicates a wrong HTTP method (405).
	ErrorTypeMethodNotAllowed = "method_not_allowed"

	// ErrorTypeServerError indicates an internal server error (500).
	ErrorTypeServerError = "server_error"

	// ErrorTypeServiceUnavailable indicates load shedding or a queue that
	// gave up (503).
	ErrorTypeServiceUnavailable = "service_unavailable"
)

// errorTypeForStatus maps a status code to its error type.
func errorTypeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrorTypeInvalidRequest
	case http.StatusUnauthorized:
		return ErrorTypeAuthentication
	case http.StatusNotFound:
		return ErrorTypeNotFound
	case http.StatusMethodNotAllowed:
		return ErrorTypeMethodNotAllowed
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrorTypeServiceUnavailable
	default:
		return ErrorTypeServerError
	}
}

// NewError builds an ErrorResponse whose type follows status.
func NewError(status int, message string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorTypeForStatus(status),
		},
	}
}

// WithParam sets the offending parameter.
func (e *ErrorResponse) WithParam(param string) *ErrorResponse {
	e.Error.Param = param
	return e
}

// WithRequestID sets the request ID.
func (e *ErrorResponse) WithRequestID(id string) *ErrorResponse {
	e.Error.RequestID = id
	return e
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorResponse with the given status.
func WriteError(w http.ResponseWriter, status int, err *ErrorResponse) {
	WriteJSON(w, status, err)
}
