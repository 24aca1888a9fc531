package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"taxlab-hq/ledger/pkg/dataset"
	"taxlab-hq/ledger/pkg/patch"
	"taxlab-hq/ledger/pkg/reform"
	"taxlab-hq/ledger/pkg/tasks"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error.
	Type string `json:"type"`

	// Param names the request field that caused the error, if any.
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Error type constants.
const (
	// ErrorTypeInvalidRequest indicates a client-side error (400).
	ErrorTypeInvalidRequest = "invalid_request_error"

	// ErrorTypeNotFound indicates an unknown endpoint (404).
	ErrorTypeNotFound = "not_found"

	// ErrorTypeMethodNotAllowed indicates an unsupported HTTP method (405).
	ErrorTypeMethodNotAllowed = "method_not_allowed"

	// ErrorTypeServerError indicates an internal server error (500).
	ErrorTypeServerError = "server_error"

	// ErrorTypeServiceUnavailable indicates the service is shutting down or
	// a dependency is unavailable (503).
	ErrorTypeServiceUnavailable = "service_unavailable"
)

// Error code constants for common error scenarios.
const (
	CodeUnknownLever     = "unknown_lever"
	CodeInvalidValue     = "invalid_value"
	CodeInvalidDate      = "invalid_date"
	CodeInvalidPath      = "invalid_path"
	CodeInvalidHousehold = "invalid_household"
	CodeInvalidJSON      = "invalid_json"
	CodeRequestTooLarge  = "request_too_large"
	CodeDatasetError     = "dataset_unavailable"
	CodeInternalError    = "internal_error"
)

// NewErrorResponse creates a new error response with the given details.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates an error response for invalid requests (400).
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewServerError creates an error response for internal server errors (500).
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServerError, "", CodeInternalError)
}

// HTTPStatusCode returns the HTTP status code for the error type.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrorTypeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RequestError is a malformed request: unreadable body, bad JSON or a body
// over the size limit.
type RequestError struct {
	Message string
	Param   string
	Code    string
}

func (e *RequestError) Error() string {
	return e.Message
}

var (
	// ErrNoHousehold is returned when household_reform gets no household.
	ErrNoHousehold = errors.New("household is required")

	// ErrNoPeople is returned for a household without members.
	ErrNoPeople = errors.New("household has no people")

	// ErrUnknownInput is returned for a name that is not an input variable
	// of the expected entity.
	ErrUnknownInput = errors.New("unknown input variable")

	// ErrInputValue is returned for a non-numeric input value.
	ErrInputValue = errors.New("invalid input value")
)

// HouseholdError is a client error in the household description of a
// household_reform request. Field is the dotted location of the fault.
type HouseholdError struct {
	Field string
	Err   error
}

func (e *HouseholdError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("household: %v", e.Err)
	}
	return fmt.Sprintf("household %s: %v", e.Field, e.Err)
}

func (e *HouseholdError) Unwrap() error {
	return e.Err
}

// HandleError converts an error to the response returned to the caller.
// Errors attributable to the request become 400s; everything else is an
// internal error whose detail stays in the logs.
func HandleError(err error) *ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return NewInvalidRequestError(reqErr.Message, reqErr.Param, reqErr.Code)
	}

	var leverErr *reform.LeverError
	if errors.As(err, &leverErr) {
		code := CodeInvalidValue
		switch {
		case errors.Is(err, reform.ErrUnknownLever):
			code = CodeUnknownLever
		case errors.Is(err, reform.ErrInvalidDate):
			code = CodeInvalidDate
		}
		return NewInvalidRequestError(leverErr.Error(), leverErr.Lever, code)
	}

	var pathErr *patch.PathError
	if errors.As(err, &pathErr) {
		return NewInvalidRequestError(pathErr.Error(), pathErr.Path, CodeInvalidPath)
	}

	var householdErr *HouseholdError
	if errors.As(err, &householdErr) {
		param := HouseholdField
		if householdErr.Field != "" {
			param += "." + householdErr.Field
		}
		return NewInvalidRequestError(householdErr.Error(), param, CodeInvalidHousehold)
	}

	if errors.Is(err, reform.ErrInvalidDate) {
		return NewInvalidRequestError(err.Error(), reform.PolicyDate, CodeInvalidDate)
	}

	if errors.Is(err, tasks.ErrClosed) {
		return NewErrorResponse("The server is shutting down.", ErrorTypeServiceUnavailable, "", "shutting_down")
	}

	var loadErr *dataset.LoadError
	if errors.As(err, &loadErr) {
		return NewErrorResponse(
			fmt.Sprintf("Dataset for %d is unavailable. Please try again later.", loadErr.Year),
			ErrorTypeServiceUnavailable, "", CodeDatasetError,
		)
	}

	return NewServerError("An internal error occurred. Please try again later.")
}

// IsClientError reports whether err is attributable to the request.
func IsClientError(err error) bool {
	return HandleError(err).Error.Type == ErrorTypeInvalidRequest
}

// WriteJSONResponse writes data as JSON with the given status.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

// WriteErrorResponse writes errResp with the status its type maps to.
func WriteErrorResponse(w http.ResponseWriter, errResp *ErrorResponse) error {
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}
