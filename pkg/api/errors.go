package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrInvalidBaseUrl = fmt.Errorf("invalid API base URL")
)

// ErrorResponse is returned for every response with a non-success HTTP status
type ErrorResponse struct {
	Code    int    `form:"code" json:"code" yaml:"code" xml:"code"`
	Message string `form:"message" json:"message" yaml:"message" xml:"message"`
}

func NewErrorResponse(statusCode int, err error) ErrorResponse {
	return ErrorResponse{
		Code:    statusCode,
		Message: err.Error(),
	}
}

// ErrorResponse implements error interface
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%v %s", e.Code, e.Message)
}

// StatusCode extracts HTTP status code from an error produced by a Client, if any
func StatusCode(err error) (int, bool) {
	var apiErr *ErrorResponse
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}

	return 0, false
}

func IsNotFound(err error) bool {
	code, ok := StatusCode(err)
	return ok && code == http.StatusNotFound
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func readApiError(resp *http.Response) error {
	errorResponse := &ErrorResponse{
		Code:    resp.StatusCode,
		Message: resp.Status,
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		return errorResponse
	}

	var details struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &details); err != nil {
		// Failed to unmarshal error message, fallback to HTTP status
		return errorResponse
	}

	switch {
	case details.Message != "":
		errorResponse.Message = details.Message
	case details.Error != "":
		errorResponse.Message = details.Error
	}

	return errorResponse
}
