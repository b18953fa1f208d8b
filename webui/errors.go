package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kirinonakar/llm-translator/i18n"
	"github.com/kirinonakar/llm-translator/llm"
	"github.com/kirinonakar/llm-translator/textfile"
	"github.com/kirinonakar/llm-translator/translate"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeUpload     ErrorType = "upload"
	ErrorTypeServer     ErrorType = "server"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeCancelled  ErrorType = "cancelled"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
)

// ErrorResponse is the JSON body of every API error, and the payload of
// the "error" stream event.
type ErrorResponse struct {
	Type        ErrorType `json:"type"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Details     string    `json:"details"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

var (
	errForeignOrigin = errors.New("cross-origin request refused")
	errNotFound      = errors.New("not found")
)

// CategorizeError maps an error to a response using the UI language.
func CategorizeError(err error) ErrorResponse {
	if err == nil {
		return ErrorResponse{
			Type:        ErrorTypeInternal,
			Code:        "unknown_error",
			Title:       i18n.T("Unexpected error"),
			Description: i18n.T("Something went wrong."),
		}
	}
	details := err.Error()

	switch {
	case errors.Is(err, errBusy):
		return ErrorResponse{
			Type:        ErrorTypeConflict,
			Code:        "busy",
			Title:       i18n.T("Translation in progress"),
			Description: i18n.T("Wait for the current translation to finish or stop it."),
			Details:     details,
		}
	case errors.Is(err, errForeignOrigin):
		return ErrorResponse{
			Type:        ErrorTypeValidation,
			Code:        "foreign_origin",
			Title:       i18n.T("Request refused"),
			Description: i18n.T("Requests from other sites are not accepted."),
			Details:     details,
		}
	case errors.Is(err, errNotFound):
		return ErrorResponse{
			Type:        ErrorTypeNotFound,
			Code:        "not_found",
			Title:       i18n.T("Not found"),
			Description: i18n.T("The requested item does not exist or has expired."),
			Details:     details,
		}
	case errors.Is(err, translate.ErrInvalidConfiguration):
		return ErrorResponse{
			Type:        ErrorTypeValidation,
			Code:        "invalid_configuration",
			Title:       i18n.T("Invalid settings"),
			Description: i18n.T("Check the languages, temperature and chunk size."),
			Details:     details,
		}
	case errors.Is(err, textfile.ErrTooLarge), errors.Is(err, textfile.ErrNotText), errors.Is(err, errBadUpload):
		return ErrorResponse{
			Type:        ErrorTypeUpload,
			Code:        "invalid_upload",
			Title:       i18n.T("File rejected"),
			Description: i18n.T("Upload a UTF-8 text file."),
			Details:     details,
			Suggestions: []string{
				fmt.Sprintf(i18n.T("Files must be smaller than %d MB."), textfile.MaxSize>>20),
			},
		}
	case errors.Is(err, context.Canceled):
		return ErrorResponse{
			Type:        ErrorTypeCancelled,
			Code:        "cancelled",
			Title:       i18n.T("Translation stopped"),
			Description: i18n.T("The translation was cancelled. Finished chunks are kept."),
			Details:     details,
		}
	case errors.Is(err, llm.ErrConnection):
		return ErrorResponse{
			Type:        ErrorTypeServer,
			Code:        "connection_error",
			Title:       i18n.T("Cannot reach the LLM server"),
			Description: i18n.T("The server did not accept the connection."),
			Details:     details,
			Suggestions: []string{
				i18n.T("Check that the server is running and the URL is correct."),
			},
		}
	case errors.Is(err, llm.ErrTimeout):
		return ErrorResponse{
			Type:        ErrorTypeServer,
			Code:        "timeout",
			Title:       i18n.T("The LLM server timed out"),
			Description: i18n.T("No response was received in time."),
			Details:     details,
			Suggestions: []string{
				i18n.T("Use a smaller chunk size or a longer timeout."),
			},
		}
	case errors.Is(err, llm.ErrServer):
		return ErrorResponse{
			Type:        ErrorTypeServer,
			Code:        "server_error",
			Title:       i18n.T("The LLM server returned an error"),
			Description: i18n.T("The request was rejected or the reply was unusable."),
			Details:     details,
			Suggestions: []string{
				i18n.T("Check that a model is loaded."),
			},
		}
	}

	return ErrorResponse{
		Type:        ErrorTypeInternal,
		Code:        "internal_error",
		Title:       i18n.T("Unexpected error"),
		Description: i18n.T("Something went wrong."),
		Details:     details,
	}
}

// statusFor is the HTTP status for errors reported before a stream starts.
func statusFor(err error) int {
	switch CategorizeError(err).Type {
	case ErrorTypeValidation, ErrorTypeUpload:
		if errors.Is(err, errForeignOrigin) {
			return http.StatusForbidden
		}
		if errors.Is(err, textfile.ErrTooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeServer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a structured error response as JSON
func writeError(w http.ResponseWriter, statusCode int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if jsonErr := json.NewEncoder(w).Encode(CategorizeError(err)); jsonErr != nil {
		fmt.Fprintf(w, "Error: %v", err)
	}
}
