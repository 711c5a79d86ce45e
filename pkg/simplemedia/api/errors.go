package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a failure
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// classify maps a service error to an HTTP status and error code
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, simplemedia.ErrInvalidSecret):
		return http.StatusForbidden, "invalid_secret"
	case errors.Is(err, simplemedia.ErrAssetNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, simplemedia.ErrCropNotSupported):
		return http.StatusBadRequest, "crop_not_supported"
	case simplemedia.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case simplemedia.IsProcessing(err):
		return http.StatusInternalServerError, "processing_error"
	case simplemedia.IsStorage(err):
		return http.StatusInternalServerError, "storage_error"
	case simplemedia.IsPersistence(err):
		return http.StatusInternalServerError, "persistence_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := classify(err)
	body := ErrorBody{
		Code:      code,
		Message:   err.Error(),
		RequestID: requestID(r),
	}
	var verr *simplemedia.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", body.RequestID, "err", err)
		body.Message = http.StatusText(status)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: body})
}

func badRequest(w http.ResponseWriter, r *http.Request, field, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{
		Code:      "validation_error",
		Message:   message,
		Field:     field,
		RequestID: requestID(r),
	}})
}
