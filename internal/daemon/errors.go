package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/labstack/echo/v4"

	"vodingest/internal/logging"
	"vodingest/internal/services"
)

// apiError is the body of every error response: {"error": ..., "field": ...}.
type apiError struct {
	status  int
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *apiError) Error() string  { return e.Message }
func (e *apiError) GetStatus() int { return e.status }

var errorModelOnce sync.Once

// installErrorModel routes huma's own failures (bad JSON, missing fields)
// through apiError. Schema violations surface as 400 like other validation
// errors.
func installErrorModel() {
	errorModelOnce.Do(func() {
		huma.NewError = newHumaError
	})
}

func newHumaError(status int, msg string, errs ...error) huma.StatusError {
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}
	out := &apiError{status: status, Message: msg}
	var parts []string
	for _, err := range errs {
		if err == nil {
			continue
		}
		var detail *huma.ErrorDetail
		if errors.As(err, &detail) {
			if out.Field == "" {
				out.Field = fieldFromLocation(detail.Location)
			}
			parts = append(parts, detail.Message)
			continue
		}
		parts = append(parts, err.Error())
	}
	if len(parts) > 0 {
		out.Message = msg + ": " + strings.Join(parts, "; ")
	}
	return out
}

func fieldFromLocation(location string) string {
	for _, prefix := range []string{"body.", "query.", "path.", "header."} {
		if trimmed, ok := strings.CutPrefix(location, prefix); ok {
			return trimmed
		}
	}
	if location == "body" {
		return ""
	}
	return location
}

// toAPIError maps a service error onto its HTTP status. Unclassified
// failures are logged and reported without internals.
func (s *apiServer) toAPIError(ctx context.Context, err error) *apiError {
	var existing *apiError
	if errors.As(err, &existing) {
		return existing
	}
	details := services.Details(err)
	switch details.Kind {
	case services.KindValidation:
		return &apiError{status: http.StatusBadRequest, Message: details.Message, Field: details.Field}
	case services.KindForbidden:
		return &apiError{status: http.StatusForbidden, Message: details.Message}
	case services.KindNotFound:
		return &apiError{status: http.StatusNotFound, Message: details.Message}
	case services.KindConflict:
		return &apiError{status: http.StatusConflict, Message: details.Message}
	}
	logging.ErrorWithContext(logging.WithContext(ctx, s.logger), "request failed", "api_request_failed",
		logging.Error(err),
		logging.ErrorKind(err),
	)
	return &apiError{status: http.StatusInternalServerError, Message: "internal server error"}
}

// fail converts err for return from a huma handler.
func (s *apiServer) fail(ctx context.Context, err error) error {
	return s.toAPIError(ctx, err)
}

// handleEchoError renders errors from the raw echo routes and from echo
// itself (unknown routes, rate limiting) in the same shape as huma errors.
func (s *apiServer) handleEchoError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var body *apiError
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		body = &apiError{status: httpErr.Code, Message: fmt.Sprint(httpErr.Message)}
	} else {
		body = s.toAPIError(c.Request().Context(), err)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(body.status)
		return
	}
	_ = c.JSON(body.status, body)
}

// writeHumaError writes body from inside a huma middleware.
func writeHumaError(ctx huma.Context, body *apiError) {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.SetStatus(body.status)
	_ = json.NewEncoder(ctx.BodyWriter()).Encode(body)
}
