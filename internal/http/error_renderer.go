package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/target/sarbatch/internal/domain/model"
	apperrors "github.com/target/sarbatch/internal/errors"
)

// errorStatus is the HTTP rendering of a classified error.
type errorStatus struct {
	Code    int
	ErrCode string
	Details map[string]any
}

// classifyError maps service errors onto HTTP statuses. Configuration faults are checked
// before user-facing conditions so a broken cost table never surfaces as a 400.
func classifyError(err error) errorStatus {
	var insufficient *model.InsufficientCreditsError
	switch {
	case errors.Is(err, model.ErrInconsistentState):
		return errorStatus{Code: http.StatusInternalServerError, ErrCode: "inconsistent_state"}
	case errors.Is(err, model.ErrCostConfig):
		return errorStatus{Code: http.StatusInternalServerError, ErrCode: "cost_config"}
	case errors.Is(err, model.ErrInvalidApplicationStatus):
		return errorStatus{Code: http.StatusInternalServerError, ErrCode: "invalid_application_status"}
	case errors.As(err, &insufficient):
		return errorStatus{
			Code:    http.StatusBadRequest,
			ErrCode: "insufficient_credits",
			Details: map[string]any{
				"total":     insufficient.Total,
				"remaining": insufficient.Remaining,
				"shortfall": insufficient.Shortfall(),
			},
		}
	case model.IsApplicationStatusError(err):
		return errorStatus{Code: http.StatusForbidden, ErrCode: "application_status"}
	case errors.Is(err, model.ErrApplicationClosed):
		return errorStatus{Code: http.StatusConflict, ErrCode: "application_closed"}
	case errors.Is(err, model.ErrCatalogUnavailable):
		return errorStatus{Code: http.StatusServiceUnavailable, ErrCode: "catalog_unavailable"}
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrInvalidTimeRange),
		errors.Is(err, model.ErrInvalidTransition):
		return errorStatus{Code: http.StatusBadRequest, ErrCode: "validation"}
	case errors.Is(err, model.ErrJobNotFound), errors.Is(err, model.ErrUserNotFound):
		return errorStatus{Code: http.StatusNotFound, ErrCode: "not_found"}
	case errors.Is(err, context.DeadlineExceeded):
		return errorStatus{Code: http.StatusGatewayTimeout, ErrCode: "timeout"}
	}
	return classifyAppError(err)
}

func classifyAppError(err error) errorStatus {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNotFound:
		return errorStatus{Code: http.StatusNotFound, ErrCode: "not_found"}
	case apperrors.ErrCodeConflict, apperrors.ErrCodeRetryable:
		return errorStatus{Code: http.StatusConflict, ErrCode: "conflict"}
	case apperrors.ErrCodeValidation, apperrors.ErrCodeForeignKey:
		return errorStatus{Code: http.StatusBadRequest, ErrCode: "validation"}
	case apperrors.ErrCodeTimeout:
		return errorStatus{Code: http.StatusGatewayTimeout, ErrCode: "timeout"}
	default:
		return errorStatus{Code: http.StatusInternalServerError, ErrCode: "internal_error"}
	}
}

// writeServiceError renders err. Server-side failures are logged and their message replaced
// with a generic one.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := classifyError(err)
	if status.Code >= http.StatusInternalServerError {
		if logger != nil {
			logger.ErrorContext(r.Context(), "request failed",
				"error", err,
				"error_code", status.ErrCode,
				"path", r.URL.Path,
			)
		}
		if status.Code == http.StatusInternalServerError {
			err = errors.New(http.StatusText(http.StatusInternalServerError))
		}
	}
	WriteError(w, ErrorParams{Code: status.Code, ErrCode: status.ErrCode, Err: err, Details: status.Details})
}
