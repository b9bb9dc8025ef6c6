package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nordicloop-admin/payout-console/internal/domain"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type inconsistentResponse struct {
	Error       string   `json:"error"`
	SellerID    string   `json:"seller_id"`
	ScheduleIDs []string `json:"schedule_ids"`
	Action      string   `json:"action"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON decodes an optional JSON body into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &domain.ErrValidation{Field: "body", Message: "invalid JSON request body"}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ErrValidation{Field: fe.Field(), Message: fmt.Sprintf("failed '%s' check", fe.Tag())}
		}
		return &domain.ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

// handleServiceError maps domain errors to HTTP responses.
// ErrInconsistentState wraps the underlying transport error, so it is
// matched before the generic external-service case.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var inconsistent *domain.ErrInconsistentState
	var partial *domain.ErrPartialFailure
	var concurrent *domain.ErrConcurrentOperation
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var malformed *domain.ErrMalformedResponse
	var external *domain.ErrExternalService
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized

	switch {
	case errors.As(err, &inconsistent):
		logger.Error("inconsistent payout state", zap.Error(err))
		writeJSON(w, http.StatusConflict, inconsistentResponse{
			Error:       err.Error(),
			SellerID:    inconsistent.SellerID,
			ScheduleIDs: inconsistent.ScheduleIDs,
			Action:      "reload pending payouts and reconcile the listed schedules",
		})
	case errors.As(err, &partial):
		logger.Warn("partial failure", zap.String("error", err.Error()))
		writeJSON(w, http.StatusMultiStatus, map[string]any{
			"error":   err.Error(),
			"outcome": partial.Outcome,
		})
	case errors.As(err, &concurrent):
		logger.Debug("concurrent operation", zap.String("action", concurrent.Action))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: validation.Field})
	case errors.As(err, &malformed):
		logger.Error("malformed payout API response", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &external):
		logger.Error("payout API failure", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
