package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"kiddoquest/internal/database"
	"kiddoquest/internal/logger"
	"kiddoquest/internal/security"
	"kiddoquest/internal/service"
	"kiddoquest/internal/validation"
)

// Result is the envelope of every JSON response
type Result struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail carries a stable code and a caller-safe message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, result Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}

func respondOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Result{Success: true, Data: data})
}

func respondWithCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Result{Error: &ErrorDetail{Code: code, Message: message}})
}

// respondWithError maps err to a result code. Internal failures are logged
// and reported without detail.
func respondWithError(w http.ResponseWriter, log *logger.Logger, logMsg string, err error) {
	status, code := classify(err)
	message := err.Error()
	if code == CodeInternal {
		if log != nil {
			log.Error(logMsg, "error", err)
		}
		message = ErrInternalServerError
	}
	respondWithCode(w, status, code, message)
}

func classify(err error) (int, string) {
	var verr validation.ValidationError
	switch {
	case errors.Is(err, service.ErrValidation), errors.As(err, &verr):
		return http.StatusBadRequest, CodeValidationFailed
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden, CodePermissionDenied
	case errors.Is(err, service.ErrFailedPrecondition):
		return http.StatusConflict, CodeFailedPrecondition
	case errors.Is(err, database.ErrRetryExhausted), errors.Is(err, database.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, security.ErrMissingToken), errors.Is(err, security.ErrInvalidToken):
		return http.StatusUnauthorized, CodeUnauthenticated
	}
	return http.StatusInternalServerError, CodeInternal
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return validation.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}
