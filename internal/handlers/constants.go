package handlers

// Result codes returned in the error envelope
const (
	CodeUnauthenticated    = "unauthenticated"
	CodeNotFound           = "not_found"
	CodePermissionDenied   = "permission_denied"
	CodeValidationFailed   = "validation_failed"
	CodeFailedPrecondition = "failed_precondition"
	CodeConflict           = "conflict"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal"

	ErrInvalidBody         = "Invalid request body"
	ErrUnauthorized        = "Unauthorized"
	ErrInternalServerError = "Internal server error"
	ErrTooManyRequests     = "Too many requests"

	maxBodyBytes = 1 << 20
)
