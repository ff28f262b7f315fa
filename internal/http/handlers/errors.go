package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these rather
// than on messages. Generic codes mirror their HTTP status; the rest name a
// failure of a specific operation.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeInvalidUserID   = "invalid_user_id"
	ErrCodeMissingUser     = "missing_user"
	ErrCodeInvalidToken    = "invalid_token"
	ErrCodeFileNotFound    = "file_not_found"
	ErrCodeNotOwner        = "not_owner"
	ErrCodeAdmissionFailed = "admission_failed"
	ErrCodeLookupFailed    = "lookup_failed"
	ErrCodeListFailed      = "list_failed"
	ErrCodeDeleteFailed    = "delete_failed"
)
