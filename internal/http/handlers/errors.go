// Package handlers defines the error codes of the operations surface.
//
// Every error response carries one of these codes next to the HTTP status
// so that callers (the bot platform, internal triggers, operators) can
// branch without parsing messages.
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "bad_request",
//	  "message": "undecodable update"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// ErrCodeStoreUnavailable tells the platform to redeliver the update.
	ErrCodeStoreUnavailable = "store_unavailable"
)
