package apperrors

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	ErrDetectionRunFailed   = errors.New("relationship detection run failed")
	ErrQueryTooVague        = errors.New("query too vague")
)
