package analyses

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrNothingToRetry  = errors.New("nothing to retry")
	ErrRetryInProgress = errors.New("summarization already in progress")
)

// Stable error codes surfaced in the HTTP error envelope.
const (
	ErrorCodeValidation        = "VALIDATION_ERROR"
	ErrorCodeClassifierFailure = "CLASSIFIER_FAILURE"
	ErrorCodeAlreadyInProgress = "ALREADY_IN_PROGRESS"
	ErrorCodeStorage           = "STORAGE_ERROR"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)
