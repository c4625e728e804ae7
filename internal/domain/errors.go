package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrRateUnavailable      = errors.New("exchange rate unavailable")
	ErrDuplicateTransaction = errors.New("transaction already committed")
	ErrLockHeld             = errors.New("lock already held")
	ErrMatchSettled         = errors.New("match already settled")
)
