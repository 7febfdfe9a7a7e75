package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidIndex         = errors.New("invalid cart index")
	ErrQuotaExceeded        = errors.New("ticket quota exceeded")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrConflict             = errors.New("conflict")
	ErrBoothFull            = errors.New("booth full")
	ErrAlreadyReserved      = errors.New("already reserved")
	ErrEmptyCart            = errors.New("empty cart")
	ErrInvalidTotal         = errors.New("invalid total")
	ErrPaymentDeclined      = errors.New("payment declined")
	ErrRaceCondition        = errors.New("race condition detected")
)
