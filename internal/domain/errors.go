package domain

import "errors"

// Domain errors
var (
	ErrAccountNotFound     = errors.New("credit account not found")
	ErrAccountMismatch     = errors.New("credit does not belong to this account")
	ErrInsufficientBalance = errors.New("insufficient credit balance")
	ErrExpiredCredit       = errors.New("an expired credit cannot be consumed")
	ErrInvalidInput        = errors.New("invalid input")
)
