package service

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrPaymentRequired        = errors.New("course requires payment")
	ErrSignatureMismatch      = errors.New("payment signature mismatch")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrAlreadyProcessed       = errors.New("order already paid")
	ErrNotConfigured          = errors.New("webhook secret not configured")
	ErrMalformedEvent         = errors.New("malformed webhook event")
	ErrEnrollmentUpdateFailed = errors.New("enrollment update failed")
	ErrForbidden              = errors.New("forbidden")
)
