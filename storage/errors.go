package storage

import "errors"

// Storage error constants
var (
	// ErrLogNotFound is returned when a log entry is not found
	ErrLogNotFound = errors.New("log entry not found")

	// ErrEventNotFound is returned when a security event is not found
	ErrEventNotFound = errors.New("security event not found")

	// ErrEventResolved is returned when resolving an already-resolved event
	ErrEventResolved = errors.New("security event is already resolved")

	// ErrRuleNotFound is returned when an alert rule is not found
	ErrRuleNotFound = errors.New("alert rule not found")

	// ErrChannelNotFound is returned when a notification channel is not found
	ErrChannelNotFound = errors.New("notification channel not found")

	// ErrInvalidBucket is returned for an unknown trend bucket granularity
	ErrInvalidBucket = errors.New("invalid trend bucket granularity")
)
