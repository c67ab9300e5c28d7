package errors

import "errors"

var (
	ErrMissingBotToken     = errors.New("TELEGRAM_BOT_TOKEN environment variable is required")
	ErrUnauthorized        = errors.New("unauthorized user")
	ErrEmptyFeedURL        = errors.New("feed URL must not be empty")
	ErrEmptyDestination    = errors.New("destination must not be empty")
	ErrDestinationNotFound = errors.New("destination not found")
	ErrValidationFailed    = errors.New("could not validate feed")
)
