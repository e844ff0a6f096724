package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Market Data Errors
	ErrMarketDataUnavailable = errors.New("market data source is unavailable")
	ErrConnectionFailed      = errors.New("failed to connect to the market data source")
	ErrRateLimited           = errors.New("API rate limit exceeded")

	// Decision Invoker Errors
	ErrDecisionFailed  = errors.New("decision backend returned an error")
	ErrDecisionTimeout = errors.New("decision backend timed out")
	ErrDecisionInvalid = errors.New("decision backend returned an unusable decision")

	// Ledger Errors
	ErrInsufficientFunds    = errors.New("insufficient cash for operation")
	ErrInsufficientPosition = errors.New("insufficient position for operation")

	// Event Broadcasting Errors
	ErrPublishFailed = errors.New("failed to publish event")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
