package analysis

import "errors"

// Engine-level errors. Callers should match with errors.Is; every returned error wraps one of these.
var (
	// ErrDataIntegrity reports duplicate or contradictory input records. Not retryable.
	ErrDataIntegrity = errors.New("data integrity error")
	// ErrInsufficientHistory reports a series too short for reliable forecasting.
	ErrInsufficientHistory = errors.New("insufficient market history")
	// ErrMissingInput reports that a specific metric cannot be computed. It degrades that metric only.
	ErrMissingInput = errors.New("missing input")
	// ErrForecastUnavailable is returned only when every forecast tier failed.
	ErrForecastUnavailable = errors.New("forecast unavailable")
	// ErrInsufficientFactors is returned when no scoring factor is present.
	ErrInsufficientFactors = errors.New("insufficient factors to score")
	// ErrTierUnavailable marks a forecast tier that cannot run for the given input.
	// The chain demotes to the next tier when it sees it.
	ErrTierUnavailable = errors.New("forecast tier unavailable")
)
