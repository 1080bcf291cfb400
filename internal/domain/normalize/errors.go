package normalize

import "errors"

var (
	// ErrEmptyCohort is returned when there are no scores to normalize.
	ErrEmptyCohort = errors.New("empty cohort")
	// ErrDegenerateInput marks a cohort with no spread (all totals equal or a
	// single record). It is reported on the Result, never returned as a
	// failure: every record simply receives the target mean.
	ErrDegenerateInput = errors.New("degenerate cohort: no spread to rank")
	// ErrInvalidTotal is returned for a non-finite target total.
	ErrInvalidTotal = errors.New("invalid target total")
)
