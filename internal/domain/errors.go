package domain

import "errors"

var (
	// ErrNotFound is returned when no series is persisted for a symbol.
	ErrNotFound = errors.New("series not found")

	// ErrDateNotAvailable is returned when an exact single-date query misses
	// the stored series, either inside a gap or outside the stored range.
	ErrDateNotAvailable = errors.New("date not available")

	// ErrDegenerateRange is returned when labels cannot be normalized: the
	// slope range has zero width or no window fits the input.
	ErrDegenerateRange = errors.New("degenerate slope range")

	// ErrInvalidRange is returned for begin > end or a non-positive window.
	ErrInvalidRange = errors.New("invalid range")

	// ErrDuplicateDate is returned when a series holds two bars for one day.
	ErrDuplicateDate = errors.New("duplicate bar date")

	// ErrBarDate is returned when a bar date is not a UTC midnight calendar
	// date.
	ErrBarDate = errors.New("bar date is not a UTC calendar day")

	// ErrSchemaVersion is returned when a persisted series was written with a
	// schema version this build does not understand.
	ErrSchemaVersion = errors.New("unsupported schema version")
)
