package util

import (
	"time"

	"barlab/internal/domain"
)

// DefaultCloseHour is the local hour at which the daily session is treated
// as closed.
const DefaultCloseHour = 16

// TradingCalendar snaps timestamps to trading days. A trading day is any
// Monday through Friday; exchange holidays are not modelled.
type TradingCalendar struct {
	loc       *time.Location
	closeHour int
	now       func() time.Time
}

// CalendarOption configures a TradingCalendar.
type CalendarOption func(*TradingCalendar)

// WithClock overrides the wall clock used when no timestamp is given.
func WithClock(now func() time.Time) CalendarOption {
	return func(tc *TradingCalendar) { tc.now = now }
}

// WithCloseHour sets the session close hour (0-23).
func WithCloseHour(hour int) CalendarOption {
	return func(tc *TradingCalendar) { tc.closeHour = hour }
}

// NewTradingCalendar creates a TradingCalendar whose "now" is read in loc.
// A nil loc means time.Local.
func NewTradingCalendar(loc *time.Location, opts ...CalendarOption) *TradingCalendar {
	if loc == nil {
		loc = time.Local
	}
	tc := &TradingCalendar{
		loc:       loc,
		closeHour: DefaultCloseHour,
		now:       time.Now,
	}
	for _, o := range opts {
		o(tc)
	}
	return tc
}

// Resolve returns the trading day for t as a UTC-midnight calendar date.
//
// A zero t means "now": before the close hour the previous day is used, since
// today's session has not finished. Any time-of-day on t is dropped. Saturday
// and Sunday walk back to the preceding Friday.
func (tc *TradingCalendar) Resolve(t time.Time) time.Time {
	if t.IsZero() {
		now := tc.now().In(tc.loc)
		if now.Hour() < tc.closeHour {
			now = now.AddDate(0, 0, -1)
		}
		t = now
	}

	d := domain.DateOf(t)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LastTradingDay is the trading day whose session most recently closed.
func (tc *TradingCalendar) LastTradingDay() time.Time {
	return tc.Resolve(time.Time{})
}

// IsTradingDay reports whether t falls on Monday through Friday.
func IsTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}
