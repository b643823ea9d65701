package util

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestResolveWeekend(t *testing.T) {
	cal := NewTradingCalendar(time.UTC)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"saturday", date(2024, 6, 15), date(2024, 6, 14)},
		{"sunday", date(2024, 6, 16), date(2024, 6, 14)},
		{"monday", date(2024, 6, 17), date(2024, 6, 17)},
		{"friday", date(2024, 6, 14), date(2024, 6, 14)},
		{"time of day dropped", time.Date(2024, 6, 12, 23, 59, 0, 0, time.UTC), date(2024, 6, 12)},
		{"sunday evening", time.Date(2024, 6, 16, 18, 0, 0, 0, time.UTC), date(2024, 6, 14)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cal.Resolve(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("Resolve(%s) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
			}
		})
	}
}

func TestResolveIdempotentAndWeekday(t *testing.T) {
	cal := NewTradingCalendar(time.UTC)
	start := date(2023, 12, 25)
	for i := 0; i < 60; i++ {
		d := start.AddDate(0, 0, i).Add(time.Duration(i) * time.Hour)
		r := cal.Resolve(d)
		if !IsTradingDay(r) {
			t.Fatalf("Resolve(%s) = %s (%s), not a trading day", d, r, r.Weekday())
		}
		if rr := cal.Resolve(r); !rr.Equal(r) {
			t.Fatalf("Resolve not idempotent: %s -> %s -> %s", d, r, rr)
		}
		if r.After(d) {
			t.Fatalf("Resolve(%s) moved forward to %s", d, r)
		}
	}
}

func TestResolveNow(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"wednesday before close", time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC), date(2024, 6, 11)},
		{"wednesday after close", time.Date(2024, 6, 12, 16, 0, 0, 0, time.UTC), date(2024, 6, 12)},
		{"monday morning", time.Date(2024, 6, 17, 9, 0, 0, 0, time.UTC), date(2024, 6, 14)},
		{"saturday afternoon", time.Date(2024, 6, 15, 17, 0, 0, 0, time.UTC), date(2024, 6, 14)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := NewTradingCalendar(time.UTC, WithClock(fixedClock(tt.now)))
			if got := cal.LastTradingDay(); !got.Equal(tt.want) {
				t.Errorf("LastTradingDay() = %s, want %s", got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
			}
		})
	}
}

func TestResolveNowUsesCalendarLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 18:00 UTC is 14:00 in New York (EDT): session still open.
	now := time.Date(2024, 6, 12, 18, 0, 0, 0, time.UTC)
	cal := NewTradingCalendar(ny, WithClock(fixedClock(now)))
	if got := cal.LastTradingDay(); !got.Equal(date(2024, 6, 11)) {
		t.Errorf("LastTradingDay() = %s, want 2024-06-11", got.Format("2006-01-02"))
	}

	early := NewTradingCalendar(ny, WithClock(fixedClock(now)), WithCloseHour(13))
	if got := early.LastTradingDay(); !got.Equal(date(2024, 6, 12)) {
		t.Errorf("LastTradingDay() with close 13 = %s, want 2024-06-12", got.Format("2006-01-02"))
	}
}
