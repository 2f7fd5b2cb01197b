package service

import (
	"time"
)

// MarketHours answers whether the exchange session is open.
// Monday to Friday, open <= t <= close in the exchange timezone, minus holidays.
type MarketHours struct {
	loc         *time.Location
	openMinute  int
	closeMinute int
	holidays    map[string]bool
	now         func() time.Time
}

// NewMarketHours creates a market hours predicate for the given session
func NewMarketHours(loc *time.Location, openHour, openMinute, closeHour, closeMinute int, holidays []time.Time) *MarketHours {
	days := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		days[h.Format(time.DateOnly)] = true
	}
	return &MarketHours{
		loc:         loc,
		openMinute:  openHour*60 + openMinute,
		closeMinute: closeHour*60 + closeMinute,
		holidays:    days,
		now:         time.Now,
	}
}

// NewNSEMarketHours returns the NSE/BSE equity session, 09:15 to 15:30 IST
func NewNSEMarketHours(loc *time.Location, holidays []time.Time) *MarketHours {
	return NewMarketHours(loc, 9, 15, 15, 30, holidays)
}

// IsMarketOpen reports whether the session is open right now
func (m *MarketHours) IsMarketOpen() bool {
	return m.IsOpenAt(m.now())
}

// IsOpenAt reports whether the session is open at t
func (m *MarketHours) IsOpenAt(t time.Time) bool {
	local := t.In(m.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if m.holidays[local.Format(time.DateOnly)] {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	if minute < m.openMinute {
		return false
	}
	if minute > m.closeMinute {
		return false
	}
	// 15:30:01 is already closed
	if minute == m.closeMinute && (local.Second() > 0 || local.Nanosecond() > 0) {
		return false
	}
	return true
}

// Location returns the exchange timezone
func (m *MarketHours) Location() *time.Location {
	return m.loc
}
