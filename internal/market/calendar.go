package market

import "time"

// Calendar answers whether an instrument is tradable at a given instant.
// All sessions are expressed in UTC.
type Calendar struct {
	now func() time.Time
}

// NewCalendar creates a calendar using the wall clock
func NewCalendar() *Calendar {
	return &Calendar{now: time.Now}
}

// NewCalendarWithClock creates a calendar with an injected clock
func NewCalendarWithClock(now func() time.Time) *Calendar {
	return &Calendar{now: now}
}

// IsOpen reports whether the commodity's market is open right now
func (c *Calendar) IsOpen(commodityID string) bool {
	return c.IsOpenAt(commodityID, c.now())
}

// IsOpenAt reports whether the commodity's market is open at t.
// Unknown commodities are treated as closed.
func (c *Calendar) IsOpenAt(commodityID string, t time.Time) bool {
	cm, ok := Lookup(commodityID)
	if !ok {
		return false
	}
	return ClassOpenAt(cm.Class, t)
}

// ClassOpenAt applies the session rules of an asset class
func ClassOpenAt(class AssetClass, t time.Time) bool {
	t = t.UTC()
	wd := t.Weekday()
	mins := t.Hour()*60 + t.Minute()

	switch class {
	case Crypto:
		return true

	case Forex:
		// Sun 22:00 to Fri 22:00
		switch wd {
		case time.Saturday:
			return false
		case time.Sunday:
			return mins >= 22*60
		case time.Friday:
			return mins < 22*60
		default:
			return true
		}

	case Metals, Energy:
		// CME Globex: Sun 23:00 to Fri 22:00 with a daily 22:00-23:00 maintenance break
		switch wd {
		case time.Saturday:
			return false
		case time.Sunday:
			return mins >= 23*60
		case time.Friday:
			return mins < 22*60
		default:
			return mins < 22*60 || mins >= 23*60
		}

	case Agri:
		// CBOT day session, Mon-Fri 01:00-19:20
		if wd == time.Saturday || wd == time.Sunday {
			return false
		}
		return mins >= 60 && mins < 19*60+20
	}

	return false
}
