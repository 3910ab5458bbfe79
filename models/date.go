package models

import "time"

// Date drops the clock part of t and pins the calendar day to UTC midnight,
// which is how every loan and reservation date is stored.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
