// Package domain contains core business types and interfaces.
//
// This file implements the window calculator: pure functions computing the
// reset boundaries the ledger uses. Everything takes "now" as input so tests
// can pin the clock.
package domain

import "time"

// NextMidnight returns 00:00:00 of the calendar day following now, in loc.
// The location must be the deployment's single reference zone; mixing zones
// across calls would drift the daily window.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

// NextMonthStart returns 00:00:00 on the 1st of the month following now, in loc.
func NextMonthStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, loc)
}

// ProExpiry returns the instant a paid subscription activated at now lapses:
// durationDays later, same time-of-day.
func ProExpiry(now time.Time, durationDays int) time.Time {
	return now.AddDate(0, 0, durationDays)
}
