package forecast

import "time"

// NextTradingDay advances one calendar day at a time from t, skipping
// Saturday and Sunday. Holiday calendars are not modeled.
func NextTradingDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// TradingDays returns the n trading days following last, one per prediction
// step.
func TradingDays(last time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	cur := last
	for i := 0; i < n; i++ {
		cur = NextTradingDay(cur)
		out[i] = cur
	}
	return out
}
