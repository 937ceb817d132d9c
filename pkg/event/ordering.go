package event

import "strings"

const endOfDay = 24 * 60

// Compare orders events by date, then clock time with untimed events last in their day,
// then title and id so the order is total.
func Compare(a, b Event) int {
	if a.Date.Before(b.Date) {
		return -1
	}
	if a.Date.After(b.Date) {
		return 1
	}
	if d := minuteOfDay(a) - minuteOfDay(b); d != 0 {
		return d
	}
	if c := strings.Compare(a.Title, b.Title); c != 0 {
		return c
	}
	return strings.Compare(a.Id, b.Id)
}

func minuteOfDay(e Event) int {
	if e.Time == nil {
		return endOfDay
	}
	return e.Time.Hour*60 + e.Time.Minute
}
