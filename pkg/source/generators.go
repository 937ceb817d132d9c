package source

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/campusflow/campusflow/pkg/event"
)

// Generators are pure: the same records always yield the same events, in input order,
// and records outside the range are dropped.

func FromAssignments(userId string, items []Assignment, r Range) []event.Event {
	events := make([]event.Event, 0, len(items))
	for _, a := range items {
		if !r.Contains(a.DueDate) {
			continue
		}
		description := a.Description
		if a.Course != "" {
			description = strings.TrimSpace(a.Course + "\n" + a.Description)
		}
		events = append(events, derived(userId, event.SourceAssignment, a.Id, event.Event{
			Title:       a.Title,
			Date:        a.DueDate,
			Time:        a.DueTime,
			Category:    event.CategoryAcademic,
			Description: description,
		}))
	}
	return events
}

func FromWorkouts(userId string, items []Workout, r Range) []event.Event {
	events := make([]event.Event, 0, len(items))
	for _, w := range items {
		if !r.Contains(w.Date) {
			continue
		}
		description := w.Notes
		if w.DurationMinutes > 0 {
			description = strings.TrimSpace(fmt.Sprintf("%d min\n%s", w.DurationMinutes, w.Notes))
		}
		events = append(events, derived(userId, event.SourceWorkout, w.Id, event.Event{
			Title:       "Workout: " + w.Type,
			Date:        w.Date,
			Time:        w.Time,
			Category:    event.CategoryWellness,
			Description: description,
		}))
	}
	return events
}

func FromMeals(userId string, items []Meal, r Range) []event.Event {
	events := make([]event.Event, 0, len(items))
	for _, m := range items {
		if !r.Contains(m.Date) {
			continue
		}
		description := ""
		if m.Calories > 0 {
			description = fmt.Sprintf("%d kcal", m.Calories)
		}
		events = append(events, derived(userId, event.SourceMeal, m.Id, event.Event{
			Title:       capitalize(m.MealType) + ": " + m.Name,
			Date:        m.Date,
			Time:        m.Time,
			Category:    event.CategoryWellness,
			Description: description,
		}))
	}
	return events
}

func FromSleepLogs(userId string, items []SleepLog, r Range) []event.Event {
	events := make([]event.Event, 0, len(items))
	for _, l := range items {
		if !r.Contains(l.Date) {
			continue
		}
		description := l.Quality
		if l.WakeTime != nil {
			description = strings.TrimSpace(fmt.Sprintf("until %s\n%s", event.FormatTime(*l.WakeTime), l.Quality))
		}
		events = append(events, derived(userId, event.SourceSleep, l.Id, event.Event{
			Title:       "Sleep (" + strconv.FormatFloat(l.Hours, 'f', -1, 64) + "h)",
			Date:        l.Date,
			Time:        l.BedTime,
			Category:    event.CategoryWellness,
			Description: description,
		}))
	}
	return events
}

func derived(userId string, source event.Source, sourceId string, e event.Event) event.Event {
	e.Id = event.DerivedId(source, sourceId)
	e.UserId = userId
	e.Source = source
	e.SourceId = sourceId
	return e
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
