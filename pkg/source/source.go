package source

import (
	"cloud.google.com/go/civil"
)

// Records below are owned by the coursework, fitness, nutrition and sleep services.
// The calendar only reads them.

type Assignment struct {
	Id          string
	Title       string
	Course      string
	DueDate     civil.Date
	DueTime     *civil.Time
	Description string
}

type Workout struct {
	Id              string
	Type            string
	Date            civil.Date
	Time            *civil.Time
	DurationMinutes int
	Notes           string
}

type Meal struct {
	Id       string
	MealType string
	Name     string
	Date     civil.Date
	Time     *civil.Time
	Calories int
}

type SleepLog struct {
	Id       string
	Date     civil.Date
	BedTime  *civil.Time
	WakeTime *civil.Time
	Hours    float64
	Quality  string
}

// Range bounds a read; nil ends are open.
type Range struct {
	From *civil.Date
	To   *civil.Date
}

func (r Range) Contains(d civil.Date) bool {
	if r.From != nil && d.Before(*r.From) {
		return false
	}
	if r.To != nil && d.After(*r.To) {
		return false
	}
	return true
}
