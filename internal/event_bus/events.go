package event_bus

const CalendarEventChangedType EventType = "calendar.event.changed"

type ChangeKind string

const (
	EventCreated ChangeKind = "created"
	EventUpdated ChangeKind = "updated"
	EventDeleted ChangeKind = "deleted"
)

// CalendarEventChanged is published after a user authored event is stored, updated or removed.
type CalendarEventChanged struct {
	UserId  string
	EventId string
	Kind    ChangeKind
}
