package apple

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	ical "github.com/arran4/golang-ical"
	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/campusflow/campusflow/pkg/event"
	log "github.com/sirupsen/logrus"
)

const (
	productId = "-//CampusFlow//Calendar Sync//EN"
	// originProperty marks calendar objects created by a push.
	originProperty = ical.ComponentProperty("X-CAMPUSFLOW-EVENT-ID")
)

func (c *Calendar) encode(uid string, e event.Event) ([]byte, error) {
	if !e.Date.IsValid() {
		return nil, fmt.Errorf("event %s has invalid date", e.Id)
	}
	cal := ical.NewCalendar()
	cal.SetProductId(productId)
	cal.SetMethod(ical.MethodPublish)

	ve := cal.AddEvent(uid)
	ve.SetDtStampTime(c.adapter.clock.Now().UTC())
	ve.SetSummary(e.Title)
	if e.Description != "" {
		ve.SetDescription(e.Description)
	}
	if e.Category != "" {
		ve.SetProperty(ical.ComponentPropertyCategories, string(e.Category))
	}
	ve.SetProperty(originProperty, e.Id)

	if e.Time == nil {
		day := e.Date.In(time.UTC)
		ve.SetAllDayStartAt(day)
		ve.SetAllDayEndAt(day.AddDate(0, 0, 1))
	} else {
		start := time.Date(e.Date.Year, e.Date.Month, e.Date.Day, e.Time.Hour, e.Time.Minute, 0, 0, c.adapter.location)
		ve.SetStartAt(start)
		ve.SetEndAt(start.Add(c.adapter.duration))
	}
	return []byte(cal.Serialize()), nil
}

func (c *Calendar) decode(data string) ([]connector.RemoteEvent, error) {
	cal, err := ical.ParseCalendar(strings.NewReader(data))
	if err != nil {
		return nil, err
	}
	events := make([]connector.RemoteEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		e, err := c.fromVEvent(ve)
		if err != nil {
			log.Warnf("ignoring VEVENT: %v", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func (c *Calendar) fromVEvent(ve *ical.VEvent) (connector.RemoteEvent, error) {
	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return connector.RemoteEvent{}, fmt.Errorf("missing UID")
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return connector.RemoteEvent{}, fmt.Errorf("event %s is cancelled", uidProp.Value)
	}

	e := event.Event{
		ExternalId: uidProp.Value,
		Title:      "(no title)",
		Category:   event.CategoryPersonal,
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && p.Value != "" {
		e.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		e.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		if category := event.Category(strings.ToLower(strings.TrimSpace(p.Value))); category.Valid() {
			e.Category = category
		}
	}

	start := ve.GetProperty(ical.ComponentPropertyDtStart)
	if start == nil {
		return connector.RemoteEvent{}, fmt.Errorf("event %s has no DTSTART", uidProp.Value)
	}
	date, at, err := c.parseStart(start)
	if err != nil {
		return connector.RemoteEvent{}, fmt.Errorf("event %s: %w", uidProp.Value, err)
	}
	e.Date = date
	e.Time = at

	var origin string
	if p := ve.GetProperty(originProperty); p != nil {
		origin = p.Value
	}
	return connector.RemoteEvent{Event: e, OriginId: origin}, nil
}

// parseStart reads DTSTART as a date for all-day events, or as a clock time in the sync
// timezone otherwise.
func (c *Calendar) parseStart(p *ical.IANAProperty) (civil.Date, *civil.Time, error) {
	value := strings.TrimSpace(p.Value)
	allDay := !strings.Contains(value, "T")
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}
	if allDay {
		t, err := time.Parse("20060102", value)
		if err != nil {
			return civil.Date{}, nil, fmt.Errorf("invalid DTSTART date %q", value)
		}
		return civil.DateOf(t), nil, nil
	}

	var t time.Time
	var err error
	if strings.HasSuffix(value, "Z") {
		t, err = time.Parse(davTimeLayout, value)
	} else {
		loc := c.adapter.location
		if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
			if l, lerr := time.LoadLocation(tz[0]); lerr == nil {
				loc = l
			}
		}
		t, err = time.ParseInLocation("20060102T150405", value, loc)
	}
	if err != nil {
		return civil.Date{}, nil, fmt.Errorf("invalid DTSTART %q", value)
	}
	t = t.In(c.adapter.location)
	return civil.DateOf(t), &civil.Time{Hour: t.Hour(), Minute: t.Minute()}, nil
}
