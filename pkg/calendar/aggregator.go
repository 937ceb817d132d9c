package calendar

import (
	"context"
	"fmt"
	"slices"

	"cloud.google.com/go/civil"
	"github.com/campusflow/campusflow/pkg/event"
	"github.com/campusflow/campusflow/pkg/source"
	"github.com/campusflow/campusflow/pkg/sync_config"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidRange = fmt.Errorf("%w: startDate must not be after endDate", event.ErrValidation)

type EventFinder interface {
	FindEvents(ctx context.Context, userId string, q event.Query) ([]event.Event, error)
}

// Aggregator merges persisted events with events derived from the other domains on read.
// It never writes.
type Aggregator struct {
	events  EventFinder
	sources source.Reader
}

func NewAggregator(events EventFinder, sources source.Reader) *Aggregator {
	return &Aggregator{events: events, sources: sources}
}

// GetEvents returns the user's feed within the inclusive [start, end] bounds. A nil sources
// value means no derived events.
func (a *Aggregator) GetEvents(ctx context.Context, userId string, start, end *civil.Date, sources *sync_config.EventSources) ([]event.Event, error) {
	if start != nil && end != nil && start.After(*end) {
		return nil, ErrInvalidRange
	}
	enabled := sync_config.EventSources{}
	if sources != nil {
		enabled = *sources
	}
	r := source.Range{From: start, To: end}

	var persisted, assignments, workouts, meals, sleep []event.Event
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		persisted, err = a.events.FindEvents(gctx, userId, event.Query{From: start, To: end})
		return err
	})
	if enabled.Assignments {
		g.Go(func() error {
			items, err := a.sources.Assignments(gctx, userId, r)
			assignments = source.FromAssignments(userId, items, r)
			return err
		})
	}
	if enabled.Workouts {
		g.Go(func() error {
			items, err := a.sources.Workouts(gctx, userId, r)
			workouts = source.FromWorkouts(userId, items, r)
			return err
		})
	}
	if enabled.Meals {
		g.Go(func() error {
			items, err := a.sources.Meals(gctx, userId, r)
			meals = source.FromMeals(userId, items, r)
			return err
		})
	}
	if enabled.Sleep {
		g.Go(func() error {
			items, err := a.sources.SleepLogs(gctx, userId, r)
			sleep = source.FromSleepLogs(userId, items, r)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]event.Event, 0, len(persisted)+len(assignments)+len(workouts)+len(meals)+len(sleep))
	merged = append(merged, persisted...)
	merged = appendDistinct(merged, assignments, workouts, meals, sleep)
	slices.SortFunc(merged, event.Compare)
	return merged, nil
}

type derivedKey struct {
	source   event.Source
	sourceId string
}

// appendDistinct keeps the first event seen for each (source, sourceId).
func appendDistinct(dst []event.Event, groups ...[]event.Event) []event.Event {
	seen := make(map[derivedKey]struct{})
	for _, group := range groups {
		for _, e := range group {
			key := derivedKey{e.Source, e.SourceId}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			dst = append(dst, e)
		}
	}
	return dst
}
