package event

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/campusflow/campusflow/internal/event_bus"
	"github.com/campusflow/campusflow/internal/utils"
	"github.com/campusflow/campusflow/pkg/user"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type CreateEventInput struct {
	Title       string
	Date        civil.Date
	Time        *civil.Time
	Category    Category
	Description string
}

// UpdateEventInput carries only the fields to change. ClearTime removes the clock time.
type UpdateEventInput struct {
	Title       *string
	Date        *civil.Date
	Time        *civil.Time
	ClearTime   bool
	Category    *Category
	Description *string
}

type Service interface {
	CreateEvent(ctx context.Context, input CreateEventInput) (Event, error)
	UpdateEvent(ctx context.Context, id string, input UpdateEventInput) (Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

type ServiceImpl struct {
	repo  Repository
	bus   *event_bus.EventBus
	clock utils.Clock
}

func NewService(repo Repository, bus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, bus: bus, clock: clock}
}

func (s *ServiceImpl) CreateEvent(ctx context.Context, input CreateEventInput) (Event, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("failed to get current user: %w", err)
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Event{}, ErrEmptyTitle
	}
	if !input.Category.Valid() {
		return Event{}, ErrInvalidCategory
	}
	if !input.Date.IsValid() {
		return Event{}, ErrInvalidDate
	}

	now := s.clock.Now()
	stored, err := s.repo.StoreEvent(ctx, Event{
		UserId:      userId,
		Title:       title,
		Date:        input.Date,
		Time:        input.Time,
		Category:    input.Category,
		Description: input.Description,
		Source:      SourceManual,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Event{}, err
	}
	log.Debugf("created event %s for user %s", stored.Id, userId)
	s.publish(ctx, userId, stored.Id, event_bus.EventCreated)
	return stored, nil
}

func (s *ServiceImpl) UpdateEvent(ctx context.Context, id string, input UpdateEventInput) (Event, error) {
	current, err := s.mutableEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}

	updated := current
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return Event{}, ErrEmptyTitle
		}
		updated.Title = title
	}
	if input.Category != nil {
		if !input.Category.Valid() {
			return Event{}, ErrInvalidCategory
		}
		updated.Category = *input.Category
	}
	if input.Date != nil {
		if !input.Date.IsValid() {
			return Event{}, ErrInvalidDate
		}
		updated.Date = *input.Date
	}
	if input.ClearTime {
		updated.Time = nil
	} else if input.Time != nil {
		updated.Time = input.Time
	}
	if input.Description != nil {
		updated.Description = *input.Description
	}
	updated.UpdatedAt = s.clock.Now()

	stored, err := s.repo.UpdateEvent(ctx, updated)
	if err != nil {
		return Event{}, err
	}
	stored.Links = current.Links
	log.Debugf("updated event %s for user %s", stored.Id, stored.UserId)
	s.publish(ctx, stored.UserId, stored.Id, event_bus.EventUpdated)
	return stored, nil
}

func (s *ServiceImpl) DeleteEvent(ctx context.Context, id string) error {
	current, err := s.mutableEvent(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteEvent(ctx, current.UserId, current.Id); err != nil {
		return err
	}
	log.Debugf("deleted event %s for user %s", current.Id, current.UserId)
	s.publish(ctx, current.UserId, current.Id, event_bus.EventDeleted)
	return nil
}

// mutableEvent loads the event and checks, in order, that it exists, that it is manual
// and that the caller owns it.
func (s *ServiceImpl) mutableEvent(ctx context.Context, id string) (Event, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("failed to get current user: %w", err)
	}

	if _, err := uuid.Parse(id); err != nil {
		if isDerivedId(id) {
			return Event{}, ErrImmutableSource
		}
		return Event{}, ErrEventNotFound
	}

	current, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if current.Source != SourceManual {
		return Event{}, ErrImmutableSource
	}
	if current.UserId != userId {
		return Event{}, ErrNotOwner
	}
	return current, nil
}

func (s *ServiceImpl) publish(ctx context.Context, userId string, eventId string, kind event_bus.ChangeKind) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(event_bus.NewEvent(context.WithoutCancel(ctx), event_bus.CalendarEventChangedType,
		event_bus.CalendarEventChanged{UserId: userId, EventId: eventId, Kind: kind}))
	if err != nil {
		log.Warnf("failed to publish change of event %s: %v", eventId, err)
	}
}
