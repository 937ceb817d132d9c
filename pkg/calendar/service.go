package calendar

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/campusflow/campusflow/pkg/event"
	"github.com/campusflow/campusflow/pkg/sync_config"
	"github.com/campusflow/campusflow/pkg/user"
	log "github.com/sirupsen/logrus"
)

type ConfigProvider interface {
	GetSyncConfig(ctx context.Context, userId string) (sync_config.CalendarSyncConfig, error)
}

type Service struct {
	aggregator *Aggregator
	configs    ConfigProvider
}

func NewService(aggregator *Aggregator, configs ConfigProvider) *Service {
	return &Service{aggregator: aggregator, configs: configs}
}

// GetEvents returns the caller's feed with the sources enabled in their sync config.
func (s *Service) GetEvents(ctx context.Context, start, end *civil.Date) ([]event.Event, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	if start != nil && end != nil && start.After(*end) {
		return nil, ErrInvalidRange
	}
	cfg, err := s.configs.GetSyncConfig(ctx, userId)
	if err != nil {
		return nil, err
	}
	events, err := s.aggregator.GetEvents(ctx, userId, start, end, &cfg.EventSources)
	if err != nil {
		return nil, err
	}
	log.Debugf("aggregated %d events for user %s", len(events), userId)
	return events, nil
}
