package sync_config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/campusflow/campusflow/internal/utils"
	"github.com/campusflow/campusflow/pkg/connector"
	log "github.com/sirupsen/logrus"
)

type Service interface {
	// GetSyncConfig returns the user's config, creating the default one on first access.
	GetSyncConfig(ctx context.Context, userId string) (CalendarSyncConfig, error)
	UpdateSyncConfig(ctx context.Context, userId string, patch Patch) (CalendarSyncConfig, error)
	Connect(ctx context.Context, userId string, provider connector.Provider, creds connector.Credentials, conn connector.Connection) error
	Disconnect(ctx context.Context, userId string, provider connector.Provider) error
	// Credentials returns the stored credentials or connector.ErrNotConnected.
	Credentials(ctx context.Context, userId string, provider connector.Provider) (connector.Credentials, error)
	MarkSynced(ctx context.Context, userId string, provider connector.Provider, at time.Time) error
	ConfigsWithFrequency(ctx context.Context, frequency SyncFrequency) ([]CalendarSyncConfig, error)
}

type ServiceImpl struct {
	repo   Repository
	sealer Sealer
	clock  utils.Clock
}

func NewService(repo Repository, sealer Sealer, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, sealer: sealer, clock: clock}
}

func (s *ServiceImpl) GetSyncConfig(ctx context.Context, userId string) (CalendarSyncConfig, error) {
	cfg, err := s.repo.GetConfig(ctx, userId)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrConfigNotFound) {
		return CalendarSyncConfig{}, err
	}
	log.Debugf("creating default sync config for user %s", userId)
	return s.repo.CreateConfig(ctx, DefaultConfig(userId))
}

func (s *ServiceImpl) UpdateSyncConfig(ctx context.Context, userId string, patch Patch) (CalendarSyncConfig, error) {
	if patch.SyncFrequency != nil && !patch.SyncFrequency.Valid() {
		return CalendarSyncConfig{}, ErrInvalidFrequency
	}
	if _, err := s.GetSyncConfig(ctx, userId); err != nil {
		return CalendarSyncConfig{}, err
	}
	return s.repo.UpdatePreferences(ctx, userId, patch)
}

func (s *ServiceImpl) Connect(ctx context.Context, userId string, provider connector.Provider, creds connector.Credentials, conn connector.Connection) error {
	if _, err := s.GetSyncConfig(ctx, userId); err != nil {
		return err
	}
	plain, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("could not encode credentials: %w", err)
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return err
	}
	if err := s.repo.SaveConnection(ctx, userId, provider, conn, sealed, s.clock.Now()); err != nil {
		return err
	}
	log.Infof("user %s connected %s calendar", userId, provider)
	return nil
}

func (s *ServiceImpl) Disconnect(ctx context.Context, userId string, provider connector.Provider) error {
	if err := s.repo.RemoveConnection(ctx, userId, provider); err != nil {
		return err
	}
	log.Infof("user %s disconnected %s calendar", userId, provider)
	return nil
}

func (s *ServiceImpl) Credentials(ctx context.Context, userId string, provider connector.Provider) (connector.Credentials, error) {
	sealed, err := s.repo.GetCredentials(ctx, userId, provider)
	if err != nil {
		if errors.Is(err, ErrCredentialsNotFound) {
			return connector.Credentials{}, fmt.Errorf("%w: %s", connector.ErrNotConnected, provider)
		}
		return connector.Credentials{}, err
	}
	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return connector.Credentials{}, err
	}
	var creds connector.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return connector.Credentials{}, fmt.Errorf("could not decode credentials: %w", err)
	}
	return creds, nil
}

func (s *ServiceImpl) MarkSynced(ctx context.Context, userId string, provider connector.Provider, at time.Time) error {
	return s.repo.MarkSynced(ctx, userId, provider, at)
}

func (s *ServiceImpl) ConfigsWithFrequency(ctx context.Context, frequency SyncFrequency) ([]CalendarSyncConfig, error) {
	return s.repo.ListByFrequency(ctx, frequency)
}
