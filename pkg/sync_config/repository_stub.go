package sync_config

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campusflow/campusflow/pkg/connector"
)

type credentialKey struct {
	userId   string
	provider connector.Provider
}

type RepositoryStub struct {
	mu          sync.RWMutex
	configs     map[string]CalendarSyncConfig
	credentials map[credentialKey][]byte
	Err         error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		configs:     make(map[string]CalendarSyncConfig),
		credentials: make(map[credentialKey][]byte),
	}
}

func (r *RepositoryStub) GetConfig(ctx context.Context, userId string) (CalendarSyncConfig, error) {
	if r.Err != nil {
		return CalendarSyncConfig{}, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[userId]
	if !ok {
		return CalendarSyncConfig{}, ErrConfigNotFound
	}
	return cfg, nil
}

func (r *RepositoryStub) CreateConfig(ctx context.Context, cfg CalendarSyncConfig) (CalendarSyncConfig, error) {
	if r.Err != nil {
		return CalendarSyncConfig{}, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.configs[cfg.UserId]; ok {
		return existing, nil
	}
	r.configs[cfg.UserId] = cfg
	return cfg, nil
}

func (r *RepositoryStub) UpdatePreferences(ctx context.Context, userId string, patch Patch) (CalendarSyncConfig, error) {
	if r.Err != nil {
		return CalendarSyncConfig{}, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[userId]
	if !ok {
		return CalendarSyncConfig{}, ErrConfigNotFound
	}
	cfg = patch.apply(cfg)
	r.configs[userId] = cfg
	return cfg, nil
}

func (r *RepositoryStub) SaveConnection(ctx context.Context, userId string, provider connector.Provider, conn connector.Connection, sealed []byte, at time.Time) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[userId]
	if !ok {
		return ErrConfigNotFound
	}
	switch provider {
	case connector.Google:
		cfg.GoogleCalendar.Connected = true
		cfg.GoogleCalendar.SyncEnabled = true
		cfg.GoogleCalendar.CalendarId = conn.CalendarId
	case connector.Apple:
		cfg.AppleCalendar.Connected = true
		cfg.AppleCalendar.SyncEnabled = true
		cfg.AppleCalendar.ServerUrl = conn.ServerUrl
		cfg.AppleCalendar.CalendarName = conn.CalendarName
	default:
		return connector.ErrInvalidProvider
	}
	r.configs[userId] = cfg
	r.credentials[credentialKey{userId, provider}] = append([]byte(nil), sealed...)
	return nil
}

func (r *RepositoryStub) RemoveConnection(ctx context.Context, userId string, provider connector.Provider) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.credentials, credentialKey{userId, provider})
	cfg, ok := r.configs[userId]
	if !ok {
		return nil
	}
	switch provider {
	case connector.Google:
		cfg.GoogleCalendar.Connected = false
		cfg.GoogleCalendar.SyncEnabled = false
	case connector.Apple:
		cfg.AppleCalendar.Connected = false
		cfg.AppleCalendar.SyncEnabled = false
	}
	r.configs[userId] = cfg
	return nil
}

func (r *RepositoryStub) GetCredentials(ctx context.Context, userId string, provider connector.Provider) ([]byte, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sealed, ok := r.credentials[credentialKey{userId, provider}]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return sealed, nil
}

func (r *RepositoryStub) MarkSynced(ctx context.Context, userId string, provider connector.Provider, at time.Time) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := r.configs[userId]
	switch provider {
	case connector.Google:
		cfg.GoogleCalendar.LastSync = &at
	case connector.Apple:
		cfg.AppleCalendar.LastSync = &at
	}
	r.configs[userId] = cfg
	return nil
}

func (r *RepositoryStub) ListByFrequency(ctx context.Context, frequency SyncFrequency) ([]CalendarSyncConfig, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]CalendarSyncConfig, 0)
	for _, cfg := range r.configs {
		if cfg.SyncFrequency == frequency && (cfg.GoogleCalendar.Connected || cfg.AppleCalendar.Connected) {
			result = append(result, cfg)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserId < result[j].UserId })
	return result, nil
}

// SealedCredentials exposes raw stored bytes for assertions.
func (r *RepositoryStub) SealedCredentials(userId string, provider connector.Provider) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sealed, ok := r.credentials[credentialKey{userId, provider}]
	return sealed, ok
}

var _ Repository = (*RepositoryStub)(nil)
