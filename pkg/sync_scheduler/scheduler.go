package sync_scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/campusflow/campusflow/internal/config"
	"github.com/campusflow/campusflow/internal/event_bus"
	"github.com/campusflow/campusflow/pkg/calendar_sync"
	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/campusflow/campusflow/pkg/sync_config"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

var providers = []connector.Provider{connector.Google, connector.Apple}

type ConfigSource interface {
	GetSyncConfig(ctx context.Context, userId string) (sync_config.CalendarSyncConfig, error)
	ConfigsWithFrequency(ctx context.Context, frequency sync_config.SyncFrequency) ([]sync_config.CalendarSyncConfig, error)
}

type Syncer interface {
	PushEvents(ctx context.Context, userId string, provider connector.Provider) (calendar_sync.PushResult, error)
	PullEvents(ctx context.Context, userId string, provider connector.Provider) (calendar_sync.PullResult, error)
}

// Scheduler runs periodic syncs for users on the hourly and daily frequencies and pushes
// realtime users whenever one of their manual events changes.
type Scheduler struct {
	cfg     config.Scheduler
	timeout time.Duration
	configs ConfigSource
	syncer  Syncer
	bus     *event_bus.EventBus
	cron    *cron.Cron

	wg          sync.WaitGroup
	unsubscribe func()
}

func New(cfg config.Application, configs ConfigSource, syncer Syncer, bus *event_bus.EventBus) *Scheduler {
	return &Scheduler{
		cfg:     cfg.Scheduler,
		timeout: cfg.Sync.OperationTimeout,
		configs: configs,
		syncer:  syncer,
		bus:     bus,
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		log.Info("sync scheduler is disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.Hourly, func() { s.RunFrequency(context.Background(), sync_config.Hourly) }); err != nil {
		return fmt.Errorf("invalid hourly schedule %q: %w", s.cfg.Hourly, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Daily, func() { s.RunFrequency(context.Background(), sync_config.Daily) }); err != nil {
		return fmt.Errorf("invalid daily schedule %q: %w", s.cfg.Daily, err)
	}
	if s.cfg.Realtime && s.bus != nil {
		s.unsubscribe = event_bus.SubscribeTyped(s.bus, event_bus.CalendarEventChangedType, s.onEventChanged)
	}
	s.cron.Start()
	log.Infof("sync scheduler started (hourly %q, daily %q, realtime %t)", s.cfg.Hourly, s.cfg.Daily, s.cfg.Realtime)
	return nil
}

// Stop halts the cron jobs and waits for running syncs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	cronDone := s.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		<-cronDone
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("sync scheduler stopped")
	case <-ctx.Done():
		log.Warn("sync scheduler stopped before running syncs finished")
	}
}

// RunFrequency pushes then pulls every enabled provider of every user on frequency.
func (s *Scheduler) RunFrequency(ctx context.Context, frequency sync_config.SyncFrequency) {
	configs, err := s.configs.ConfigsWithFrequency(ctx, frequency)
	if err != nil {
		log.Errorf("failed to list %s sync configs: %v", frequency, err)
		return
	}
	log.Debugf("running %s sync for %d users", frequency, len(configs))
	for _, cfg := range configs {
		for _, provider := range providers {
			if !cfg.SyncEnabled(provider) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.syncProvider(ctx, cfg.UserId, provider)
		}
	}
}

func (s *Scheduler) syncProvider(ctx context.Context, userId string, provider connector.Provider) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pushed, err := s.syncer.PushEvents(ctx, userId, provider)
	if err != nil {
		log.Warnf("scheduled push to %s failed for user %s: %v", provider, userId, err)
	} else {
		log.Debugf("scheduled push to %s for user %s: %d synced, %d failed", provider, userId, pushed.Synced, pushed.Failed)
	}

	pulled, err := s.syncer.PullEvents(ctx, userId, provider)
	if err != nil {
		log.Warnf("scheduled pull from %s failed for user %s: %v", provider, userId, err)
		return
	}
	log.Debugf("scheduled pull from %s for user %s: %d created, %d updated", provider, userId, pulled.Created, pulled.Updated)
}

// onEventChanged runs inside Publish, so the push happens in the background.
func (s *Scheduler) onEventChanged(e event_bus.EventT[event_bus.CalendarEventChanged]) error {
	userId := e.Data.UserId
	ctx := context.WithoutCancel(e.Context())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pushRealtime(ctx, userId)
	}()
	return nil
}

func (s *Scheduler) pushRealtime(ctx context.Context, userId string) {
	cfg, err := s.configs.GetSyncConfig(ctx, userId)
	if err != nil {
		log.Errorf("failed to load sync config of user %s: %v", userId, err)
		return
	}
	if cfg.SyncFrequency != sync_config.Realtime {
		return
	}
	for _, provider := range providers {
		if !cfg.SyncEnabled(provider) {
			continue
		}
		pushCtx, cancel := s.withTimeout(ctx)
		if _, err := s.syncer.PushEvents(pushCtx, userId, provider); err != nil {
			log.Warnf("realtime push to %s failed for user %s: %v", provider, userId, err)
		}
		cancel()
	}
}

func (s *Scheduler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
