// Package sweeper runs the periodic food expiry pass.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oishii-app/oishii/internal/model"
	"github.com/oishii-app/oishii/internal/notify"
	"github.com/oishii-app/oishii/internal/store"
)

// Sweeper marks expired listings unavailable and warns owners about listings
// expiring soon. One pass runs per tick; Start launches the loop and Stop
// waits for it to drain.
type Sweeper struct {
	store    store.Store
	broker   *notify.Broker
	logger   *slog.Logger
	interval time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a sweeper. The broker may be nil when real-time delivery is
// not wanted, for example in tests.
func New(s store.Store, b *notify.Broker, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    s,
		broker:   b,
		logger:   logger,
		interval: interval,
	}
}

// Start launches the background loop. A pass runs immediately, then on every
// interval tick until Stop is called.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runPass(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runPass(ctx)
			}
		}
	}()
}

// Stop cancels the loop and blocks until the in-flight pass completes.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunOnce executes a single sweep pass synchronously.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	expired, err := s.store.ExpireFoods(ctx)
	if err != nil {
		return fmt.Errorf("expire foods: %w", err)
	}
	if len(expired) > 0 {
		s.logger.Info("expired food listings", "count", len(expired))
	}

	expiring, err := s.store.ListFoodsExpiringSoon(ctx)
	if err != nil {
		return fmt.Errorf("list expiring foods: %w", err)
	}

	for _, f := range expiring {
		if err := s.warnOwner(ctx, f); err != nil {
			s.logger.Error("failed to notify owner of expiring food", "food_id", f.ID, "error", err)
		}
	}

	return nil
}

func (s *Sweeper) runPass(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("sweep pass failed", "error", err)
	}
}

// warnOwner creates a food_expiring notification for the listing owner,
// at most once per listing.
func (s *Sweeper) warnOwner(ctx context.Context, f *model.Food) error {
	already, err := s.store.HasNotification(ctx, f.UserID, model.NotifyFoodExpiring, f.ID)
	if err != nil {
		return fmt.Errorf("check existing notification: %w", err)
	}
	if already {
		return nil
	}

	n := &model.Notification{
		ID:        model.NewID(),
		UserID:    f.UserID,
		Type:      model.NotifyFoodExpiring,
		Title:     "Food expiring soon",
		Message:   fmt.Sprintf("Your listing %q expires within 24 hours.", f.Title),
		RelatedID: f.ID,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	if s.broker != nil {
		s.broker.Publish(*n)
	}
	return nil
}
