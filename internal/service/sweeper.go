package service

import (
	"context"
	"log"
	"time"

	"github.com/shuleplus/backend/internal/repository"
)

// Sweeper periodically flips overdue subscriptions to expired in the
// database, so freshly bootstrapped clients see the same verdict the expiry
// evaluation produces in memory.
type Sweeper struct {
	repo     *repository.SubscriptionRepository
	interval time.Duration
}

// NewSweeper creates a sweeper running at the given interval.
func NewSweeper(repo *repository.SubscriptionRepository, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{repo: repo, interval: interval}
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		s.sweep(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.repo.ExpireOverdue(ctx, time.Now())
	if err != nil {
		log.Printf("[Sweeper] Failed to expire subscriptions: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Sweeper] Marked %d subscriptions expired", n)
	}
}
