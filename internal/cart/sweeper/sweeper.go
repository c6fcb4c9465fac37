// Package sweeper removes abandoned guest carts on a schedule. Registered-user
// carts are never swept.
package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/vendora/marketplace/internal/cart/repository"
)

type Sweeper struct {
	repo     repository.CartRepository
	interval time.Duration
	maxIdle  time.Duration
}

func NewSweeper(repo repository.CartRepository, interval, maxIdle time.Duration) *Sweeper {
	return &Sweeper{repo: repo, interval: interval, maxIdle: maxIdle}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxIdle)
	swept, err := s.repo.DeleteGuestCartsIdleSince(ctx, cutoff)
	if err != nil {
		log.Printf("guest cart sweep failed: %v", err)
		return
	}
	if swept > 0 {
		log.Printf("swept %d idle guest carts", swept)
	}
}
