package cache

import (
	"context"
	"errors"

	"github.com/vendora/marketplace/internal/cart/domain"
)

type CartCache interface {
	Get(ctx context.Context, identifier string, isUser bool) (*domain.Cart, error)
	Set(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, identifier string, isUser bool) error
}

var ErrCacheMiss = errors.New("cache miss")
