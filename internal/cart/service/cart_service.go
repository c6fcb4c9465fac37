package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vendora/marketplace/internal/cart/cache"
	"github.com/vendora/marketplace/internal/cart/domain"
	"github.com/vendora/marketplace/internal/cart/repository"
	"github.com/vendora/marketplace/internal/vendor"
)

// Config carries the defaults the reconciler used to pick up implicitly.
type Config struct {
	// DefaultDeliveryDays is the estimated delivery window applied to new carts.
	DefaultDeliveryDaysFrom int
	DefaultDeliveryDaysTo   int
}

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	vendors vendor.Directory
	cfg     Config
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, vendors vendor.Directory, cfg Config) *CartService {
	return &CartService{
		repo:    repo,
		cache:   cache,
		vendors: vendors,
		cfg:     cfg,
	}
}

func (s *CartService) defaultDelivery() domain.DeliveryWindow {
	now := time.Now()
	return domain.DeliveryWindow{
		From: now.AddDate(0, 0, s.cfg.DefaultDeliveryDaysFrom),
		To:   now.AddDate(0, 0, s.cfg.DefaultDeliveryDaysTo),
	}
}

// GetCart reads through the cache; misses fall back to the repository and warm
// the cache in the background.
func (s *CartService) GetCart(ctx context.Context, identifier string, isUser bool) (*domain.Cart, error) {
	if identifier == "" {
		return nil, domain.ErrInvalidIdentifier
	}

	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(sfKey(identifier, isUser), func() (interface{}, error) {
		cached, err := s.cache.Get(ctx, identifier, isUser)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v", err) // log cache error but continue
		}

		cart, errGet := s.repo.GetOrCreate(ctx, identifier, isUser, s.defaultDelivery())
		if errGet != nil {
			return nil, errGet
		}
		s.enrichVendorNames(ctx, cart)

		go func() {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if errSet := s.cache.Set(setCtx, cart); errSet != nil {
				log.Printf("cache set error: %v", errSet)
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// Reconcile merges the client's desired item set into the persisted cart:
// upsert every desired item by its composite key, then delete every persisted
// item whose key is not in the desired set. Each upsert is one conflict
// resolving write, so concurrent readers never observe an emptied cart.
//
// Concurrent Reconcile calls are not serialized against each other: items
// resolve last-writer-wins per key, and the diff-delete reflects the desired
// set of whichever call ran it. That race is accepted in favor of
// availability.
func (s *CartService) Reconcile(ctx context.Context, identifier string, isUser bool, desired []domain.CartItem) (*domain.Cart, error) {
	if identifier == "" {
		return nil, domain.ErrInvalidIdentifier
	}

	cart, err := s.repo.GetOrCreate(ctx, identifier, isUser, s.defaultDelivery())
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	keys := make([]domain.ItemKey, 0, len(desired))
	for _, item := range desired {
		if item.Quantity < 1 {
			// decrementing to zero is a removal, not a zero-quantity row
			continue
		}
		if errUpsert := s.repo.UpsertItem(ctx, cart.ID, item); errUpsert != nil {
			return nil, fmt.Errorf("upsert item %+v: %w", item.Key(), errUpsert)
		}
		keys = append(keys, item.Key())
	}

	if err := s.repo.DeleteItemsNotIn(ctx, cart.ID, keys); err != nil {
		return nil, fmt.Errorf("diff-delete items: %w", err)
	}

	return s.refresh(ctx, identifier, isUser)
}

// AddItem is the incremental form of Reconcile for a single item.
func (s *CartService) AddItem(ctx context.Context, identifier string, isUser bool, item domain.CartItem) (*domain.Cart, error) {
	if identifier == "" {
		return nil, domain.ErrInvalidIdentifier
	}

	cart, err := s.repo.GetOrCreate(ctx, identifier, isUser, s.defaultDelivery())
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	if err := s.repo.UpsertItem(ctx, cart.ID, item); err != nil {
		return nil, fmt.Errorf("upsert item: %w", err)
	}

	return s.refresh(ctx, identifier, isUser)
}

func (s *CartService) RemoveItem(ctx context.Context, identifier string, isUser bool, key domain.ItemKey) (*domain.Cart, error) {
	cart, err := s.mustGet(ctx, identifier, isUser)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RemoveItem(ctx, cart.ID, key); err != nil {
		return nil, err
	}

	return s.refresh(ctx, identifier, isUser)
}

// SetQuantity updates one item's quantity; zero or less removes the item.
func (s *CartService) SetQuantity(ctx context.Context, identifier string, isUser bool, key domain.ItemKey, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return s.RemoveItem(ctx, identifier, isUser, key)
	}

	cart, err := s.mustGet(ctx, identifier, isUser)
	if err != nil {
		return nil, err
	}

	var existing *domain.CartItem
	for i := range cart.Items {
		if cart.Items[i].Key() == key {
			existing = &cart.Items[i]
			break
		}
	}
	if existing == nil {
		return nil, repository.ErrItemNotFound
	}

	updated := *existing
	updated.Quantity = quantity
	if err := s.repo.UpsertItem(ctx, cart.ID, updated); err != nil {
		return nil, fmt.Errorf("upsert item: %w", err)
	}

	return s.refresh(ctx, identifier, isUser)
}

func (s *CartService) mustGet(ctx context.Context, identifier string, isUser bool) (*domain.Cart, error) {
	if identifier == "" {
		return nil, domain.ErrInvalidIdentifier
	}
	return s.repo.Get(ctx, identifier, isUser)
}

// refresh reloads the cart, recomputes and persists totals, invalidates the
// cache and returns the fresh state. Runs after every mutation so totals are
// never stale.
func (s *CartService) refresh(ctx context.Context, identifier string, isUser bool) (*domain.Cart, error) {
	cart, err := s.repo.Get(ctx, identifier, isUser)
	if err != nil {
		return nil, fmt.Errorf("reload cart: %w", err)
	}

	cart.RecomputeTotals()
	if err := s.repo.UpdateTotals(ctx, cart); err != nil {
		return nil, fmt.Errorf("persist totals: %w", err)
	}
	s.enrichVendorNames(ctx, cart)

	s.invalidateCache(identifier, isUser)
	return cart, nil
}

// enrichVendorNames decorates items with vendor display names. Enrichment is
// best effort with an explicit fallback: on lookup failure the name stays nil
// and the failure is logged, never silently swallowed into an empty string.
func (s *CartService) enrichVendorNames(ctx context.Context, cart *domain.Cart) {
	names := make(map[int64]*string)
	for i := range cart.Items {
		vendorID := cart.Items[i].VendorID
		if name, seen := names[vendorID]; seen {
			cart.Items[i].VendorName = name
			continue
		}
		v, err := s.vendors.GetVendor(ctx, vendorID)
		if err != nil {
			log.Printf("vendor enrichment unavailable for vendor %d: %v", vendorID, err)
			names[vendorID] = nil
			continue
		}
		names[vendorID] = &v.Name
		cart.Items[i].VendorName = &v.Name
	}
}

func (s *CartService) invalidateCache(identifier string, isUser bool) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, identifier, isUser); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
}

func sfKey(identifier string, isUser bool) string {
	if isUser {
		return "user:" + identifier
	}
	return "guest:" + identifier
}
