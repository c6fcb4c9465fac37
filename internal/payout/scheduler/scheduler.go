// Package scheduler turns a confirmed payment into per-vendor payout rows.
// It consumes payment confirmation events from Kafka; the unique
// (order, vendor) constraint downstream makes redelivery harmless.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/marketplace/internal/money"
	orderdomain "github.com/vendora/marketplace/internal/order/domain"
	"github.com/vendora/marketplace/internal/payout/domain"
	"github.com/vendora/marketplace/internal/payout/repository"
	"github.com/vendora/marketplace/internal/vendor"
)

// OrderGetter is the slice of the order store the scheduler needs.
type OrderGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*orderdomain.Order, error)
}

type Scheduler struct {
	orders          OrderGetter
	vendors         vendor.Directory
	payouts         repository.PayoutRepository
	settlementDelay time.Duration
}

func NewScheduler(orders OrderGetter, vendors vendor.Directory, payouts repository.PayoutRepository, settlementDelay time.Duration) *Scheduler {
	return &Scheduler{
		orders:          orders,
		vendors:         vendors,
		payouts:         payouts,
		settlementDelay: settlementDelay,
	}
}

// ScheduleForOrder computes one payout per vendor in the order: gross is the
// vendor's item lines, commission comes off at the vendor's current rate, and
// the vendor's bank details are snapshotted into the payout row.
func (s *Scheduler) ScheduleForOrder(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	grossByVendor := make(map[int64]decimal.Decimal)
	for _, item := range order.Items {
		line := money.LineTotal(item.UnitPrice, item.Quantity)
		grossByVendor[item.VendorID] = grossByVendor[item.VendorID].Add(line)
	}

	scheduledFor := time.Now().Add(s.settlementDelay)
	payouts := make([]*domain.VendorPayout, 0, len(grossByVendor))
	for _, vendorID := range order.VendorIDs() {
		v, err := s.vendors.GetVendor(ctx, vendorID)
		if err != nil {
			return fmt.Errorf("load vendor %d for order %s: %w", vendorID, orderID, err)
		}

		gross := grossByVendor[vendorID]
		commission, net := money.SplitCommission(gross, v.CommissionRate)
		payouts = append(payouts, &domain.VendorPayout{
			OrderID:      order.ID,
			VendorID:     vendorID,
			GrossAmount:  gross,
			Commission:   commission,
			NetAmount:    net,
			Currency:     order.Currency,
			Status:       domain.PayoutStatusPending,
			Bank:         v.Bank,
			ScheduledFor: scheduledFor,
		})
	}

	if err := s.payouts.CreatePayouts(ctx, payouts); err != nil {
		return fmt.Errorf("create payouts for order %s: %w", orderID, err)
	}
	return nil
}
