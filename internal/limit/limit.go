// Package limit enforces per-buyer purchase limits across announcements.
//
// A buyer sweeping a single announcement, or hoovering every open offer of
// one item across sellers, concentrates the market. This package caps both:
// the quantity one buyer may settle against a single announcement, and the
// aggregate quantity across all announcements selling the same item.
package limit

import (
	"errors"

	"github.com/yLucasx3/gh-economy/internal/model"
)

var (
	// ErrAnnouncementLimitExceeded is returned when a trade would push the
	// buyer's settled quantity against one announcement beyond the per-
	// announcement maximum.
	ErrAnnouncementLimitExceeded = errors.New("limit: per-announcement purchase limit exceeded")

	// ErrItemLimitExceeded is returned when a trade would push the buyer's
	// aggregate settled quantity across all announcements of the same item
	// beyond the per-item maximum.
	ErrItemLimitExceeded = errors.New("limit: per-item purchase limit exceeded")
)

// PurchaseLimiter enforces purchase limits per announcement and per item.
// Zero or negative limits disable the corresponding check.
type PurchaseLimiter struct {
	// MaxPerAnnouncement is the maximum quantity one buyer may accumulate
	// against a single announcement.
	MaxPerAnnouncement int64

	// MaxPerItem is the maximum aggregate quantity one buyer may accumulate
	// across all announcements selling the same item.
	MaxPerItem int64
}

// NewPurchaseLimiter creates a limiter with the given per-announcement and
// per-item maximums.
func NewPurchaseLimiter(maxPerAnnouncement, maxPerItem int64) *PurchaseLimiter {
	return &PurchaseLimiter{
		MaxPerAnnouncement: maxPerAnnouncement,
		MaxPerItem:         maxPerItem,
	}
}

// CheckLimit validates whether buying quantityDelta more items against the
// target announcement respects both limits, given the buyer's existing
// settled purchases. Returns nil if the trade is within limits.
func (l *PurchaseLimiter) CheckLimit(
	announcementID, itemName string,
	quantityDelta int64,
	existing []model.PurchaseTotal,
) error {
	var inAnnouncement, inItem int64
	for _, p := range existing {
		if p.AnnouncementID == announcementID {
			inAnnouncement += p.Quantity
		}
		if p.ItemName == itemName {
			inItem += p.Quantity
		}
	}

	if l.MaxPerAnnouncement > 0 && inAnnouncement+quantityDelta > l.MaxPerAnnouncement {
		return ErrAnnouncementLimitExceeded
	}
	if l.MaxPerItem > 0 && inItem+quantityDelta > l.MaxPerItem {
		return ErrItemLimitExceeded
	}
	return nil
}
