package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Offer statuses.
const (
	OfferActive   = "active"
	OfferInactive = "inactive"
)

// Offer is a sellable allocation of slots within a group subscription, stored
// in the `group_subs` table.  SlotsAvailable stays within [0, SlotsTotal]; it
// is only decremented when a payment completes.
//
// Fields:
//
//	ID             – primary key (UUID).
//	GroupID        – owning group; the group owner is the seller.
//	PlatformID     – subscription platform identifier.
//	Status         – active or inactive.
//	SlotsTotal     – total number of slots, > 0.
//	SlotsAvailable – slots not yet sold.
//	PricePerSlot   – price of one slot, > 0.
//	Currency       – ISO currency code.
type Offer struct {
	ID             string
	GroupID        string
	PlatformID     string
	Status         string
	SlotsTotal     int
	SlotsAvailable int
	PricePerSlot   decimal.Decimal
	Currency       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OfferFilter narrows the public offer listing.
type OfferFilter struct {
	PlatformID    string
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	OnlyAvailable bool
	OrderBy       string // created_at | price_per_slot | slots_available
	Ascending     bool
	Limit         int
	Offset        int
}
