package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/groupshare/internal/model"
)

type offerResponse struct {
	ID             string          `json:"id"`
	GroupID        string          `json:"groupId"`
	PlatformID     string          `json:"platformId"`
	Status         string          `json:"status"`
	SlotsTotal     int             `json:"slotsTotal"`
	SlotsAvailable int             `json:"slotsAvailable"`
	PricePerSlot   decimal.Decimal `json:"pricePerSlot"`
	Currency       string          `json:"currency"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func toOffer(o model.Offer) offerResponse {
	return offerResponse{
		ID:             o.ID,
		GroupID:        o.GroupID,
		PlatformID:     o.PlatformID,
		Status:         o.Status,
		SlotsTotal:     o.SlotsTotal,
		SlotsAvailable: o.SlotsAvailable,
		PricePerSlot:   o.PricePerSlot,
		Currency:       o.Currency,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

type purchaseResponse struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	OfferID           string     `json:"groupSubId"`
	Status            string     `json:"status"`
	AccessProvided    bool       `json:"accessProvided"`
	AccessConfirmed   bool       `json:"accessConfirmed"`
	AccessConfirmedAt *time.Time `json:"accessConfirmedAt,omitempty"`
	HoldExpiresAt     *time.Time `json:"holdExpiresAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func toPurchase(p model.PurchaseRecord) purchaseResponse {
	return purchaseResponse{
		ID:                p.ID,
		UserID:            p.UserID,
		OfferID:           p.OfferID,
		Status:            p.Status,
		AccessProvided:    p.AccessProvided,
		AccessConfirmed:   p.AccessConfirmed,
		AccessConfirmedAt: p.AccessConfirmedAt,
		HoldExpiresAt:     p.HoldExpiresAt,
		CreatedAt:         p.CreatedAt,
	}
}

type groupResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type groupDetailResponse struct {
	groupResponse
	Offers  []offerResponse `json:"offers"`
	IsOwner bool            `json:"isOwner"`
}

func toGroup(g model.Group) groupResponse {
	return groupResponse{ID: g.ID, OwnerID: g.OwnerID, Name: g.Name, Description: g.Description, CreatedAt: g.CreatedAt}
}

type notificationResponse struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Title             string    `json:"title"`
	Content           string    `json:"content"`
	RelatedEntityType string    `json:"relatedEntityType"`
	RelatedEntityID   string    `json:"relatedEntityId"`
	Read              bool      `json:"read"`
	CreatedAt         time.Time `json:"createdAt"`
}

func toNotification(n model.Notification) notificationResponse {
	return notificationResponse{
		ID:                n.ID,
		Type:              n.Type,
		Title:             n.Title,
		Content:           n.Content,
		RelatedEntityType: n.RelatedEntityType,
		RelatedEntityID:   n.RelatedEntityID,
		Read:              n.Read,
		CreatedAt:         n.CreatedAt,
	}
}
