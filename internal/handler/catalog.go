package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/groupshare/internal/model"
	"github.com/iliyamo/groupshare/internal/repository"
)

type OfferStore interface {
	Create(ctx context.Context, o *model.Offer) error
	GetByID(ctx context.Context, id string) (model.Offer, error)
	List(ctx context.Context, f model.OfferFilter) ([]model.Offer, error)
	ListByGroup(ctx context.Context, groupID string) ([]model.Offer, error)
	Update(ctx context.Context, o *model.Offer) error
	UpsertInstructions(ctx context.Context, offerID, text string) error
}

type GroupStore interface {
	Create(ctx context.Context, g *model.Group) error
	GetByID(ctx context.Context, id string) (model.Group, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Group, error)
	Update(ctx context.Context, g *model.Group) error
	Delete(ctx context.Context, id string) error
}

// TxRunner runs fn in one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CachePurger drops cached catalogue responses after a write.
type CachePurger interface {
	Purge(ctx context.Context) error
}

const defaultCurrency = "PLN"

// CatalogHandler serves groups and their subscription offers.  Browsing is
// public; writes are restricted to the owner of the group.
type CatalogHandler struct {
	offers OfferStore
	groups GroupStore
	tx     TxRunner
	cache  CachePurger
	log    *zap.Logger
}

func NewCatalogHandler(offers OfferStore, groups GroupStore, tx TxRunner, cache CachePurger, log *zap.Logger) *CatalogHandler {
	if offers == nil || groups == nil || tx == nil {
		panic("nil dependency passed to NewCatalogHandler")
	}
	return &CatalogHandler{offers: offers, groups: groups, tx: tx, cache: cache, log: log}
}

var orderColumns = map[string]string{
	"pricePerSlot":    "price_per_slot",
	"price_per_slot":  "price_per_slot",
	"slotsAvailable":  "slots_available",
	"slots_available": "slots_available",
	"createdAt":       "created_at",
	"created_at":      "created_at",
}

// ListOffers handles GET /v1/offers.
func (h *CatalogHandler) ListOffers(c echo.Context) error {
	f := model.OfferFilter{
		PlatformID: c.QueryParam("platformId"),
		OrderBy:    orderColumns[c.QueryParam("orderBy")],
		Ascending:  c.QueryParam("ascending") == "true",
	}
	for name, dst := range map[string]**decimal.Decimal{"minPrice": &f.MinPrice, "maxPrice": &f.MaxPrice} {
		if s := c.QueryParam(name); s != "" {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid " + name})
			}
			*dst = &d
		}
	}
	if s := c.QueryParam("availableSlots"); s != "" {
		f.OnlyAvailable = s == "true"
	}
	var err error
	if f.Limit, err = intParam(c, "limit", 10); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
	}
	if f.Offset, err = intParam(c, "offset", 0); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid offset"})
	}

	offers, err := h.offers.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := make([]offerResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, toOffer(o))
	}
	return c.JSON(http.StatusOK, out)
}

func intParam(c echo.Context, name string, def int) (int, error) {
	s := c.QueryParam(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

// GetOffer handles GET /v1/offers/:id.
func (h *CatalogHandler) GetOffer(c echo.Context) error {
	o, err := h.offers.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toOffer(o))
}

type createOfferRequest struct {
	GroupID            string          `json:"groupId"`
	PlatformID         string          `json:"platformId"`
	SlotsTotal         int             `json:"slotsTotal"`
	PricePerSlot       decimal.Decimal `json:"pricePerSlot"`
	Currency           string          `json:"currency"`
	AccessInstructions string          `json:"accessInstructions"`
}

// CreateOffer handles POST /v1/offers.  The caller must own the group.
func (h *CatalogHandler) CreateOffer(c echo.Context) error {
	owner, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	var req createOfferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	switch {
	case req.GroupID == "" || req.PlatformID == "":
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "groupId and platformId are required"})
	case req.SlotsTotal <= 0:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "slotsTotal must be a positive integer"})
	case !req.PricePerSlot.IsPositive():
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "pricePerSlot must be greater than 0"})
	case strings.TrimSpace(req.AccessInstructions) == "":
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "accessInstructions are required"})
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	ctx := c.Request().Context()
	if err := h.requireGroupOwner(ctx, req.GroupID, owner); err != nil {
		return writeError(c, h.log, err)
	}
	o := model.Offer{
		ID:           uuid.NewString(),
		GroupID:      req.GroupID,
		PlatformID:   req.PlatformID,
		SlotsTotal:   req.SlotsTotal,
		PricePerSlot: req.PricePerSlot,
		Currency:     currency,
	}
	err := h.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := h.offers.Create(ctx, &o); err != nil {
			return err
		}
		return h.offers.UpsertInstructions(ctx, o.ID, req.AccessInstructions)
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.purge(ctx)
	return c.JSON(http.StatusCreated, toOffer(o))
}

type updateOfferRequest struct {
	Status             *string          `json:"status"`
	PricePerSlot       *decimal.Decimal `json:"pricePerSlot"`
	Currency           *string          `json:"currency"`
	AccessInstructions *string          `json:"accessInstructions"`
}

// UpdateOffer handles PATCH /v1/offers/:id.
func (h *CatalogHandler) UpdateOffer(c echo.Context) error {
	owner, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	var req updateOfferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx := c.Request().Context()
	o, err := h.offers.GetByID(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	if err := h.requireGroupOwner(ctx, o.GroupID, owner); err != nil {
		return writeError(c, h.log, err)
	}

	if req.Status != nil {
		if *req.Status != model.OfferActive && *req.Status != model.OfferInactive {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be active or inactive"})
		}
		o.Status = *req.Status
	}
	if req.PricePerSlot != nil {
		if !req.PricePerSlot.IsPositive() {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "pricePerSlot must be greater than 0"})
		}
		o.PricePerSlot = *req.PricePerSlot
	}
	if req.Currency != nil && strings.TrimSpace(*req.Currency) != "" {
		o.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	if req.AccessInstructions != nil && strings.TrimSpace(*req.AccessInstructions) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "accessInstructions cannot be empty"})
	}

	err = h.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := h.offers.Update(ctx, &o); err != nil {
			return err
		}
		if req.AccessInstructions != nil {
			return h.offers.UpsertInstructions(ctx, o.ID, *req.AccessInstructions)
		}
		return nil
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.purge(ctx)
	return c.JSON(http.StatusOK, toOffer(o))
}

// DeleteOffer handles DELETE /v1/offers/:id.  The offer is deactivated, not
// removed, so purchases and transactions keep their reference.
func (h *CatalogHandler) DeleteOffer(c echo.Context) error {
	owner, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	ctx := c.Request().Context()
	o, err := h.offers.GetByID(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	if err := h.requireGroupOwner(ctx, o.GroupID, owner); err != nil {
		return writeError(c, h.log, err)
	}
	o.Status = model.OfferInactive
	if err := h.offers.Update(ctx, &o); err != nil {
		return writeError(c, h.log, err)
	}
	h.purge(ctx)
	h.log.Info("offer deactivated", zap.String("offer_id", o.ID), zap.String("owner_id", owner))
	return c.JSON(http.StatusOK, echo.Map{"message": "offer deactivated"})
}

func (h *CatalogHandler) requireGroupOwner(ctx context.Context, groupID, profileID string) error {
	g, err := h.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.OwnerID != profileID {
		return repository.ErrForbidden
	}
	return nil
}

func (h *CatalogHandler) purge(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Purge(ctx); err != nil {
		h.log.Warn("purge catalogue cache", zap.Error(err))
	}
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateGroup handles POST /v1/groups.
func (h *CatalogHandler) CreateGroup(c echo.Context) error {
	owner, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	var req createGroupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	g := model.Group{ID: uuid.NewString(), OwnerID: owner, Name: req.Name, Description: req.Description}
	if err := h.groups.Create(c.Request().Context(), &g); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "group name already used"})
		}
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toGroup(g))
}

// ListGroups handles GET /v1/groups: the caller's own groups.
func (h *CatalogHandler) ListGroups(c echo.Context) error {
	owner, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	groups, err := h.groups.ListByOwner(c.Request().Context(), owner)
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroup(g))
	}
	return c.JSON(http.StatusOK, out)
}

// GetGroup handles GET /v1/groups/:id: the group with all of its offers.
func (h *CatalogHandler) GetGroup(c echo.Context) error {
	caller, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	ctx := c.Request().Context()
	g, err := h.groups.GetByID(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	offers, err := h.offers.ListByGroup(ctx, g.ID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := groupDetailResponse{groupResponse: toGroup(g), Offers: make([]offerResponse, 0, len(offers)), IsOwner: g.OwnerID == caller}
	for _, o := range offers {
		out.Offers = append(out.Offers, toOffer(o))
	}
	return c.JSON(http.StatusOK, out)
}

type updateGroupRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// UpdateGroup handles PATCH /v1/groups/:id.
func (h *CatalogHandler) UpdateGroup(c echo.Context) error {
	owner, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	var req updateGroupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name cannot be empty"})
	}
	ctx := c.Request().Context()
	g, err := h.groups.GetByID(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	if g.OwnerID != owner {
		return writeError(c, h.log, repository.ErrForbidden)
	}
	if req.Name != nil {
		g.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		g.Description = *req.Description
	}
	if err := h.groups.Update(ctx, &g); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "group name already used"})
		}
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toGroup(g))
}

// DeleteGroup handles DELETE /v1/groups/:id.  A group that still has
// offers, active or not, cannot be deleted.
func (h *CatalogHandler) DeleteGroup(c echo.Context) error {
	owner, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := h.requireGroupOwner(ctx, id, owner); err != nil {
		return writeError(c, h.log, err)
	}
	err := h.tx.WithTx(ctx, func(ctx context.Context) error {
		offers, err := h.offers.ListByGroup(ctx, id)
		if err != nil {
			return err
		}
		if len(offers) > 0 {
			return repository.ErrConflict
		}
		return h.groups.Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "group still has offers"})
		}
		return writeError(c, h.log, err)
	}
	h.log.Info("group deleted", zap.String("group_id", id), zap.String("owner_id", owner))
	return c.JSON(http.StatusOK, echo.Map{"message": "group deleted"})
}
