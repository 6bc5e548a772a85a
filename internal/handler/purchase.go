package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/groupshare/internal/model"
	"github.com/iliyamo/groupshare/internal/repository"
	"github.com/iliyamo/groupshare/internal/service"
)

// Workflow is the purchase state machine as seen by HTTP.
type Workflow interface {
	Initiate(ctx context.Context, buyerID, offerID string) (model.PurchaseRecord, error)
	ProcessPayment(ctx context.Context, callerID, purchaseID, method string) (service.PaymentOutcome, error)
	WebhookComplete(ctx context.Context, transactionID, status, paymentID string) error
	ConfirmAccess(ctx context.Context, callerID, purchaseID string, isWorking bool) (service.ConfirmOutcome, error)
	RedeemAccess(ctx context.Context, purchaseID, rawToken string) (service.Access, error)
}

// PurchaseLister lists a buyer's purchases.
type PurchaseLister interface {
	ListByUser(ctx context.Context, userID string) ([]model.PurchaseRecord, error)
}

// signatureHeader carries the hex HMAC-SHA256 of the webhook body.
const signatureHeader = "X-Payment-Signature"

// maxWebhookBody bounds the webhook payload read into memory.
const maxWebhookBody = 64 << 10

type PurchaseHandler struct {
	wf            Workflow
	purchases     PurchaseLister
	webhookSecret []byte
	log           *zap.Logger
}

// NewPurchaseHandler wires the purchase endpoints.  An empty webhookSecret
// disables signature checks on the payment webhook.
func NewPurchaseHandler(wf Workflow, purchases PurchaseLister, webhookSecret string, log *zap.Logger) *PurchaseHandler {
	if wf == nil || purchases == nil {
		panic("nil dependency passed to NewPurchaseHandler")
	}
	h := &PurchaseHandler{wf: wf, purchases: purchases, log: log}
	if webhookSecret != "" {
		h.webhookSecret = []byte(webhookSecret)
	}
	return h
}

// Purchase handles POST /v1/offers/:id/purchase.
func (h *PurchaseHandler) Purchase(c echo.Context) error {
	buyer, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	rec, err := h.wf.Initiate(c.Request().Context(), buyer, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "offer not found"})
		}
		if errors.Is(err, repository.ErrUnavailable) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "no available slots"})
		}
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"purchase": toPurchase(rec)})
}

// ListMine handles GET /v1/purchases.
func (h *PurchaseHandler) ListMine(c echo.Context) error {
	buyer, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	recs, err := h.purchases.ListByUser(c.Request().Context(), buyer)
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := make([]purchaseResponse, 0, len(recs))
	for _, p := range recs {
		out = append(out, toPurchase(p))
	}
	return c.JSON(http.StatusOK, echo.Map{"purchases": out})
}

type paymentRequest struct {
	PurchaseID    string `json:"purchaseId"`
	PaymentMethod string `json:"paymentMethod"`
}

// Pay handles POST /v1/payments.
func (h *PurchaseHandler) Pay(c echo.Context) error {
	buyer, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.PurchaseID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "purchaseId is required"})
	}
	out, err := h.wf.ProcessPayment(c.Request().Context(), buyer, req.PurchaseID, req.PaymentMethod)
	if err != nil {
		return writeError(c, h.log, err)
	}
	resp := echo.Map{
		"success":       true,
		"message":       "Payment processed successfully",
		"purchaseId":    out.PurchaseID,
		"transactionId": out.TransactionID,
		"status":        out.Status,
		"tokenIssued":   out.TokenIssued,
	}
	if out.TokenIssued {
		resp["accessUrl"] = out.AccessURL
	}
	return c.JSON(http.StatusOK, resp)
}

type webhookRequest struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	PaymentID     string `json:"paymentId"`
}

// PaymentWebhook handles POST /v1/webhooks/payment.  Redeliveries are
// acknowledged with 200 so the provider stops retrying; only persistence
// failures answer 500.
func (h *PurchaseHandler) PaymentWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	if h.webhookSecret != nil && !validSignature(h.webhookSecret, body, c.Request().Header.Get(signatureHeader)) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	}
	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	err = h.wf.WebhookComplete(c.Request().Context(), req.TransactionID, req.Status, req.PaymentID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		h.log.Warn("webhook for unknown transaction", zap.String("transaction_id", req.TransactionID))
	default:
		h.log.Error("payment webhook failed", zap.String("transaction_id", req.TransactionID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "payment webhook processing failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

func validSignature(secret, body []byte, got string) bool {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(got), "sha256="))
	if err != nil || len(sig) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

type confirmRequest struct {
	IsWorking *bool `json:"isWorking"`
}

// ConfirmAccess handles POST /v1/purchases/:id/confirm-access.
func (h *PurchaseHandler) ConfirmAccess(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil || req.IsWorking == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "isWorking field must be a boolean value"})
	}
	buyer, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	out, err := h.wf.ConfirmAccess(c.Request().Context(), buyer, c.Param("id"), *req.IsWorking)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "purchase record not found"})
		}
		return writeError(c, h.log, err)
	}
	resp := echo.Map{"confirmed": out.Confirmed}
	switch {
	case *req.IsWorking:
		resp["message"] = "Access confirmed successfully"
	case out.DisputeCreated:
		resp["message"] = "Access confirmation and dispute filed successfully"
		resp["disputeCreated"] = true
		resp["disputeId"] = out.DisputeID
	default:
		resp["message"] = "Access confirmation successful, but failed to create dispute record"
		resp["disputeCreated"] = false
	}
	return c.JSON(http.StatusOK, resp)
}

// Access handles GET /v1/access?id=&token=, the target of the one-time
// access link.
func (h *PurchaseHandler) Access(c echo.Context) error {
	id, token := c.QueryParam("id"), c.QueryParam("token")
	if id == "" || token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id and token are required"})
	}
	acc, err := h.wf.RedeemAccess(c.Request().Context(), id, token)
	if err != nil {
		return writeError(c, h.log, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, echo.Map{
		"purchaseId":   acc.PurchaseID,
		"groupSubId":   acc.OfferID,
		"instructions": acc.Instructions,
	})
}
