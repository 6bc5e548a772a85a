// Package payment talks to the payment provider.  The provider confirms a
// charge asynchronously through the payment webhook; Charge only starts it.
package payment

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider-side charge statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ChargeRequest describes one slot payment.  IdempotencyKey identifies the
// payment attempt at the provider, so a resent charge is not billed twice;
// TransactionID is used when it is empty.
type ChargeRequest struct {
	TransactionID  string
	IdempotencyKey string
	UserID         string
	OfferID        string
	Method         string
	Amount         decimal.Decimal
	Currency       string
}

// ChargeResult is the provider's answer to a charge.
type ChargeResult struct {
	PaymentID string
	Status    string
}

// Gateway is an HTTP client for the payment provider's charge endpoint.
type Gateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewGateway returns a Gateway for baseURL with a per-request timeout.
func NewGateway(baseURL, apiKey string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type chargeBody struct {
	Reference string          `json:"reference"`
	Customer  string          `json:"customer"`
	Item      string          `json:"item"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

type chargeReply struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Charge posts the charge to {baseURL}/charges.  A non-2xx answer is
// returned as an error carrying the provider's message.
func (g *Gateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	body, err := json.Marshal(chargeBody{
		Reference: req.TransactionID,
		Customer:  req.UserID,
		Item:      req.OfferID,
		Method:    req.Method,
		Amount:    req.Amount,
		Currency:  req.Currency,
	})
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	key := req.IdempotencyKey
	if key == "" {
		key = req.TransactionID
	}
	httpReq.Header.Set("Idempotency-Key", key)
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("payment gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	var reply chargeReply
	decErr := json.NewDecoder(resp.Body).Decode(&reply)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decErr == nil && reply.Error != "" {
			return ChargeResult{}, errors.New(reply.Error)
		}
		return ChargeResult{}, fmt.Errorf("payment gateway returned %d", resp.StatusCode)
	}
	if decErr != nil {
		return ChargeResult{}, fmt.Errorf("decode gateway reply: %w", decErr)
	}
	if reply.ID == "" {
		return ChargeResult{}, errors.New("payment gateway returned no payment id")
	}
	status := reply.Status
	if status == "" {
		status = StatusProcessing
	}
	return ChargeResult{PaymentID: reply.ID, Status: status}, nil
}

// DeclinedMethod is the payment method the sandbox always refuses.
const DeclinedMethod = "card_declined"

// Sandbox accepts every charge without contacting a provider.  Completion
// is expected to arrive through the webhook like in production.
type Sandbox struct{}

func (Sandbox) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	if req.Method == DeclinedMethod {
		return ChargeResult{}, errors.New("card declined")
	}
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return ChargeResult{}, err
	}
	return ChargeResult{PaymentID: "pmt_" + hex.EncodeToString(buf), Status: StatusProcessing}, nil
}
