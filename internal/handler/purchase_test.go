package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/groupshare/internal/model"
	"github.com/iliyamo/groupshare/internal/repository"
	"github.com/iliyamo/groupshare/internal/service"
)

type stubWorkflow struct {
	initiate func(buyerID, offerID string) (model.PurchaseRecord, error)
	pay      func(callerID, purchaseID, method string) (service.PaymentOutcome, error)
	webhook  func(txnID, status, paymentID string) error
	confirm  func(callerID, purchaseID string, isWorking bool) (service.ConfirmOutcome, error)
	redeem   func(purchaseID, token string) (service.Access, error)

	webhookCalls int
}

func (s *stubWorkflow) Initiate(_ context.Context, buyerID, offerID string) (model.PurchaseRecord, error) {
	return s.initiate(buyerID, offerID)
}

func (s *stubWorkflow) ProcessPayment(_ context.Context, callerID, purchaseID, method string) (service.PaymentOutcome, error) {
	return s.pay(callerID, purchaseID, method)
}

func (s *stubWorkflow) WebhookComplete(_ context.Context, txnID, status, paymentID string) error {
	s.webhookCalls++
	if s.webhook == nil {
		return nil
	}
	return s.webhook(txnID, status, paymentID)
}

func (s *stubWorkflow) ConfirmAccess(_ context.Context, callerID, purchaseID string, isWorking bool) (service.ConfirmOutcome, error) {
	return s.confirm(callerID, purchaseID, isWorking)
}

func (s *stubWorkflow) RedeemAccess(_ context.Context, purchaseID, token string) (service.Access, error) {
	return s.redeem(purchaseID, token)
}

type stubLister []model.PurchaseRecord

func (s stubLister) ListByUser(_ context.Context, userID string) ([]model.PurchaseRecord, error) {
	var out []model.PurchaseRecord
	for _, p := range s {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

// serve runs h against a request built from method, target and body.  A
// non-empty profile is stored the way ResolveProfile would store it.
func serve(h echo.HandlerFunc, method, target, body, profile string, params map[string]string, hdr map[string]string) *httptest.ResponseRecorder {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if profile != "" {
		c.Set("profile_id", profile)
	}
	for k, v := range params {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}
	_ = h(c)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestPurchase(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		err     error
		want    int
		wantMsg string
	}{
		{name: "created", want: http.StatusCreated},
		{name: "unknown offer", err: repository.ErrNotFound, want: http.StatusNotFound, wantMsg: "offer not found"},
		{name: "sold out", err: repository.ErrUnavailable, want: http.StatusBadRequest, wantMsg: "no available slots"},
		{name: "store failure", err: errors.New("boom"), want: http.StatusInternalServerError, wantMsg: "internal error"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			wf := &stubWorkflow{initiate: func(buyer, offer string) (model.PurchaseRecord, error) {
				if tc.err != nil {
					return model.PurchaseRecord{}, tc.err
				}
				return model.PurchaseRecord{ID: "p-1", UserID: buyer, OfferID: offer, Status: model.PurchasePendingPayment}, nil
			}}
			h := NewPurchaseHandler(wf, stubLister{}, "", zap.NewNop())
			rec := serve(h.Purchase, http.MethodPost, "/v1/offers/o-1/purchase", "", "buyer-1", map[string]string{"id": "o-1"}, nil)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body)
			}
			body := decode(t, rec)
			if tc.wantMsg != "" {
				if body["error"] != tc.wantMsg {
					t.Fatalf("error = %v, want %q", body["error"], tc.wantMsg)
				}
				return
			}
			p := body["purchase"].(map[string]any)
			if p["groupSubId"] != "o-1" || p["status"] != model.PurchasePendingPayment {
				t.Fatalf("purchase = %v", p)
			}
		})
	}
}

func TestPurchaseRequiresProfile(t *testing.T) {
	t.Parallel()

	h := NewPurchaseHandler(&stubWorkflow{}, stubLister{}, "", zap.NewNop())
	rec := serve(h.Purchase, http.MethodPost, "/v1/offers/o-1/purchase", "", "", map[string]string{"id": "o-1"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestListMine(t *testing.T) {
	t.Parallel()

	h := NewPurchaseHandler(&stubWorkflow{}, stubLister{
		{ID: "p-1", UserID: "buyer-1", OfferID: "o-1"},
		{ID: "p-2", UserID: "buyer-2", OfferID: "o-1"},
	}, "", zap.NewNop())
	rec := serve(h.ListMine, http.MethodGet, "/v1/purchases", "", "buyer-1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list := decode(t, rec)["purchases"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["id"] != "p-1" {
		t.Fatalf("purchases = %v", list)
	}
}

func TestPay(t *testing.T) {
	t.Parallel()

	t.Run("token issued", func(t *testing.T) {
		t.Parallel()
		wf := &stubWorkflow{pay: func(caller, id, method string) (service.PaymentOutcome, error) {
			if caller != "buyer-1" || id != "p-1" || method != "card" {
				t.Errorf("pay(%q, %q, %q)", caller, id, method)
			}
			return service.PaymentOutcome{PurchaseID: id, TransactionID: "t-1", Status: "processing", AccessURL: "https://app/access?id=p-1&token=x", TokenIssued: true}, nil
		}}
		h := NewPurchaseHandler(wf, stubLister{}, "", zap.NewNop())
		rec := serve(h.Pay, http.MethodPost, "/v1/payments", `{"purchaseId":"p-1","paymentMethod":"card"}`, "buyer-1", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d (%s)", rec.Code, rec.Body)
		}
		body := decode(t, rec)
		if body["success"] != true || body["transactionId"] != "t-1" || body["accessUrl"] == nil {
			t.Fatalf("body = %v", body)
		}
	})

	t.Run("no token means no link", func(t *testing.T) {
		t.Parallel()
		wf := &stubWorkflow{pay: func(_, id, _ string) (service.PaymentOutcome, error) {
			return service.PaymentOutcome{PurchaseID: id, TransactionID: "t-1", Status: "processing"}, nil
		}}
		h := NewPurchaseHandler(wf, stubLister{}, "", zap.NewNop())
		rec := serve(h.Pay, http.MethodPost, "/v1/payments", `{"purchaseId":"p-1","paymentMethod":"card"}`, "buyer-1", nil, nil)
		body := decode(t, rec)
		if _, ok := body["accessUrl"]; ok || body["tokenIssued"] != false {
			t.Fatalf("body = %v", body)
		}
	})

	t.Run("processor message passes through", func(t *testing.T) {
		t.Parallel()
		wf := &stubWorkflow{pay: func(string, string, string) (service.PaymentOutcome, error) {
			return service.PaymentOutcome{}, &service.PaymentError{Err: errors.New("insufficient funds")}
		}}
		h := NewPurchaseHandler(wf, stubLister{}, "", zap.NewNop())
		rec := serve(h.Pay, http.MethodPost, "/v1/payments", `{"purchaseId":"p-1","paymentMethod":"card"}`, "buyer-1", nil, nil)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := decode(t, rec)["error"]; got != "insufficient funds" {
			t.Fatalf("error = %v", got)
		}
	})

	t.Run("status mapping", func(t *testing.T) {
		t.Parallel()
		for err, want := range map[error]int{
			repository.ErrForbidden: http.StatusForbidden,
			repository.ErrConflict:  http.StatusConflict,
			fmt.Errorf("%w: paymentMethod is required", service.ErrValidation): http.StatusBadRequest,
		} {
			wf := &stubWorkflow{pay: func(string, string, string) (service.PaymentOutcome, error) {
				return service.PaymentOutcome{}, err
			}}
			h := NewPurchaseHandler(wf, stubLister{}, "", zap.NewNop())
			rec := serve(h.Pay, http.MethodPost, "/v1/payments", `{"purchaseId":"p-1"}`, "buyer-1", nil, nil)
			if rec.Code != want {
				t.Errorf("%v: status = %d, want %d", err, rec.Code, want)
			}
		}
	})

	t.Run("missing purchase id", func(t *testing.T) {
		t.Parallel()
		h := NewPurchaseHandler(&stubWorkflow{}, stubLister{}, "", zap.NewNop())
		rec := serve(h.Pay, http.MethodPost, "/v1/payments", `{"paymentMethod":"card"}`, "buyer-1", nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaymentWebhook(t *testing.T) {
	t.Parallel()

	const secret = "whsec"
	const body = `{"transactionId":"t-1","status":"completed","paymentId":"pmt_1"}`

	cases := []struct {
		name      string
		secret    string
		signature string
		err       error
		want      int
		wantCalls int
	}{
		{name: "unsigned without secret", want: http.StatusOK, wantCalls: 1},
		{name: "valid signature", secret: secret, signature: sign(secret, body), want: http.StatusOK, wantCalls: 1},
		{name: "prefixed signature", secret: secret, signature: "sha256=" + sign(secret, body), want: http.StatusOK, wantCalls: 1},
		{name: "bad signature", secret: secret, signature: sign("other", body), want: http.StatusUnauthorized},
		{name: "missing signature", secret: secret, want: http.StatusUnauthorized},
		{name: "unknown transaction acknowledged", err: repository.ErrNotFound, want: http.StatusOK, wantCalls: 1},
		{name: "invalid status", err: fmt.Errorf("%w: unknown status", service.ErrValidation), want: http.StatusBadRequest, wantCalls: 1},
		{name: "store failure", err: errors.New("db down"), want: http.StatusInternalServerError, wantCalls: 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			wf := &stubWorkflow{webhook: func(txn, status, pid string) error {
				if txn != "t-1" || status != "completed" || pid != "pmt_1" {
					t.Errorf("webhook(%q, %q, %q)", txn, status, pid)
				}
				return tc.err
			}}
			h := NewPurchaseHandler(wf, stubLister{}, tc.secret, zap.NewNop())
			hdr := map[string]string{}
			if tc.signature != "" {
				hdr[signatureHeader] = tc.signature
			}
			rec := serve(h.PaymentWebhook, http.MethodPost, "/v1/webhooks/payment", body, "", nil, hdr)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body)
			}
			if wf.webhookCalls != tc.wantCalls {
				t.Fatalf("workflow called %d times, want %d", wf.webhookCalls, tc.wantCalls)
			}
		})
	}
}

func TestConfirmAccess(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		body     string
		out      service.ConfirmOutcome
		err      error
		want     int
		wantBody map[string]any
	}{
		{
			name:     "working",
			body:     `{"isWorking":true}`,
			out:      service.ConfirmOutcome{Confirmed: true},
			want:     http.StatusOK,
			wantBody: map[string]any{"confirmed": true, "message": "Access confirmed successfully"},
		},
		{
			name:     "not working opens dispute",
			body:     `{"isWorking":false}`,
			out:      service.ConfirmOutcome{Confirmed: true, DisputeCreated: true, DisputeID: "d-1"},
			want:     http.StatusOK,
			wantBody: map[string]any{"disputeCreated": true, "disputeId": "d-1"},
		},
		{
			name:     "dispute failure still confirms",
			body:     `{"isWorking":false}`,
			out:      service.ConfirmOutcome{Confirmed: true},
			want:     http.StatusOK,
			wantBody: map[string]any{"disputeCreated": false, "message": "Access confirmation successful, but failed to create dispute record"},
		},
		{
			name:     "missing flag",
			body:     `{}`,
			want:     http.StatusBadRequest,
			wantBody: map[string]any{"error": "isWorking field must be a boolean value"},
		},
		{
			name: "flag not boolean",
			body: `{"isWorking":"yes"}`,
			want: http.StatusBadRequest,
		},
		{
			name:     "unknown purchase",
			body:     `{"isWorking":true}`,
			err:      repository.ErrNotFound,
			want:     http.StatusNotFound,
			wantBody: map[string]any{"error": "purchase record not found"},
		},
		{
			name: "not the buyer",
			body: `{"isWorking":true}`,
			err:  repository.ErrForbidden,
			want: http.StatusForbidden,
		},
		{
			name: "access not provided",
			body: `{"isWorking":true}`,
			err:  fmt.Errorf("%w: access has not been provided", service.ErrInvalidState),
			want: http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			wf := &stubWorkflow{confirm: func(caller, id string, _ bool) (service.ConfirmOutcome, error) {
				if caller != "buyer-1" || id != "p-1" {
					t.Errorf("confirm(%q, %q)", caller, id)
				}
				return tc.out, tc.err
			}}
			h := NewPurchaseHandler(wf, stubLister{}, "", zap.NewNop())
			rec := serve(h.ConfirmAccess, http.MethodPost, "/v1/purchases/p-1/confirm-access", tc.body, "buyer-1", map[string]string{"id": "p-1"}, nil)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body)
			}
			body := decode(t, rec)
			for k, v := range tc.wantBody {
				if body[k] != v {
					t.Errorf("%s = %v, want %v", k, body[k], v)
				}
			}
		})
	}
}

func TestAccess(t *testing.T) {
	t.Parallel()

	wf := &stubWorkflow{redeem: func(id, token string) (service.Access, error) {
		if token != "good" {
			return service.Access{}, service.ErrTokenInvalid
		}
		return service.Access{PurchaseID: id, OfferID: "o-1", Instructions: "login: family@example.com"}, nil
	}}
	h := NewPurchaseHandler(wf, stubLister{}, "", zap.NewNop())

	rec := serve(h.Access, http.MethodGet, "/v1/access?id=p-1&token=good", "", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderCacheControl); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if body := decode(t, rec); body["instructions"] != "login: family@example.com" {
		t.Fatalf("body = %v", body)
	}

	rec = serve(h.Access, http.MethodGet, "/v1/access?id=p-1&token=used", "", "", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused token status = %d, want 401", rec.Code)
	}

	rec = serve(h.Access, http.MethodGet, "/v1/access?id=p-1", "", "", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing token status = %d, want 400", rec.Code)
	}
}
