package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/groupshare/internal/model"
	"github.com/iliyamo/groupshare/internal/repository"
)

// memInbox matches notifications on both id and owner, like the
// UPDATE ... WHERE id = ? AND user_id = ? in NotificationRepo.MarkRead.
type memInbox struct {
	mu         sync.Mutex
	items      []model.Notification
	lastUnread bool
	lastLimit  int
	err        error
}

func (m *memInbox) ListByUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUnread, m.lastLimit = unreadOnly, limit
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Notification
	for _, n := range m.items {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *memInbox) MarkRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].UserID == userID {
			m.items[i].Read = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func newInbox() *memInbox {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &memInbox{items: []model.Notification{
		{ID: "n-1", UserID: "buyer-1", Type: model.NotifyPurchaseCompleted, Title: "Purchase completed", RelatedEntityType: "purchase", RelatedEntityID: "p-1", CreatedAt: at},
		{ID: "n-2", UserID: "buyer-1", Type: model.NotifySaleCompleted, Title: "Slot sold", Read: true, CreatedAt: at},
		{ID: "n-3", UserID: "seller-1", Type: model.NotifySaleCompleted, Title: "Slot sold", CreatedAt: at},
	}}
}

func TestNotificationList(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		target  string
		profile string
		want    int
		count   int
		unread  bool
		limit   int
	}{
		{name: "all of the caller's", target: "/v1/notifications", profile: "buyer-1", want: http.StatusOK, count: 2, limit: 50},
		{name: "unread only", target: "/v1/notifications?unread=true", profile: "buyer-1", want: http.StatusOK, count: 1, unread: true, limit: 50},
		{name: "limit", target: "/v1/notifications?limit=1", profile: "buyer-1", want: http.StatusOK, count: 1, limit: 1},
		{name: "empty inbox is an empty list", target: "/v1/notifications", profile: "nobody", want: http.StatusOK, count: 0, limit: 50},
		{name: "bad limit", target: "/v1/notifications?limit=x", profile: "buyer-1", want: http.StatusBadRequest},
		{name: "anonymous", target: "/v1/notifications", want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store := newInbox()
			h := NewNotificationHandler(store, zap.NewNop())
			rec := serve(h.List, http.MethodGet, tc.target, "", tc.profile, nil, nil)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body)
			}
			if tc.want != http.StatusOK {
				return
			}
			var items []map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
				t.Fatalf("decode %s: %v", rec.Body, err)
			}
			if items == nil || len(items) != tc.count {
				t.Fatalf("got %d items, want %d (%s)", len(items), tc.count, rec.Body)
			}
			if store.lastUnread != tc.unread || store.lastLimit != tc.limit {
				t.Fatalf("store called with unread=%v limit=%d", store.lastUnread, store.lastLimit)
			}
		})
	}

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		store := newInbox()
		store.err = errors.New("connection reset")
		h := NewNotificationHandler(store, zap.NewNop())
		rec := serve(h.List, http.MethodGet, "/v1/notifications", "", "buyer-1", nil, nil)
		if rec.Code != http.StatusInternalServerError || decode(t, rec)["error"] != "internal error" {
			t.Fatalf("status = %d (%s)", rec.Code, rec.Body)
		}
	})
}

func TestNotificationMarkRead(t *testing.T) {
	t.Parallel()

	store := newInbox()
	h := NewNotificationHandler(store, zap.NewNop())

	rec := serve(h.MarkRead, http.MethodPost, "/v1/notifications/n-1/read", "", "buyer-1", map[string]string{"id": "n-1"}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body)
	}
	if !store.items[0].Read {
		t.Fatalf("notification not marked read")
	}

	rec = serve(h.MarkRead, http.MethodPost, "/v1/notifications/n-3/read", "", "buyer-1", map[string]string{"id": "n-3"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("someone else's notification: status = %d, want 404", rec.Code)
	}
	if store.items[2].Read {
		t.Fatalf("someone else's notification was marked read")
	}

	rec = serve(h.MarkRead, http.MethodPost, "/v1/notifications/n-9/read", "", "buyer-1", map[string]string{"id": "n-9"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown notification: status = %d, want 404", rec.Code)
	}

	rec = serve(h.MarkRead, http.MethodPost, "/v1/notifications/n-1/read", "", "", map[string]string{"id": "n-1"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d, want 401", rec.Code)
	}
}
