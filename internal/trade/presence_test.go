package trade_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yLucasx3/gh-economy/internal/auth"
	"github.com/yLucasx3/gh-economy/internal/model"
	"github.com/yLucasx3/gh-economy/internal/store"
	"github.com/yLucasx3/gh-economy/internal/trade"
)

func TestHandleWS_FailedUpgradeLeavesUserOffline(t *testing.T) {
	ms := store.NewMemoryStore()
	u := seedUser(t, ms, "ana", 0)
	hub := trade.NewPresenceHub(ms)

	// Plain GET without the websocket handshake headers: the upgrade fails.
	r := httptest.NewRequest("GET", "/api/v1/ws", nil)
	r = r.WithContext(auth.WithUserID(r.Context(), u.ID))
	w := httptest.NewRecorder()
	hub.HandleWS(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-websocket request, got %d", w.Code)
	}

	got, err := ms.FindUser(context.Background(), store.FindUserQuery{ID: u.ID})
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if got.Status != model.PresenceOffline {
		t.Errorf("user must stay OFFLINE after a failed upgrade, got %s", got.Status)
	}
	if got.SocketID != "" {
		t.Errorf("no socket id may be assigned without a connection, got %q", got.SocketID)
	}
}

func TestHandleWS_Unauthenticated(t *testing.T) {
	ms := store.NewMemoryStore()
	hub := trade.NewPresenceHub(ms)

	r := httptest.NewRequest("GET", "/api/v1/ws", nil)
	w := httptest.NewRecorder()
	hub.HandleWS(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without identity, got %d", w.Code)
	}
}
