package session

import (
	"context"
	"testing"
	"time"

	"github.com/Effham/wellvois/internal/cache"
)

func newTestManager() *Manager {
	return NewManager(cache.NewMemory(""), time.Hour)
}

func TestNewGetSave(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	s, err := m.New(ctx)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	if s.ID == "" || s.Data.CSRFToken == "" {
		t.Fatalf("fresh session missing id or csrf: %+v", s)
	}

	s.Data.UserID = "u1"
	s.Data.LoginIntent = "practitioner"
	if err := m.Save(ctx, s); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got.Data.UserID != "u1" || got.Data.LoginIntent != "practitioner" {
		t.Fatalf("data mismatch: %+v", got.Data)
	}
}

func TestGet_UnknownID(t *testing.T) {
	m := newTestManager()
	if _, err := m.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRegenerate_KeepsDataRotatesIDAndCSRF(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	s, err := m.New(ctx)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	s.Data.UserID = "u1"
	oldID, oldCSRF := s.ID, s.Data.CSRFToken

	fresh, err := m.Regenerate(ctx, s)
	if err != nil {
		t.Fatalf("Regenerate err: %v", err)
	}
	if fresh.ID == oldID {
		t.Fatal("session id must rotate")
	}
	if fresh.Data.CSRFToken == oldCSRF {
		t.Fatal("csrf token must rotate")
	}
	if fresh.Data.UserID != "u1" {
		t.Fatal("data must survive regeneration")
	}

	// El id viejo quedó inservible.
	if _, err := m.Get(ctx, oldID); err != ErrNotFound {
		t.Fatalf("old id still alive: %v", err)
	}
}

func TestTeardown_LeavesEmptySession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	s, err := m.New(ctx)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	s.Data.UserID = "u1"
	s.Data.LoginIntent = "admin"
	s.Data.TwoFAUserID = "u1"
	if err := m.Save(ctx, s); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	fresh, err := m.Teardown(ctx, s.ID)
	if err != nil {
		t.Fatalf("Teardown err: %v", err)
	}
	if fresh.ID == s.ID {
		t.Fatal("teardown must mint a new id")
	}
	if fresh.Data.UserID != "" || fresh.Data.LoginIntent != "" || fresh.Data.TwoFAUserID != "" {
		t.Fatalf("teardown must not carry state over: %+v", fresh.Data)
	}
	if _, err := m.Get(ctx, s.ID); err != ErrNotFound {
		t.Fatalf("old session still alive: %v", err)
	}
}

func TestStorageKeyIsHashed(t *testing.T) {
	// El id crudo jamás debe ser la key de storage.
	if storageKey("raw-sid") == keyPrefix+"raw-sid" {
		t.Fatal("storage key must be a hash of the sid")
	}
}
