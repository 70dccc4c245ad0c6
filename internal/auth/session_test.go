package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hotpath/glide/internal/model"
)

type failingSessionRepo struct {
	memSessions
	err error
}

func (r failingSessionRepo) Create(context.Context, *model.Session) error { return r.err }

func (r failingSessionRepo) FindPrincipal(context.Context, string, time.Time) (*model.SessionPrincipal, error) {
	return nil, r.err
}

func newTestSessionManager(store *memStore, now *time.Time) (*SessionManager, *countingRecorder) {
	rec := newCountingRecorder()
	m := NewSessionManager(memSessions{store}, rec)
	m.now = func() time.Time { return *now }
	return m, rec
}

func seedUser(store *memStore, id, email string, admin bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.users[id] = &model.User{ID: id, Email: email, DisplayName: "Seeded", IsAdmin: admin}
}

func TestSessionManager_CreateAndLookup(t *testing.T) {
	store := newMemStore()
	seedUser(store, "user-1", "one@example.com", true)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m, rec := newTestSessionManager(store, &now)
	ctx := context.Background()

	session, err := m.Create(ctx, "user-1", 720*time.Hour)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(session.ID) != 64 {
		t.Errorf("len(session.ID) = %d, want 64", len(session.ID))
	}
	if !session.ExpiresAt.Equal(now.Add(720 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", session.ExpiresAt, now.Add(720*time.Hour))
	}
	if rec.created != 1 {
		t.Errorf("sessions created = %d, want 1", rec.created)
	}

	principal, err := m.Lookup(ctx, session.ID)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if principal == nil {
		t.Fatal("Lookup should find a live session")
	}
	if principal.UserID != "user-1" || principal.Email != "one@example.com" || !principal.IsAdmin {
		t.Errorf("principal = %+v, want user-1 admin", principal)
	}
}

func TestSessionManager_LookupExpiry(t *testing.T) {
	store := newMemStore()
	seedUser(store, "user-1", "one@example.com", false)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := base
	m, _ := newTestSessionManager(store, &now)
	ctx := context.Background()

	session, err := m.Create(ctx, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	tests := []struct {
		name  string
		at    time.Time
		alive bool
	}{
		{"期限直前", base.Add(time.Hour - time.Second), true},
		{"期限ちょうど", base.Add(time.Hour), false},
		{"期限後", base.Add(2 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = tt.at
			principal, err := m.Lookup(ctx, session.ID)
			if err != nil {
				t.Fatalf("Lookup returned error: %v", err)
			}
			if (principal != nil) != tt.alive {
				t.Errorf("alive = %v, want %v", principal != nil, tt.alive)
			}
		})
	}
}

func TestSessionManager_LookupUnknownOrEmpty(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	m, _ := newTestSessionManager(store, &now)

	for _, id := range []string{"", "does-not-exist"} {
		principal, err := m.Lookup(context.Background(), id)
		if err != nil {
			t.Fatalf("Lookup(%q) returned error: %v", id, err)
		}
		if principal != nil {
			t.Errorf("Lookup(%q) = %+v, want nil", id, principal)
		}
	}
}

func TestSessionManager_RevokeIsIdempotent(t *testing.T) {
	store := newMemStore()
	seedUser(store, "user-1", "one@example.com", false)
	now := time.Now()
	m, rec := newTestSessionManager(store, &now)
	ctx := context.Background()

	session, err := m.Create(ctx, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := m.Revoke(ctx, session.ID); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if err := m.Revoke(ctx, session.ID); err != nil {
		t.Fatalf("second Revoke returned error: %v", err)
	}
	if err := m.Revoke(ctx, ""); err != nil {
		t.Fatalf("Revoke of empty id returned error: %v", err)
	}

	principal, _ := m.Lookup(ctx, session.ID)
	if principal != nil {
		t.Error("revoked session should not be found")
	}
	if rec.revoked != 2 {
		t.Errorf("sessions revoked = %d, want 2", rec.revoked)
	}
}

func TestSessionManager_StorageErrors(t *testing.T) {
	storageErr := errors.New("connection refused")
	m := NewSessionManager(failingSessionRepo{memSessions: memSessions{newMemStore()}, err: storageErr}, nil)

	if _, err := m.Create(context.Background(), "user-1", time.Hour); !errors.Is(err, storageErr) {
		t.Errorf("Create error = %v, want wrapped storage error", err)
	}
	if _, err := m.Lookup(context.Background(), "abc"); !errors.Is(err, storageErr) {
		t.Errorf("Lookup error = %v, want wrapped storage error", err)
	}
}
