package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestSession(id, code string) *Session {
	return &Session{
		ID:          id,
		Code:        code,
		EncounterID: "enc-1",
		CallerID:    "patient-7",
		CalleeID:    "doctor-3",
		Status:      StatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestMemStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	s := newTestSession("room-1", "ABC234")
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	byID, err := store.Get(ctx, "room-1")
	if err != nil {
		t.Fatalf("Get by id: %v", err)
	}
	if byID.EncounterID != "enc-1" {
		t.Errorf("EncounterID = %q, want %q", byID.EncounterID, "enc-1")
	}

	byCode, err := store.Get(ctx, "ABC234")
	if err != nil {
		t.Fatalf("Get by code: %v", err)
	}
	if byCode.ID != "room-1" {
		t.Errorf("ID = %q, want %q", byCode.ID, "room-1")
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestMemStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	if err := store.Create(ctx, newTestSession("room-1", "ABC234")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, _ := store.Get(ctx, "room-1")
	first.Status = "mutated"

	second, _ := store.Get(ctx, "room-1")
	if second.Status != StatusPending {
		t.Errorf("stored session mutated through returned copy: %q", second.Status)
	}
}

func TestMemStoreOneLiveSessionPerRoom(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	if err := store.Create(ctx, newTestSession("room-1", "ABC234")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, newTestSession("room-1", "XYZ789")); !errors.Is(err, ErrExists) {
		t.Fatalf("second Create = %v, want ErrExists", err)
	}

	if err := store.SetStatus(ctx, "room-1", StatusEnded); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := store.Create(ctx, newTestSession("room-1", "XYZ789")); err != nil {
		t.Errorf("Create after end = %v, want nil", err)
	}
}

func TestMemStoreSetStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	if err := store.Create(ctx, newTestSession("room-1", "ABC234")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.SetStatus(ctx, "missing", StatusActive); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetStatus missing = %v, want ErrNotFound", err)
	}

	if err := store.SetStatus(ctx, "room-1", StatusActive); err != nil {
		t.Fatalf("SetStatus active: %v", err)
	}
	s, _ := store.Get(ctx, "room-1")
	if s.Status != StatusActive {
		t.Errorf("Status = %q, want %q", s.Status, StatusActive)
	}

	if err := store.SetStatus(ctx, "room-1", StatusEnded); err != nil {
		t.Fatalf("SetStatus ended: %v", err)
	}
	if err := store.SetStatus(ctx, "room-1", StatusActive); !errors.Is(err, ErrEnded) {
		t.Errorf("SetStatus after end = %v, want ErrEnded", err)
	}
}

func TestMemStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	sessions, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List empty: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("List empty = %d entries", len(sessions))
	}

	store.Create(ctx, newTestSession("room-1", "ABC234"))
	store.Create(ctx, newTestSession("room-2", "DEF567"))

	sessions, err = store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("List = %d entries, want 2", len(sessions))
	}
}

func TestNewCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := NewCode()
		if len(code) != codeLength {
			t.Fatalf("code %q has length %d, want %d", code, len(code), codeLength)
		}
		for _, c := range code {
			found := false
			for _, valid := range codeChars {
				if c == valid {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("code %q contains invalid char %q", code, c)
			}
		}
		seen[code] = true
	}
	// 100 draws from 32^6 colliding down to a handful would mean broken
	// randomness, not bad luck
	if len(seen) < 95 {
		t.Errorf("only %d distinct codes out of 100", len(seen))
	}
}
