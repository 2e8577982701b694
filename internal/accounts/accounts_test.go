package accounts

import (
	"context"
	"errors"
	"testing"
)

func TestRecordInfraction(t *testing.T) {
	d := &Data{Username: "sam"}
	d.RecordInfraction("client_too_fast")
	d.RecordInfraction("client_too_fast")
	d.RecordInfraction("client_too_slow")

	if len(d.Infractions) != 2 {
		t.Fatalf("want 2 distinct reasons, got %d", len(d.Infractions))
	}
	if d.Infractions[0].Reason != "client_too_fast" || d.Infractions[0].Count != 2 {
		t.Errorf("first infraction: %+v", d.Infractions[0])
	}
	if d.Infractions[1].Count != 1 {
		t.Errorf("second infraction: %+v", d.Infractions[1])
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(false)

	if _, err := store.Load(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	saved := &Data{Username: "sam", XP: 100}
	if err := store.Save(ctx, saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx, "sam")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.XP != 100 {
		t.Errorf("XP = %d, want 100", loaded.XP)
	}

	// Loaded records are copies; mutating one must not leak into the store.
	loaded.XP = 999
	loaded.RecordInfraction("bad_modifiers")
	again, _ := store.Load(ctx, "sam")
	if again.XP != 100 || len(again.Infractions) != 0 {
		t.Errorf("store mutated through a loaded copy: %+v", again)
	}
}

func TestMemoryStoreCreateMissing(t *testing.T) {
	store := NewMemoryStore(true)
	d, err := store.Load(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Username != "fresh" || d.XP != 0 {
		t.Errorf("fresh record: %+v", d)
	}
}
