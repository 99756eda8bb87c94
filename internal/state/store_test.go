package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestMemoryStore_GetSetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	key, err := s.NewKey(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key == "" {
		t.Fatal("expected a non-empty key")
	}

	if err := s.Set(ctx, key, []byte("payload")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("expected %q, got %q", "payload", got)
	}
}

func TestMemoryStore_GetMissingKey(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_SetDoesNotAliasCallerSlice(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	buf := []byte("original")
	if err := s.Set(ctx, "k", buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf[0] = 'X'

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("store aliased the caller's slice: got %q", got)
	}
}

func TestSQLiteStore_GetSetRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	key, err := s.NewKey(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Set(ctx, key, []byte("payload")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("expected %q, got %q", "payload", got)
	}

	if err := s.Set(ctx, key, []byte("updated")); err != nil {
		t.Fatalf("unexpected error on update: %v", err)
	}
	got, err = s.Get(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "updated" {
		t.Fatalf("expected %q after update, got %q", "updated", got)
	}
}

func TestSQLiteStore_GetMissingKey(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	_, err = s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
