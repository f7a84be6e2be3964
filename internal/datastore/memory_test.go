package datastore

import (
	"context"
	"testing"

	"github.com/TimurManjosov/goflagship/internal/ldmodel"
)

func TestMemory_NotInitializedUntilInitCalled(t *testing.T) {
	m := NewMemory()
	if m.IsInitialized(context.Background()) {
		t.Fatal("expected a fresh store to report uninitialized")
	}
	_ = m.Init(context.Background(), map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor{})
	if !m.IsInitialized(context.Background()) {
		t.Fatal("expected Init to mark the store initialized")
	}
}

func TestMemory_GetReturnsFalseForMissingKey(t *testing.T) {
	m := NewMemory()
	_, ok, err := m.Get(context.Background(), ldmodel.Features, "nope")
	if err != nil || ok {
		t.Fatalf("expected ok=false for a missing key, got ok=%v err=%v", ok, err)
	}
}

func TestMemory_InitReplacesWholeSnapshot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Init(ctx, map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor{
		ldmodel.Features: {"f1": {Version: 1, Item: "flag-1"}},
	})
	_ = m.Init(ctx, map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor{
		ldmodel.Features: {"f2": {Version: 1, Item: "flag-2"}},
	})

	if _, ok, _ := m.Get(ctx, ldmodel.Features, "f1"); ok {
		t.Fatal("expected the second Init to wholly replace the first snapshot")
	}
	if item, ok, _ := m.Get(ctx, ldmodel.Features, "f2"); !ok || item.Item != "flag-2" {
		t.Fatalf("expected f2 to be present after the second Init, got %+v ok=%v", item, ok)
	}
}

func TestMemory_UpsertRejectsStaleVersion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Init(ctx, map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor{})

	ok, err := m.Upsert(ctx, ldmodel.Features, "f1", ldmodel.ItemDescriptor{Version: 5, Item: "v5"})
	if err != nil || !ok {
		t.Fatalf("expected first upsert to apply, got ok=%v err=%v", ok, err)
	}

	ok, err = m.Upsert(ctx, ldmodel.Features, "f1", ldmodel.ItemDescriptor{Version: 3, Item: "v3"})
	if err != nil || ok {
		t.Fatalf("expected a stale (lower-version) upsert to be rejected, got ok=%v err=%v", ok, err)
	}
	item, _, _ := m.Get(ctx, ldmodel.Features, "f1")
	if item.Item != "v5" {
		t.Fatalf("expected item to remain v5 after a rejected stale upsert, got %v", item.Item)
	}
}

func TestMemory_UpsertRejectsEqualVersion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Init(ctx, map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor{})

	_, _ = m.Upsert(ctx, ldmodel.Features, "f1", ldmodel.ItemDescriptor{Version: 5, Item: "v5"})
	ok, _ := m.Upsert(ctx, ldmodel.Features, "f1", ldmodel.ItemDescriptor{Version: 5, Item: "v5-again"})
	if ok {
		t.Fatal("expected an equal-version upsert to be rejected (last-writer-wins requires strictly greater)")
	}
}

func TestMemory_UpsertAppliesNewerVersion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Init(ctx, map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor{})

	_, _ = m.Upsert(ctx, ldmodel.Features, "f1", ldmodel.ItemDescriptor{Version: 1, Item: "v1"})
	ok, _ := m.Upsert(ctx, ldmodel.Features, "f1", ldmodel.ItemDescriptor{Version: 2, Item: "v2"})
	if !ok {
		t.Fatal("expected a newer-version upsert to apply")
	}
	item, _, _ := m.Get(ctx, ldmodel.Features, "f1")
	if item.Item != "v2" {
		t.Fatalf("expected item to be v2, got %v", item.Item)
	}
}

func TestMemory_UpsertTombstoneMarksDeleted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Init(ctx, map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor{})

	_, _ = m.Upsert(ctx, ldmodel.Features, "f1", ldmodel.ItemDescriptor{Version: 1, Item: "v1"})
	_, _ = m.Upsert(ctx, ldmodel.Features, "f1", ldmodel.Tombstone(2))

	item, ok, _ := m.Get(ctx, ldmodel.Features, "f1")
	if !ok || !item.IsDeleted() {
		t.Fatalf("expected a tombstone to remain queryable but report deleted, got %+v ok=%v", item, ok)
	}
}

func TestMemory_GetAllReturnsIndependentCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Init(ctx, map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor{
		ldmodel.Features: {"f1": {Version: 1, Item: "v1"}},
	})

	all, err := m.GetAll(ctx, ldmodel.Features)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected 1 item, got %d err=%v", len(all), err)
	}
	all["f2"] = ldmodel.ItemDescriptor{Version: 1, Item: "injected"}

	if _, ok, _ := m.Get(ctx, ldmodel.Features, "f2"); ok {
		t.Fatal("expected GetAll's returned map to be a copy, not a live view")
	}
}

func TestMemory_CloseIsNoop(t *testing.T) {
	m := NewMemory()
	if err := m.Close(); err != nil {
		t.Fatalf("expected Close to never error, got %v", err)
	}
}
