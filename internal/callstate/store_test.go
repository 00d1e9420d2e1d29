package callstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client, 4*time.Hour), mr
}

func newTestState(callID string) *CallState {
	return &CallState{
		CallID:         callID,
		CallRecordID:   uuid.New(),
		QuoteRequestID: uuid.New(),
		SupplierID:     uuid.New(),
		OrganizationID: uuid.New(),
		CurrentNode:    NodeGreeting,
		Status:         StatusInProgress,
		Parts: []Part{
			{PartNumber: "ALT-9921", Description: "alternator", Quantity: 1},
		},
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state := newTestState("call-1")
	if err := store.Create(ctx, state); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if state.Version != 1 {
		t.Errorf("version after create = %d, want 1", state.Version)
	}

	got, err := store.Get(ctx, "call-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CallID != "call-1" {
		t.Errorf("CallID = %q, want %q", got.CallID, "call-1")
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if got.CurrentNode != NodeGreeting {
		t.Errorf("CurrentNode = %q, want %q", got.CurrentNode, NodeGreeting)
	}
	if len(got.Parts) != 1 || got.Parts[0].PartNumber != "ALT-9921" {
		t.Errorf("Parts = %+v, want one ALT-9921 line", got.Parts)
	}
}

func TestStoreCreateDuplicate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, newTestState("call-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, newTestState("call-1")); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate Create err = %v, want ErrAlreadyExists", err)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Get(context.Background(), "no-such-call"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing err = %v, want ErrNotFound", err)
	}
}

func TestStoreWriteIncrementsVersion(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state := newTestState("call-1")
	if err := store.Create(ctx, state); err != nil {
		t.Fatalf("Create: %v", err)
	}

	state.Transition(NodePartsRequest)
	applied, err := store.Write(ctx, state)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !applied {
		t.Fatal("Write applied = false, want true")
	}
	if state.Version != 2 {
		t.Errorf("version after write = %d, want 2", state.Version)
	}

	got, err := store.Get(ctx, "call-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CurrentNode != NodePartsRequest {
		t.Errorf("CurrentNode = %q, want %q", got.CurrentNode, NodePartsRequest)
	}
}

func TestStoreWriteVersionConflict(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state := newTestState("call-1")
	if err := store.Create(ctx, state); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A concurrent writer advances the state first.
	other, err := store.Get(ctx, "call-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	other.Transition(NodePartsRequest)
	if _, err := store.Write(ctx, other); err != nil {
		t.Fatalf("Write: %v", err)
	}

	state.Transition(NodeNegotiation)
	applied, err := store.Write(ctx, state)
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale Write err = %v, want ErrVersionConflict", err)
	}
	if applied {
		t.Error("stale Write applied = true, want false")
	}
}

func TestStoreWriteToTerminalStateIsNoOp(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state := newTestState("call-1")
	if err := store.Create(ctx, state); err != nil {
		t.Fatalf("Create: %v", err)
	}

	state.Transition(NodeCompleted)
	if _, err := store.Write(ctx, state); err != nil {
		t.Fatalf("Write terminal: %v", err)
	}

	// A late turn must neither error nor overwrite the terminal state.
	late, err := store.Get(ctx, "call-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	late.Transition(NodeNegotiation)
	applied, err := store.Write(ctx, late)
	if err != nil {
		t.Fatalf("late Write err = %v, want nil", err)
	}
	if applied {
		t.Error("late Write applied = true, want false")
	}

	got, err := store.Get(ctx, "call-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CurrentNode != NodeCompleted {
		t.Errorf("CurrentNode = %q, want %q", got.CurrentNode, NodeCompleted)
	}
}

func TestStoreWriteMissing(t *testing.T) {
	store, _ := newTestStore(t)

	state := newTestState("ghost")
	state.Version = 1
	if _, err := store.Write(context.Background(), state); !errors.Is(err, ErrNotFound) {
		t.Errorf("Write missing err = %v, want ErrNotFound", err)
	}
}

func TestStoreStateExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, newTestState("call-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mr.FastForward(4*time.Hour + time.Minute)

	if _, err := store.Get(ctx, "call-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after TTL err = %v, want ErrNotFound", err)
	}
}

func TestStoreDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, newTestState("call-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ctx, "call-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "call-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}

	// Deleting an absent key is fine.
	if err := store.Delete(ctx, "call-1"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}
