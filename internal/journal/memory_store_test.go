package journal

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := &TxRecord{Account: "0xAbC", Method: "purchaseSubscription", Args: `{"agent_id":2}`, ValueWei: "10"}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.ID == "" || record.Status != StatusPending {
		t.Fatalf("expected id and pending status, got %+v", record)
	}
	if err := store.MarkSubmitted(ctx, record.ID, "0xhash"); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	if err := store.MarkConfirmed(ctx, record.ID, 42); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}
	stored, err := store.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusConfirmed || stored.TxHash != "0xhash" || stored.BlockNumber != 42 {
		t.Fatalf("unexpected record %+v", stored)
	}
	if !stored.Status.Terminal() {
		t.Fatalf("confirmed must be terminal")
	}
}

func TestMemoryStoreFailureStatuses(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	record := &TxRecord{Account: "0xabc", Method: "upvoteFeatureRequest"}
	_ = store.Create(ctx, record)

	if err := store.MarkFailed(ctx, record.ID, StatusConfirmed, "X", "x"); err == nil {
		t.Fatalf("confirmed is not a failure status")
	}
	if err := store.MarkFailed(ctx, record.ID, StatusRejected, "USER_REJECTED", "Transaction rejected by user"); err != nil {
		t.Fatalf("mark rejected: %v", err)
	}
	stored, _ := store.Get(ctx, record.ID)
	if stored.Status != StatusRejected || stored.ErrorCode != "USER_REJECTED" {
		t.Fatalf("unexpected record %+v", stored)
	}
	if err := store.MarkConfirmed(ctx, "missing", 1); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreListFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i, method := range []string{"purchaseSubscription", "submitFeatureRequest", "purchaseSubscription"} {
		account := "0xAAA"
		if i == 1 {
			account = "0xBBB"
		}
		if err := store.Create(ctx, &TxRecord{Account: account, Method: method, CreatedAt: int64(100 + i)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := store.List(ctx, WithAccount("0xaaa"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].CreatedAt != 102 {
		t.Fatalf("expected newest first for account, got %+v", list)
	}
	list, _ = store.List(ctx, WithMethod("submitFeatureRequest"))
	if len(list) != 1 || list[0].Account != "0xBBB" {
		t.Fatalf("unexpected method filter result %+v", list)
	}
	list, _ = store.List(ctx, WithStatuses(StatusConfirmed))
	if len(list) != 0 {
		t.Fatalf("expected no confirmed records, got %d", len(list))
	}
	list, _ = store.List(ctx, WithLimit(1), WithOffset(1))
	if len(list) != 1 || list[0].CreatedAt != 101 {
		t.Fatalf("unexpected page %+v", list)
	}
}
