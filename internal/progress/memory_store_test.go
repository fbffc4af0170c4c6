package progress

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	if err := store.Set(ctx, "42", 45, StatusProcessing); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	record, err := store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if record.Percent != 45 || record.Status != StatusProcessing {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestMemoryStoreMissingJob(t *testing.T) {
	store := NewMemoryStore(time.Hour)

	record, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if record.Percent != 0 || record.Status != StatusUnknown {
		t.Fatalf("expected unknown record, got %+v", record)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	base := time.Now()
	store.now = func() time.Time { return base }

	ctx := context.Background()
	if err := store.Set(ctx, "42", 80, StatusProcessing); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	store.now = func() time.Time { return base.Add(time.Hour + time.Second) }

	record, err := store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if record.Status != StatusUnknown {
		t.Fatalf("expected expired record to read as unknown, got %+v", record)
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	for percent, status := range map[int]Status{0: StatusProcessing, 100: StatusCompleted} {
		if err := store.Set(ctx, "42", percent, status); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}

	if err := store.Set(ctx, "42", 0, StatusFailed); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	record, err := store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if record.Percent != 0 || record.Status != StatusFailed {
		t.Fatalf("expected the last write to win, got %+v", record)
	}
}
