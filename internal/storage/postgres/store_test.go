package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"ammVault/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("AMMVAULT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AMMVAULT_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := store.pool.Exec(ctx, `DELETE FROM kv_state WHERE key >= 'test/' AND key < 'test0'`); err != nil {
		t.Fatalf("reset: %v", err)
	}
	return store
}

func TestStoreKV(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	cache := storage.NewCache(store)
	_ = cache.Set(ctx, []byte("test/a"), []byte("1"))
	_ = cache.Set(ctx, []byte("test/b"), []byte("2"))
	if err := cache.Write(ctx); err != nil {
		t.Fatalf("write: %v", err)
	}

	v, err := store.Get(ctx, []byte("test/a"))
	if err != nil || string(v) != "1" {
		t.Fatalf("get: %q %v", v, err)
	}

	if err := store.ApplyBatch(ctx, []storage.Mutation{{Key: []byte("test/a")}}); err != nil {
		t.Fatalf("delete batch: %v", err)
	}

	var keys []string
	err = store.Iterate(ctx, []byte("test/"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(keys) != 1 || keys[0] != "test/b" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestStoreProgressState(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveState(ctx, "test-progress", 42); err != nil {
		t.Fatalf("save: %v", err)
	}
	ts, ok, err := store.LoadState(ctx, "test-progress")
	if err != nil || !ok || ts != 42 {
		t.Fatalf("load: %d %v %v", ts, ok, err)
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(nil) {
		t.Fatalf("nil error is not retryable")
	}
	if Retryable(context.Canceled) {
		t.Fatalf("cancellation is not retryable")
	}
	if !Retryable(context.DeadlineExceeded) {
		t.Fatalf("timeouts are retryable")
	}
	if Retryable(errors.New("duplicate key")) {
		t.Fatalf("plain errors are not retryable")
	}
}
