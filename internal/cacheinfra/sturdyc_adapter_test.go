package cacheinfra

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Config{
		Capacity:           100,
		NumShards:          2,
		TTL:                time.Minute,
		EvictionPercentage: 10,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}
	if cfg.NumShards != 64 {
		t.Errorf("expected NumShards to be 64, got %d", cfg.NumShards)
	}
	if cfg.TTL != 30*time.Minute {
		t.Errorf("expected TTL to be 30 minutes, got %v", cfg.TTL)
	}
	if cfg.EvictionInterval != time.Minute {
		t.Errorf("expected EvictionInterval to be 1 minute, got %v", cfg.EvictionInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero capacity", mutate: func(c *Config) { c.Capacity = 0 }, wantError: true},
		{name: "negative shards", mutate: func(c *Config) { c.NumShards = -1 }, wantError: true},
		{name: "zero ttl", mutate: func(c *Config) { c.TTL = 0 }, wantError: true},
		{name: "eviction zero", mutate: func(c *Config) { c.EvictionPercentage = 0 }, wantError: true},
		{name: "eviction over 100", mutate: func(c *Config) { c.EvictionPercentage = 101 }, wantError: true},
		{name: "negative eviction interval", mutate: func(c *Config) { c.EvictionInterval = -time.Second }, wantError: true},
		{name: "default eviction interval", mutate: func(c *Config) { c.EvictionInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
			if _, err := NewStore(cfg); (err != nil) != tt.wantError {
				t.Errorf("NewStore() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok := store.Get(ctx, "query::track::1"); ok {
		t.Fatal("expected miss on empty store")
	}
	if err := store.Set(ctx, "query::track::1", "record"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := store.Get(ctx, "query::track::1"); !ok || v != "record" {
		t.Errorf("expected stored record, got %v (%v)", v, ok)
	}
	if store.Size() != 1 {
		t.Errorf("expected size 1, got %d", store.Size())
	}

	if err := store.Set(ctx, "query::track::1", "replaced"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := store.Get(ctx, "query::track::1"); v != "replaced" {
		t.Errorf("expected overwrite, got %v", v)
	}

	if err := store.Delete(ctx, "query::track::1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := store.Get(ctx, "query::track::1"); ok {
		t.Error("expected miss after delete")
	}
	if err := store.Delete(ctx, "never-set"); err != nil {
		t.Errorf("deleting an absent key should not fail: %v", err)
	}
}

func TestStore_SetEmptyKey(t *testing.T) {
	store := newTestStore(t)
	if err := store.Set(context.Background(), "", 1); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestStore_KeysAndDeleteByPrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{
		"query::track::1",
		"query::track::2",
		"query::user::1",
		"lineup::feed",
		"lineup::feed::map[1]:{filter=all}",
	} {
		if err := store.Set(ctx, key, true); err != nil {
			t.Fatalf("Set(%q): %v", key, err)
		}
	}

	got := store.Keys("lineup::")
	sort.Strings(got)
	if len(got) != 2 || got[0] != "lineup::feed" {
		t.Errorf("unexpected lineup keys %v", got)
	}
	if n := len(store.Keys("")); n != 5 {
		t.Errorf("expected 5 keys, got %d", n)
	}

	if err := store.DeleteByPrefix(ctx, "query::track::"); err != nil {
		t.Fatalf("DeleteByPrefix: %v", err)
	}

	tests := []struct {
		key  string
		want bool
	}{
		{"query::track::1", false},
		{"query::track::2", false},
		{"query::user::1", true},
		{"lineup::feed", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if _, ok := store.Get(ctx, tt.key); ok != tt.want {
				t.Errorf("present = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestStore_InvalidateKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_ = store.Set(ctx, key, key)
	}
	if err := store.InvalidateKeys(ctx, []string{"a", "c", "missing"}); err != nil {
		t.Fatalf("InvalidateKeys: %v", err)
	}
	if _, ok := store.Get(ctx, "b"); !ok {
		t.Error("expected b to survive")
	}
	if store.Size() != 1 {
		t.Errorf("expected one record left, got %d", store.Size())
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	store, err := NewStore(Config{
		Capacity:           10,
		NumShards:          1,
		TTL:                20 * time.Millisecond,
		EvictionPercentage: 10,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()

	_ = store.Set(ctx, "lineup::feed", "snapshot")
	time.Sleep(50 * time.Millisecond)

	if _, ok := store.Get(ctx, "lineup::feed"); ok {
		t.Error("expected record to expire after TTL")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "query::track::" + string(rune('a'+n))
			for j := 0; j < 50; j++ {
				_ = store.Set(ctx, key, j)
				store.Get(ctx, key)
				if j%10 == 0 {
					_ = store.DeleteByPrefix(ctx, "query::user::")
				}
			}
		}(i)
	}
	wg.Wait()

	if n := len(store.Keys("query::track::")); n != 20 {
		t.Errorf("expected 20 track records, got %d", n)
	}
}
