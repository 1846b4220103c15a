package cache

import (
	"context"
	"testing"
	"time"
)

type record struct {
	Refs []string
}

func newTestService(t *testing.T) CacheService {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Capacity = 100
	cfg.NumShards = 2
	svc, err := NewCacheService(cfg)
	if err != nil {
		t.Fatalf("NewCacheService: %v", err)
	}
	return svc
}

func TestGet_Typed(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_ = svc.Set(ctx, "track::1", 7)
	_ = svc.Set(ctx, "track::2", "seven")
	_ = svc.Set(ctx, "track::3", nil)

	tests := []struct {
		name   string
		key    string
		want   int
		wantOK bool
	}{
		{name: "hit", key: "track::1", want: 7, wantOK: true},
		{name: "wrong type is a miss", key: "track::2", want: 0, wantOK: false},
		{name: "nil value is a miss", key: "track::3", want: 0, wantOK: false},
		{name: "absent", key: "track::4", want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Get[int](ctx, svc, tt.key)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Get(%q) = %v, %v; want %v, %v", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestGet_StructValue(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	keys := NewDefaultKeySerializer()

	key := keys.SerializeKey("lineup", "feed", map[string]string{"filter": "all"})
	if err := svc.Set(ctx, key, record{Refs: []string{"track:1"}}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := Get[record](ctx, svc, key)
	if !ok || len(got.Refs) != 1 || got.Refs[0] != "track:1" {
		t.Errorf("unexpected record %+v (%v)", got, ok)
	}
	if _, ok := Get[*record](ctx, svc, key); ok {
		t.Error("pointer lookup of a value record must miss")
	}
}

func TestCacheService_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	keys := NewDefaultKeySerializer()

	for _, k := range []string{
		keys.SerializeKey("query", "track", 1),
		keys.SerializeKey("query", "track", 2),
		keys.SerializeKey("query", "user", 1),
		keys.SerializeKey("lineup", "feed"),
	} {
		if err := svc.Set(ctx, k, time.Now()); err != nil {
			t.Fatalf("Set(%q): %v", k, err)
		}
	}

	if err := svc.DeleteByPrefix(ctx, Prefix(keys, "query", "track")); err != nil {
		t.Fatalf("DeleteByPrefix: %v", err)
	}

	tests := []struct {
		key  string
		want bool
	}{
		{keys.SerializeKey("query", "track", 1), false},
		{keys.SerializeKey("query", "track", 2), false},
		{keys.SerializeKey("query", "user", 1), true},
		{keys.SerializeKey("lineup", "feed"), true},
	}
	for _, tt := range tests {
		if _, ok := svc.Get(ctx, tt.key); ok != tt.want {
			t.Errorf("%s present = %v, want %v", tt.key, ok, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "zero capacity", mutate: func(c *Config) { c.Capacity = 0 }, wantErr: true},
		{name: "zero shards", mutate: func(c *Config) { c.NumShards = 0 }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.TTL = 0 }, wantErr: true},
		{name: "eviction over 100", mutate: func(c *Config) { c.EvictionPercentage = 101 }, wantErr: true},
		{name: "negative sweep", mutate: func(c *Config) { c.EvictionInterval = -time.Second }, wantErr: true},
		{name: "default sweep", mutate: func(c *Config) { c.EvictionInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if _, err := NewCacheService(cfg); (err != nil) != tt.wantErr {
				t.Errorf("NewCacheService() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
