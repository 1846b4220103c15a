package config

import (
	"testing"
	"time"

	"github.com/goliatone/go-entity-cache/pkg/testsupport"
	"github.com/goliatone/go-entity-cache/query"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Batcher.Wait != 10*time.Millisecond {
		t.Errorf("expected 10ms batch window, got %v", cfg.Batcher.Wait)
	}
	if !cfg.Queries.Account.Infinite() {
		t.Error("expected account query to never go stale")
	}
	if cfg.Legacy.Driver != "memory" {
		t.Errorf("expected memory legacy store, got %q", cfg.Legacy.Driver)
	}
	if cfg.Logging.Output == nil {
		t.Error("expected default log output")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := testsupport.TempFile(t, []byte(`
batcher:
  wait: 25ms
  max_batch: 50
queries:
  entities:
    staleness: 30s
lineup:
  page_size: 20
legacy:
  driver: sqlite3
  dsn: "file::memory:"
remote:
  source_id: discovery-1
`))

	t.Setenv("ENTITYCACHE_BATCHER__MAX_BATCH", "75")
	t.Setenv("ENTITYCACHE_QUERIES__ACCOUNT__GC_WINDOW", "48h")
	t.Setenv("ENTITYCACHE_LINEUP__REMOVE_DELETED", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"file value", cfg.Batcher.Wait, 25 * time.Millisecond},
		{"env overrides file", cfg.Batcher.MaxBatch, 75},
		{"file nested duration", cfg.Queries.Entities.Staleness, 30 * time.Second},
		{"default kept", cfg.Queries.Entities.GCWindow, query.DefaultConfig().GCWindow},
		{"env nested duration", cfg.Queries.Account.GCWindow, 48 * time.Hour},
		{"env bool", cfg.Lineup.RemoveDeleted, false},
		{"file page size", cfg.Lineup.PageSize, 20},
		{"file driver", cfg.Legacy.Driver, "sqlite3"},
		{"file source", cfg.Remote.SourceID, "discovery-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	path := testsupport.TempFile(t, []byte(`
lineup:
  page_size: 0
legacy:
  driver: postgres
`))
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"ENTITYCACHE_LEGACY__DRIVER":              "legacy.driver",
		"ENTITYCACHE_QUERIES__ACCOUNT__GC_WINDOW": "queries.account.gc_window",
		"ENTITYCACHE_REMOTE__SOURCE_ID":           "remote.source_id",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
