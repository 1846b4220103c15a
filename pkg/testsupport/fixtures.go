package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-entity-cache/entity"
)

// Catalog is the on-disk shape of a remote fixture: raw payloads as the
// backend would serve them, plus the content of named lineups.
type Catalog struct {
	Tracks      []*entity.Track      `json:"tracks"`
	Users       []*entity.User       `json:"users"`
	Collections []*entity.Collection `json:"collections"`
	Lineups     []LineupFixture      `json:"lineups"`
}

// LineupFixture is the ordered content of one lineup for one set of params.
type LineupFixture struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
	Refs   []entity.Ref      `json:"refs"`
}

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
func LoadFixtureJSON(t testing.TB, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// LoadCatalog reads a Catalog fixture.
func LoadCatalog(t testing.TB, path string) Catalog {
	t.Helper()

	var c Catalog
	LoadFixtureJSON(t, path, &c)
	return c
}

// Seed loads every payload and lineup of c into f.
func (f *FakeRemote) Seed(c Catalog) {
	f.AddUsers(c.Users...)
	f.AddTracks(c.Tracks...)
	f.AddCollections(c.Collections...)
	for _, l := range c.Lineups {
		f.SetLineup(l.Name, l.Params, l.Refs...)
	}
}

// SeedFixture is LoadCatalog followed by Seed.
func (f *FakeRemote) SeedFixture(t testing.TB, path string) Catalog {
	t.Helper()

	c := LoadCatalog(t, path)
	f.Seed(c)
	return c
}

// WriteGolden writes test output to a golden file, creating its directory.
func WriteGolden(t testing.TB, path string, data []byte) {
	t.Helper()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create directory %s: %v", dir, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write golden file to %s: %v", path, err)
	}
}

// CompareWithGolden compares actual with the content of a golden file.
// If the golden file doesn't exist, it is created with actual.
func CompareWithGolden(t testing.TB, path string, actual []byte) {
	t.Helper()

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Logf("Golden file %s does not exist, creating it", path)
			WriteGolden(t, path, actual)
			return
		}
		t.Fatalf("failed to read golden file %s: %v", path, err)
	}

	if string(actual) != string(expected) {
		t.Errorf("output mismatch for %s:\nExpected:\n%s\nActual:\n%s", path, expected, actual)
	}
}

// CompareJSONWithGolden marshals v with indentation and compares it with a
// golden file.
func CompareJSONWithGolden(t testing.TB, path string, v any) {
	t.Helper()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal JSON for golden file %s: %v", path, err)
	}
	CompareWithGolden(t, path, append(data, '\n'))
}

// TempFile creates a temporary file with the given content. It is removed
// when the test ends.
func TempFile(t testing.TB, content []byte) string {
	t.Helper()

	tmpfile, err := os.CreateTemp(t.TempDir(), "test-*")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpfile.Write(content); err != nil {
		tmpfile.Close()
		t.Fatalf("failed to write to temp file: %v", err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpfile.Name()
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// GoldenPath constructs a path to a golden file relative to the testdata directory.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}
