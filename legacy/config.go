package legacy

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-entity-cache/legacy/bunstore"
	"github.com/goliatone/go-errors"
)

const DriverMemory = "memory"

var _ Store = (*bunstore.Store)(nil)

// Config selects the legacy store backend.
type Config struct {
	// Driver is one of memory, sqlite3 or postgres.
	Driver string `koanf:"driver"`
	// DSN is the connection string for SQL drivers.
	DSN string `koanf:"dsn"`
	// WriteTimeout bounds each mirrored write.
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// DefaultConfig keeps the legacy store in memory.
func DefaultConfig() Config {
	return Config{
		Driver:       DriverMemory,
		WriteTimeout: 2 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.Driver, validation.Required,
				validation.In(DriverMemory, bunstore.DriverSQLite, bunstore.DriverPostgres)),
			validation.Field(&c.DSN, validation.When(c.Driver != DriverMemory, validation.Required)),
		)
	}, "invalid legacy config"); err != nil {
		return err
	}
	return nil
}

// Open builds the Store described by cfg. SQL stores get their schema
// created. The returned close func releases the backend.
func Open(ctx context.Context, cfg Config) (Store, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if cfg.Driver == DriverMemory {
		return NewMemoryStore(), func() error { return nil }, nil
	}

	s, err := bunstore.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := s.CreateSchema(ctx); err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, s.Close, nil
}
