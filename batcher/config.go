package batcher

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
)

// Config tunes the debounce window and batch limits.
type Config struct {
	// Wait is the debounce window. Every Load issued within the window of the
	// first pending key is served by the same bulk fetch.
	Wait time.Duration `koanf:"wait"`

	// MaxBatch flushes the pending batch early once it holds this many
	// distinct keys. Zero means unlimited.
	MaxBatch int `koanf:"max_batch"`

	// FetchTimeout bounds a single bulk fetch. The fetch runs detached from
	// the callers' contexts so one caller giving up does not fail the others.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// PartitionTTL is how long an idle per-partition batcher is kept by a
	// Registry.
	PartitionTTL time.Duration `koanf:"partition_ttl"`
}

// DefaultConfig returns the batching defaults.
func DefaultConfig() Config {
	return Config{
		Wait:         10 * time.Millisecond,
		MaxBatch:     100,
		FetchTimeout: 30 * time.Second,
		PartitionTTL: 10 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.Wait, validation.Required, validation.Min(time.Millisecond)),
			validation.Field(&c.MaxBatch, validation.Min(0)),
			validation.Field(&c.FetchTimeout, validation.Required),
			validation.Field(&c.PartitionTTL, validation.Required),
		)
	}, "invalid batcher config"); err != nil {
		return err
	}
	return nil
}
