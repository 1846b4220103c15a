package query

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
)

// InfiniteStaleness keeps a value fresh until it is explicitly invalidated.
const InfiniteStaleness time.Duration = -1

// Config is the read policy of one query type.
type Config struct {
	// Staleness is how long a fetched value counts as fresh. Reads of a stale
	// value return it immediately and refetch in the background.
	Staleness time.Duration `koanf:"staleness"`

	// GCWindow is how long a query record survives without being read.
	GCWindow time.Duration `koanf:"gc_window"`

	// Enabled turns the query off entirely when false.
	Enabled bool `koanf:"enabled"`
}

// DefaultConfig is the policy for ordinary entity reads.
func DefaultConfig() Config {
	return Config{
		Staleness: time.Minute,
		GCWindow:  5 * time.Minute,
		Enabled:   true,
	}
}

// AccountConfig is the policy for the signed-in account. It never goes stale
// and must be invalidated after every mutation touching it.
func AccountConfig() Config {
	return Config{
		Staleness: InfiniteStaleness,
		GCWindow:  24 * time.Hour,
		Enabled:   true,
	}
}

// Infinite reports whether values never go stale.
func (c Config) Infinite() bool {
	return c.Staleness == InfiniteStaleness
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.Staleness, validation.By(func(any) error {
				if c.Staleness < 0 && c.Staleness != InfiniteStaleness {
					return validation.NewError("validation_staleness", "must be positive or InfiniteStaleness")
				}
				return nil
			})),
			validation.Field(&c.GCWindow, validation.Required),
		)
	}, "invalid query config"); err != nil {
		return err
	}
	return nil
}

func (c Config) fresh(fetchedAt, now time.Time) bool {
	if c.Infinite() {
		return true
	}
	return now.Sub(fetchedAt) < c.Staleness
}
