package lineup

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
)

// Config controls paging and rendering of a lineup.
type Config struct {
	// PageSize is the number of items requested per page.
	PageSize int `koanf:"page_size"`

	// RemoveDeleted drops tombstoned entities, and entities owned by
	// deactivated users, from Entries. When false they are returned with
	// their deleted flag set.
	RemoveDeleted bool `koanf:"remove_deleted"`
}

// DefaultConfig returns the default lineup configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:      10,
		RemoveDeleted: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.PageSize, validation.Required, validation.Min(1), validation.Max(500)),
		)
	}, "invalid lineup config"); err != nil {
		return err
	}
	return nil
}
