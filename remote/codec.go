package remote

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-errors"
	hashids "github.com/speps/go-hashids"
)

// CodecConfig configures id encoding.
type CodecConfig struct {
	Salt      string `koanf:"salt"`
	MinLength int    `koanf:"min_length"`
}

// DefaultCodecConfig matches the public API's id scheme.
func DefaultCodecConfig() CodecConfig {
	return CodecConfig{Salt: "azowernasdfoia", MinLength: 5}
}

// Validate checks the configuration.
func (c CodecConfig) Validate() error {
	if err := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.Salt, validation.Required),
			validation.Field(&c.MinLength, validation.Min(0)),
		)
	}, "invalid codec config"); err != nil {
		return err
	}
	return nil
}

// Codec converts numeric ids to the opaque strings the API expects.
type Codec struct {
	h *hashids.HashID
}

// NewCodec builds a codec.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	data := hashids.NewData()
	data.Salt = cfg.Salt
	data.MinLength = cfg.MinLength
	h, err := hashids.NewWithData(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "create id codec")
	}
	return &Codec{h: h}, nil
}

// Encode encodes one id.
func (c *Codec) Encode(id entity.ID) (string, error) {
	if id < 0 {
		return "", errors.New("cannot encode negative id", errors.CategoryBadInput).
			WithMetadata(map[string]any{"id": int64(id)})
	}
	s, err := c.h.EncodeInt64([]int64{int64(id)})
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryBadInput, "encode id")
	}
	return s, nil
}

// EncodeAll encodes ids preserving order.
func (c *Codec) EncodeAll(ids []entity.ID) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		s, err := c.Encode(id)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// Decode decodes one id.
func (c *Codec) Decode(s string) (entity.ID, error) {
	nums, err := c.h.DecodeInt64WithError(s)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryBadInput, "decode id").
			WithMetadata(map[string]any{"encoded": s})
	}
	if len(nums) != 1 {
		return 0, errors.New("encoded id must hold exactly one value", errors.CategoryBadInput).
			WithMetadata(map[string]any{"encoded": s})
	}
	return entity.ID(nums[0]), nil
}
