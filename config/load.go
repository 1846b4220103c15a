package config

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables read by Load. Nested keys are
// separated by a double underscore:
//
//	ENTITYCACHE_LEGACY__DRIVER=sqlite3            -> legacy.driver
//	ENTITYCACHE_QUERIES__ACCOUNT__GC_WINDOW=48h   -> queries.account.gc_window
const EnvPrefix = "ENTITYCACHE_"

// Load layers the defaults, the YAML file at path (skipped when path is
// empty) and the environment, then validates the result.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, errors.Wrap(err, errors.CategoryInternal, "load config defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, errors.Wrap(err, errors.CategoryBadInput, "load config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, errors.Wrap(err, errors.CategoryInternal, "load config environment")
	}

	// Output is not loadable; start from the default writer.
	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.CategoryBadInput, "decode config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
