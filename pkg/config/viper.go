package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/presence/pkg/dotdir"
)

// EnvPrefix is prepended to every environment override, e.g.
// PRESENCE_GATE_THRESHOLD.
const EnvPrefix = "PRESENCE"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the PRESENCE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (PRESENCE_GATE_THRESHOLD, PRESENCE_API_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper resolves every supported key through v's precedence chain into a
// Config. A value that does not parse for its key, a key presence does not
// read and a Config failing Validate are errors.
func FromViper(v *viper.Viper) (*Config, error) {
	if unknown := unknownKeys(v.AllKeys()); len(unknown) > 0 {
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(unknown, ", "))
	}

	cfg := &Config{Version: CurrentV}
	for _, key := range orderedKeys {
		if err := configKeys[key].set(cfg, v.GetString(key)); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	for _, key := range orderedKeys {
		v.SetDefault(key, configKeys[key].get(d))
	}
}
