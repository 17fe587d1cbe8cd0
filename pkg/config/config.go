package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/presence/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// No .presence/ directory: LoadConfig returns defaults and SaveConfig errors.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in TOML
// section order.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target
// .presence/ directory. If the file does not exist it returns
// NewDefaultConfig() so callers always receive a fully-populated Config.
// Fields explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills empty fields in cfg with values from NewDefaultConfig().
// Boolean keys are left alone since false is their default.
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	for _, key := range orderedKeys {
		info := configKeys[key]
		if info.get(cfg) != "" {
			continue
		}
		if def := info.get(defaults); def != "" {
			_ = info.set(cfg, def)
		}
	}
}

// SaveConfig replaces config.toml in the target .presence/ directory. The
// file is written beside it and renamed into place.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	tmp := c.targetPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, c.targetPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key or the value does not parse.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a Config with sane defaults for the named provider preset.
// Supported presets: "openai", "anthropic", "ollama".
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "openai":
		cfg.LLM = LLMConfig{Provider: "openai", Model: "gpt-4o"}
		cfg.Judge = LLMConfig{Provider: "openai", Model: "gpt-4o-mini"}

	case "anthropic":
		cfg.LLM = LLMConfig{Provider: "anthropic", Model: "claude-sonnet-4-5"}
		cfg.Judge = LLMConfig{Provider: "anthropic", Model: "claude-haiku-4-5"}

	case "ollama":
		cfg.LLM = LLMConfig{Provider: "ollama", Model: "llama3.2", BaseURL: defaultUpstream}
		cfg.Embedding = EmbeddingConfig{
			Provider:   "ollama",
			Target:     defaultUpstream,
			Model:      "nomic-embed-text",
			Dimensions: 768,
		}

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: openai, anthropic, ollama)", name)
	}

	return cfg, nil
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"openai", "anthropic", "ollama"}
}

// ParseConfigTOML parses raw TOML bytes into a Config. Keys presence does
// not read are an error, as is a version other than CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	var undecoded []string
	for _, k := range md.Undecoded() {
		undecoded = append(undecoded, k.String())
	}
	if unknown := unknownKeys(undecoded); len(unknown) > 0 {
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(unknown, ", "))
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}

// JudgeLLM returns the judge model settings with empty fields taken from the
// generation model.
func (c *Config) JudgeLLM() LLMConfig {
	j := c.Judge
	if j.Provider == "" {
		j.Provider = c.LLM.Provider
	}
	if j.Model == "" && j.Provider == c.LLM.Provider {
		j.Model = c.LLM.Model
	}
	if j.BaseURL == "" && j.Provider == c.LLM.Provider {
		j.BaseURL = c.LLM.BaseURL
	}
	return j
}
