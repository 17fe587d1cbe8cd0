package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	storageDrivers  = []string{"", "sqlite", "postgres", "postgresql", "memory", "inmemory"}
	llmProviders    = []string{"", "openai", "anthropic", "ollama"}
	vectorProviders = []string{"", "sqlitevec", "sqlite-vec", "qdrant", "chroma"}
	eventsProviders = []string{"", "none", "nop", "kafka"}
	embedProviders  = []string{"", "ollama"}
)

// Validate checks the settings no single key can check alone: provider
// names and the settings that depend on each other.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(key, value string, allowed []string) {
		if !slices.Contains(allowed, strings.ToLower(value)) {
			errs = append(errs, fmt.Errorf("unsupported %s %q (supported: %s)",
				key, value, strings.Join(allowed[1:], ", ")))
		}
	}

	oneOf("storage.driver", c.Storage.Driver, storageDrivers)
	oneOf("llm.provider", c.LLM.Provider, llmProviders)
	oneOf("judge.provider", c.Judge.Provider, llmProviders)
	oneOf("vector_store.provider", c.VectorStore.Provider, vectorProviders)
	oneOf("embedding.provider", c.Embedding.Provider, embedProviders)
	oneOf("events.provider", c.Events.Provider, eventsProviders)

	if c.Correlation.Floor >= 1 {
		errs = append(errs, fmt.Errorf("correlation.floor: must be below 1, got %v", c.Correlation.Floor))
	}
	if c.Correlation.Window < 0 {
		errs = append(errs, errors.New("correlation.window: must not be negative"))
	}
	if c.Knowledge.Enabled && c.VectorStore.Provider == "" {
		errs = append(errs, errors.New("knowledge.enabled: requires vector_store.provider"))
	}
	if strings.EqualFold(c.Events.Provider, "kafka") && c.Events.Brokers == "" {
		errs = append(errs, errors.New("events.provider: kafka requires events.brokers"))
	}
	return errors.Join(errs...)
}

// unknownKeys returns the dotted keys in keys that presence does not read,
// sorted. A table is left out when one of its keys is listed.
func unknownKeys(keys []string) []string {
	var out []string
	for _, k := range keys {
		if k == "version" {
			continue
		}
		if _, ok := configKeys[k]; ok {
			continue
		}
		if slices.ContainsFunc(keys, func(other string) bool { return strings.HasPrefix(other, k+".") }) {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
