//go:build property

package config

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestConfigValidationProperties validates port, timing and path rules.
func TestConfigValidationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("ports inside 0-65535 are accepted", prop.ForAll(
		func(port int) bool {
			cfg := Default()
			cfg.Server.Port = port
			return validateConfig(cfg) == nil
		},
		gen.IntRange(0, 65535),
	))

	properties.Property("ports outside 0-65535 are rejected", prop.ForAll(
		func(port int, negative bool) bool {
			cfg := Default()
			if negative {
				cfg.Server.Port = -port
			} else {
				cfg.Server.Port = 65535 + port
			}
			return validateConfig(cfg) != nil
		},
		gen.IntRange(1, 1_000_000),
		gen.Bool(),
	))

	properties.Property("negative debounce is rejected", prop.ForAll(
		func(ms int64) bool {
			cfg := Default()
			cfg.Watcher.Debounce = -time.Duration(ms) * time.Millisecond
			return validateConfig(cfg) != nil
		},
		gen.Int64Range(1, 10_000),
	))

	properties.Property("traversal in entries is rejected", prop.ForAll(
		func(depth int, name string) bool {
			entry := ""
			for i := 0; i < depth; i++ {
				entry += "../"
			}
			cfg := Default()
			cfg.Render.Entry = entry + "x" + name + ".html"
			return validateConfig(cfg) != nil
		},
		gen.IntRange(1, 5),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
