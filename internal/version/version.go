// Package version resolves the binary version reported by the CLI and the
// health endpoint.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"muza/internal/config"
)

var (
	once   sync.Once
	cached string
)

// Version returns the best-effort semantic version of the running binary.
// The lookup order is:
//  1. Explicit MUZA_VERSION environment variable (useful for custom builds)
//  2. Go build information when available (e.g. go install muza@vX)
//  3. A development fallback string
func Version() string {
	once.Do(func() {
		cached = detect(config.DefaultEnvLookup)
	})
	return cached
}

func detect(env config.EnvLookup) string {
	if v, ok := env("MUZA_VERSION"); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return fmt.Sprintf("dev-%s", setting.Value)
			}
		}
	}

	return "development"
}
