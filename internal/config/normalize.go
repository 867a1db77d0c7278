package config

import (
	"fmt"
	"strings"
)

// Normalize canonicalizes enum-like fields in place and returns a warning
// for every value that was rewritten. Unknown store and surface values are
// left for Validate to reject; unknown log settings fall back to defaults.
func Normalize(cfg *Config) []string {
	var warnings []string
	note := func(msg string, changed bool) {
		if changed {
			warnings = append(warnings, msg)
		}
	}

	note(storeBackendNormalizer.Canonicalize("store.backend", &cfg.Store.Backend))
	note(recomputeSurfaceNormalizer.Canonicalize("recompute.surface", &cfg.Recompute.Surface))

	if raw := cfg.Logging.Level; raw != "" {
		if v := NormalizeLogLevel(string(raw)); v != raw {
			warnings = append(warnings, fmt.Sprintf("logging.level %q normalized to %q", raw, v))
			cfg.Logging.Level = v
		}
	}
	if raw := cfg.Logging.Format; raw != "" {
		if v := NormalizeLogFormat(string(raw)); v != raw {
			warnings = append(warnings, fmt.Sprintf("logging.format %q normalized to %q", raw, v))
			cfg.Logging.Format = v
		}
	}
	if raw := cfg.Retry.Mode; raw != "" {
		cfg.Retry.Mode = strings.ToLower(strings.TrimSpace(raw))
	}
	cfg.Store.CanonicalNamespace = strings.TrimSpace(cfg.Store.CanonicalNamespace)
	return warnings
}
