package config

import "git.home.luguber.info/inful/dayroll/internal/foundation/normalization"

// StoreBackend selects where preference namespaces live.
type StoreBackend string

const (
	StoreBackendJSON   StoreBackend = "json"
	StoreBackendSQLite StoreBackend = "sqlite"
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendNATS   StoreBackend = "nats"
)

var storeBackendNormalizer = normalization.NewEnum("store backend", StoreBackendJSON, map[string]StoreBackend{
	"json":      StoreBackendJSON,
	"file":      StoreBackendJSON,
	"sqlite":    StoreBackendSQLite,
	"sqlite3":   StoreBackendSQLite,
	"memory":    StoreBackendMemory,
	"nats":      StoreBackendNATS,
	"jetstream": StoreBackendNATS,
})

// RecomputeSurface selects how authoritative recomputes are launched.
type RecomputeSurface string

const (
	RecomputeSurfaceNone    RecomputeSurface = "none"
	RecomputeSurfaceCommand RecomputeSurface = "command"
	RecomputeSurfaceNATS    RecomputeSurface = "nats"
)

var recomputeSurfaceNormalizer = normalization.NewEnum("recompute surface", RecomputeSurfaceNone, map[string]RecomputeSurface{
	"none":    RecomputeSurfaceNone,
	"command": RecomputeSurfaceCommand,
	"exec":    RecomputeSurfaceCommand,
	"nats":    RecomputeSurfaceNATS,
})

// Default namespace layout. The canonical namespace is read first and is
// the only one written; legacy namespaces are read-only fallbacks kept
// for data written by earlier releases.
const DefaultCanonicalNamespace = "progress"

var DefaultLegacyNamespaces = []string{"progress_native", "preferences", "Preferences"}
