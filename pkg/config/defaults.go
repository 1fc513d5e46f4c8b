package config

// Storage defaults.
const (
	DefaultStorePath     = ".gitgraft/store"
	DefaultStoreInMemory = false
	DefaultBookmarksPath = ".gitgraft/bookmarks.db"
)

// Pipeline defaults.
const (
	DefaultImportWorkers      = 8
	DefaultRetryMaxAttempts   = 3
	DefaultDerivedMaxAttempts = 5
	DefaultLandMaxAttempts    = 5
)

// Logging defaults.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false
)

// DefaultDerivedKinds lists the derived data required before merging.
func DefaultDerivedKinds() []string {
	return []string{"manifest", "changeset_info"}
}
