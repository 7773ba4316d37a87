package version

// Build information set by ldflags
var (
	Version = "dev"     // -X github.com/pobuild/pob/internal/version.Version={{.Version}}
	Commit  = "unknown" // -X github.com/pobuild/pob/internal/version.Commit={{.Commit}}
	Date    = "unknown" // -X github.com/pobuild/pob/internal/version.Date={{.Date}}
)
