package version

// Set at build time with -ldflags "-X github.com/charlie0129/drip/pkg/version.Version=..."
var (
	Version   = "UNKNOWN"
	GitCommit = "UNKNOWN"
)
