package version

// these values are set via ldflags during build
//
//nolint:gochecknoglobals // by design
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

//nolint:gochecknoglobals // by design
var FullVersion = Version + " (" + GitCommit + ") " + BuildDate
