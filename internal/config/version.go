package config

// Build metadata, injected with -ldflags "-X .../internal/config.Version=...".
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)
