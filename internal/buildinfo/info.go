package buildinfo

// Set at link time with -ldflags "-X .../internal/buildinfo.Version=...".
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = ""
)

type Info struct {
	Service    string `json:"service"`
	Version    string `json:"version"`
	CommitHash string `json:"commitHash,omitempty"`
	BuildTime  string `json:"buildTime,omitempty"`
}

func GetBuildInfo() Info {
	return Info{
		Service:    "iexec-result-proxy",
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
	}
}
