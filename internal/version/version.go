// Package version carries build metadata stamped at link time:
//
//	go build -ldflags "-X github.com/Arthur-Meier/AgroTech/internal/version.Version=v0.3.0 ..."
package version

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)
