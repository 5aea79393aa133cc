// Package buildinfo exposes the version and identity of the SightingDB
// binaries.
//
// Version, Commit and BuildTime may be injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/sightingdb-go/internal/infra/buildinfo.Version=0.1.0"
//
// Without them Commit and BuildTime come from the VCS stamp of the module
// build.
package buildinfo
