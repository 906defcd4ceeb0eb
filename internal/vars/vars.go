// Package vars carries the srcmaster build stamp. The variables are set with
// -ldflags "-X github.com/woozymasta/srcmaster/internal/vars.Version=..." at release time.
package vars

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// License of the project
const License = "MIT"

var (
	// Name is the binary family, also used in the User-Agent of outbound HTTP requests.
	Name = "srcmaster"

	// Version is the release tag, "dev" for local builds.
	Version = "dev"

	// Commit is the git SHA the binary was built from.
	Commit = "unknown"

	// URL of the repository
	URL = "https://github.com/woozymasta/srcmaster"

	// BuildTime is parsed from _buildTime (RFC3339) when stamped.
	BuildTime time.Time

	// Revision is the commit count, parsed from _revision when stamped.
	Revision int

	_revision  string
	_buildTime string
)

func init() {
	if n, err := strconv.Atoi(_revision); err == nil {
		Revision = n
	}
	if t, err := time.Parse(time.RFC3339, _buildTime); err == nil {
		BuildTime = t.UTC()
	}
}

// BuildInfo is the build stamp served by GET /api/version.
type BuildInfo struct {
	BuildTime time.Time `json:"build_time,omitzero"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	GoVersion string    `json:"go_version"`
	Revision  int       `json:"revision,omitempty"`
}

// Ver returns the current build stamp.
func Ver() BuildInfo {
	return BuildInfo{
		Name:      Name,
		Version:   Version,
		Commit:    CommitShort(),
		Revision:  Revision,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// Print writes the -v output of srcmaster and srcquery.
func Print() {
	fmt.Printf("%s %s (%s", Name, Version, CommitShort())
	if Revision > 0 {
		fmt.Printf(", r%d", Revision)
	}
	if !BuildTime.IsZero() {
		fmt.Printf(", built %s", BuildTime.Format(time.RFC3339))
	}
	fmt.Printf(") %s %s/%s\n%s, %s license\nbinary: %s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH, URL, License, os.Args[0])
}

// UserAgent identifies srcmaster tools to HTTP servers, e.g. "srcmaster/v1.2.3".
func UserAgent() string {
	return Name + "/" + Version
}

// CommitShort returns the first 7 characters of Commit.
func CommitShort() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}

	return Commit
}
