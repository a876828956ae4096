// Package vars holds build-time variables populated via the linker (ldflags).
//
//	go build -ldflags "-X github.com/woozymasta/legacyping/internal/vars.Version=v1.0.0 \
//	  -X github.com/woozymasta/legacyping/internal/vars.Commit=$(git rev-parse HEAD) \
//	  -X github.com/woozymasta/legacyping/internal/vars._revision=$(git rev-list --count HEAD) \
//	  -X github.com/woozymasta/legacyping/internal/vars._buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package vars

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// License of the project
const License = "AGPL-3.0"

var (
	// Name of the project
	Name = "legacyping"

	// Version is the git tag, e.g. v1.2.3
	Version = "dev"

	// Commit is the full or short git SHA
	Commit = "unknown"

	// Revision is the count of commits
	Revision = 0

	// BuildTime in UTC
	BuildTime = time.Unix(0, 0).UTC()

	// URL to repository (https)
	URL = "https://github.com/woozymasta/legacyping"

	// string forms set by the linker, parsed in init
	_revision  string
	_buildTime string
)

// BuildInfo is the JSON form of the build variables, served by /api/version.
type BuildInfo struct {
	// betteralign:ignore

	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Commit      string    `json:"commit"`
	CommitShort string    `json:"commit_short,omitempty"`
	Revision    int       `json:"revision,omitempty"`
	BuildTime   time.Time `json:"build_time,omitempty"`
	URL         string    `json:"url,omitempty"`
	License     string    `json:"license,omitempty"`
}

func init() {
	if n, err := strconv.Atoi(_revision); err == nil {
		Revision = n
	}

	if t, err := time.Parse(time.RFC3339, _buildTime); err == nil {
		BuildTime = t.UTC()
	}
}

// Print writes the build information to the standard output.
func Print() {
	Fprint(os.Stdout)
}

// Fprint writes the build information to w.
func Fprint(w io.Writer) {
	_, _ = fmt.Fprintf(w, "name:     %s\nurl:      %s\nfile:     %s\nversion:  %s\ncommit:   %s\nrevision: %d\nbuilt:    %s\nlicense:  %s\n",
		Name, URL, os.Args[0], Version, Commit, Revision, BuildTime.Format(time.RFC3339), License)
}

// Info returns the build metadata.
func Info() BuildInfo {
	return BuildInfo{
		Name:        Name,
		Version:     Version,
		Commit:      Commit,
		CommitShort: CommitShort(),
		Revision:    Revision,
		BuildTime:   BuildTime,
		URL:         URL,
		License:     License,
	}
}

// UserAgent returns "name/version" for outgoing HTTP requests.
func UserAgent() string {
	return Name + "/" + Version
}

// CommitShort returns the first 7 characters of the git commit hash.
func CommitShort() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}

	return Commit
}
