package lifecycle

import (
	"fmt"
	"strconv"
	"strings"
)

// Partitions names the two live partitions of one deployed version.
type Partitions struct {
	Static  string
	Runtime string
}

// ForVersion derives partition names from a version tag.
//
// Example:
//
//	ForVersion("v1") // {Static: "static-v1", Runtime: "runtime-v1"}
func ForVersion(version string) (Partitions, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return Partitions{}, fmt.Errorf("version cannot be empty")
	}
	if strings.ContainsAny(version, " :/") {
		return Partitions{}, fmt.Errorf("invalid version %q", version)
	}
	return Partitions{
		Static:  "static-" + version,
		Runtime: "runtime-" + version,
	}, nil
}

// Current reports whether name is one of the live partitions.
func (p Partitions) Current(name string) bool {
	return name == p.Static || name == p.Runtime
}

// Stale filters names down to partitions not owned by this version.
func (p Partitions) Stale(names []string) []string {
	var stale []string
	for _, name := range names {
		if !p.Current(name) {
			stale = append(stale, name)
		}
	}
	return stale
}

// Previous picks the newest other version that still has a static partition
// among names. Versions are ordered by their numeric runs, so v10 sorts after v9.
func (p Partitions) Previous(names []string) (Partitions, bool) {
	var (
		best  Partitions
		found bool
		bestV string
	)
	for _, name := range names {
		version, ok := strings.CutPrefix(name, "static-")
		if !ok || name == p.Static {
			continue
		}
		candidate, err := ForVersion(version)
		if err != nil {
			continue
		}
		if !found || compareVersions(version, bestV) > 0 {
			best, bestV, found = candidate, version, true
		}
	}
	return best, found
}

// compareVersions orders version tags chunk by chunk, comparing digit runs
// numerically and everything else lexically.
func compareVersions(a, b string) int {
	ca, cb := versionChunks(a), versionChunks(b)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		x, y := ca[i], cb[i]
		nx, errX := strconv.ParseUint(x, 10, 64)
		ny, errY := strconv.ParseUint(y, 10, 64)
		switch {
		case errX == nil && errY == nil:
			if nx != ny {
				if nx < ny {
					return -1
				}
				return 1
			}
		case x != y:
			return strings.Compare(x, y)
		}
	}
	switch {
	case len(ca) < len(cb):
		return -1
	case len(ca) > len(cb):
		return 1
	}
	return 0
}

func versionChunks(v string) []string {
	var chunks []string
	start := 0
	for i := 1; i <= len(v); i++ {
		if i == len(v) || isDigit(v[i]) != isDigit(v[i-1]) {
			chunks = append(chunks, v[start:i])
			start = i
		}
	}
	return chunks
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
