package kernel

import (
	"fmt"

	"github.com/kolkov/uniproc/internal/scenario"
)

// Version information for uniproc.
const (
	// Version is the current release.
	Version = "0.3.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 3

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info describes this build.
type Info struct {
	// Version is the release string.
	Version string

	// ScenarioFormat is the newest scenario file version accepted.
	ScenarioFormat string

	// Priorities is the valid priority range, "min-max".
	Priorities string
}

// GetInfo returns information about this build.
//
// Example:
//
//	info := kernel.GetInfo()
//	fmt.Printf("uniproc %s (scenarios %s)\n", info.Version, info.ScenarioFormat)
func GetInfo() Info {
	return Info{
		Version:        Version,
		ScenarioFormat: scenario.SupportedVersion,
		Priorities:     fmt.Sprintf("%d-%d", PriMin, PriMax),
	}
}
