package version

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Build information for the modpatch CLI. Override with -ldflags.
var (
	// Version is the semantic version of the CLI.
	Version = "0.3.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)
)

// Colored renders Version with each numeric component colored. Anything
// after the patch number is left as is.
func Colored() string {
	parts := strings.SplitN(Version, ".", 3)
	if len(parts) != 3 {
		return Version
	}
	patch, rest := parts[2], ""
	if i := strings.IndexAny(patch, "-+"); i >= 0 {
		patch, rest = patch[:i], patch[i:]
	}
	return versionMajorColor.Sprint(parts[0]) + "." +
		versionMinorColor.Sprint(parts[1]) + "." +
		versionPatchColor.Sprint(patch) + rest
}

// Line is the one-line form printed by "modpatch version".
func Line(colored bool) string {
	v := Version
	if colored {
		v = Colored()
	}
	out := "modpatch " + v
	if GitCommit != "" {
		out += fmt.Sprintf(" (%s)", shortCommit(GitCommit))
	}
	if BuildDate != "" {
		out += " built " + BuildDate
	}
	return out
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}
