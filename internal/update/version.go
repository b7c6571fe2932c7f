package update

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blang/semver/v4"

	appErrors "updatesvc/internal/errors"
)

// Version represents a normalized release version.
//
// Only Major, Minor and Patch take part in ordering. Prerelease and Build are
// carried for display; callers must not rely on them to order releases.
type Version struct {
	Major      uint64
	Minor      uint64
	Patch      uint64
	Prerelease string
	Build      string
	Raw        string
}

// Ordering is the result of comparing two versions.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// String returns a readable name for the ordering.
func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Greater:
		return "greater"
	default:
		return "equal"
	}
}

// maxComponents is the number of numeric components that are significant.
const maxComponents = 3

// Normalize parses a free-form version string such as "v1.2", "release-1.2.3"
// or "1.2.3-beta.1". Leading non-digit characters are stripped, up to three
// dot-separated numeric components are read and missing trailing components
// default to zero. Anything after the numeric core is kept as prerelease or
// build metadata.
func Normalize(raw string) (Version, error) {
	s := strings.TrimSpace(raw)
	start := strings.IndexFunc(s, isDigit)
	if start < 0 {
		return Version{}, invalidVersionError(raw)
	}
	s = s[start:]

	core, suffix := s, ""
	if end := strings.IndexFunc(s, func(r rune) bool { return r != '.' && !isDigit(r) }); end >= 0 {
		core, suffix = s[:end], s[end:]
	}
	core = strings.TrimRight(core, ".")

	var nums [maxComponents]uint64
	for i, part := range strings.Split(core, ".") {
		if i == maxComponents {
			break
		}
		if part == "" {
			return Version{}, invalidVersionError(raw)
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Version{}, invalidVersionError(raw)
		}
		nums[i] = n
	}

	pre, build := splitSuffix(suffix)
	return Version{
		Major:      nums[0],
		Minor:      nums[1],
		Patch:      nums[2],
		Prerelease: pre,
		Build:      build,
		Raw:        raw,
	}, nil
}

// MustNormalize is like Normalize but panics on error. Intended for constants
// and tests.
func MustNormalize(raw string) Version {
	v, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare orders a and b by their numeric components.
func Compare(a, b Version) Ordering {
	return Ordering(a.Compare(b))
}

// String returns the version as a string with 'v' prefix.
func (v Version) String() string {
	base := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		base += "-" + v.Prerelease
	}
	if v.Build != "" {
		base += "+" + v.Build
	}
	return base
}

// Compare compares two versions, ignoring prerelease and build tags.
// Returns:
//
//	-1 if v < other
//	 0 if v == other
//	 1 if v > other
func (v Version) Compare(other Version) int {
	return v.core().Compare(other.core())
}

// LessThan returns true if v < other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

// GreaterThan returns true if v > other.
func (v Version) GreaterThan(other Version) bool {
	return v.Compare(other) > 0
}

// Equal returns true if v == other.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// IsZero reports whether v is the zero value.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0 && v.Patch == 0 && v.Raw == ""
}

func (v Version) core() semver.Version {
	return semver.Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
}

// splitSuffix separates the text after the numeric core into prerelease and
// build parts. Well-formed semver suffixes are validated by the semver parser;
// anything else is kept verbatim as a prerelease label.
func splitSuffix(suffix string) (pre, build string) {
	if suffix == "" {
		return "", ""
	}
	if suffix[0] == '-' || suffix[0] == '+' {
		if sv, err := semver.Parse("0.0.0" + suffix); err == nil {
			pres := make([]string, 0, len(sv.Pre))
			for _, p := range sv.Pre {
				pres = append(pres, p.String())
			}
			return strings.Join(pres, "."), strings.Join(sv.Build, ".")
		}
	}
	rest := strings.TrimLeft(suffix, "-_. ")
	pre, build, _ = strings.Cut(rest, "+")
	return pre, build
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func invalidVersionError(raw string) error {
	return appErrors.New(appErrors.CodeInvalidVersion, fmt.Sprintf("invalid version format: %q", raw), nil)
}
