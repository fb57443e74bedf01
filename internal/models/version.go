package models

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// NormalizeVersion validates a git tag as a semantic version and returns its
// canonical form without a leading "v". ok is false for anything that is not
// a full MAJOR.MINOR.PATCH version.
func NormalizeVersion(tag string) (version string, ok bool) {
	tag = strings.TrimSpace(tag)
	v, err := semver.StrictNewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return "", false
	}
	return v.String(), true
}

// VersionGreater reports whether a is a semantically greater version than b.
// An unparsable b is treated as older than any valid a.
func VersionGreater(a, b string) bool {
	va, err := semver.NewVersion(a)
	if err != nil {
		return false
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return true
	}
	return va.GreaterThan(vb)
}
