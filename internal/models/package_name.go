package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	giturls "github.com/whilp/git-urls"
)

var ErrInvalidPackageName = errors.New("invalid package name")

var nameSegment = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ParsePackageName validates an "author/project" name.
func ParsePackageName(s string) (string, error) {
	s = strings.TrimSpace(s)
	author, project, ok := strings.Cut(s, "/")
	if !ok || !nameSegment.MatchString(author) || !nameSegment.MatchString(project) {
		return "", fmt.Errorf("%w: %q must look like author/project", ErrInvalidPackageName, s)
	}
	return s, nil
}

// GitHubURL is the clone URL of a package hosted on GitHub.
func GitHubURL(name string) (string, error) {
	name, err := ParsePackageName(name)
	if err != nil {
		return "", err
	}
	raw := "https://github.com/" + name + ".git"
	u, err := giturls.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPackageName, err)
	}
	if u.Host != "github.com" || strings.TrimSuffix(strings.TrimPrefix(u.Path, "/"), ".git") != name {
		return "", fmt.Errorf("%w: %q does not map to a repository", ErrInvalidPackageName, name)
	}
	return u.String(), nil
}

// NameFromURL derives "author/project" from a git remote in any of the
// forms git accepts (https, ssh, scp-like).
func NameFromURL(remote string) (string, error) {
	u, err := giturls.Parse(remote)
	if err != nil {
		return "", fmt.Errorf("parse git url %q: %w", remote, err)
	}
	path := strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
	return ParsePackageName(path)
}
