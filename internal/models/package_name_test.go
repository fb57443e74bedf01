package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePackageName(t *testing.T) {
	for _, ok := range []string{"acme/widgets", "gren-lang/core", "a_b/c.d", " acme/widgets "} {
		_, err := ParsePackageName(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "widgets", "acme/", "/widgets", "acme/wid/gets", "../etc", "acme/.hidden", "acme/wid gets"} {
		_, err := ParsePackageName(bad)
		assert.ErrorIs(t, err, ErrInvalidPackageName, bad)
	}
}

func TestGitHubURL(t *testing.T) {
	u, err := GitHubURL("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets.git", u)

	_, err = GitHubURL("acme")
	assert.ErrorIs(t, err, ErrInvalidPackageName)
}

func TestNameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://github.com/acme/widgets.git": "acme/widgets",
		"git@github.com:acme/widgets.git":     "acme/widgets",
		"ssh://git@github.com/acme/widgets":   "acme/widgets",
	}
	for in, want := range cases {
		got, err := NameFromURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
