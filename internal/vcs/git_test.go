package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSourceRepo creates a repository with one commit carrying gren.json and
// the given lightweight tags.
func newSourceRepo(t *testing.T, tags ...string) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "gren.json"), []byte(`{"type":"package"}`), 0o644))
	_, err = wt.Add("gren.json")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	for _, tag := range tags {
		_, err := repo.CreateTag(tag, hash, nil)
		require.NoError(t, err)
	}
	return dir
}

func newTestClient() *Client {
	c := NewClient(5*time.Second, 10*time.Second)
	// The in-process file transport does not serve shallow clones.
	c.depth = 0
	return c
}

func TestListTags(t *testing.T) {
	src := newSourceRepo(t, "v1.1.0", "1.0.0", "nightly")

	tags, err := newTestClient().ListTags(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0", "nightly", "v1.1.0"}, tags)
}

func TestListTagsMissingRepository(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	_, err := newTestClient().ListTags(context.Background(), missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
}

func TestCloneExactTag(t *testing.T) {
	src := newSourceRepo(t, "1.0.0")
	dest := t.TempDir()

	tag, err := newTestClient().Clone(context.Background(), src, "1.0.0", dest)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", tag)
	assert.FileExists(t, filepath.Join(dest, "gren.json"))
}

func TestCloneFallsBackToPrefixedTag(t *testing.T) {
	src := newSourceRepo(t, "v2.0.0")
	dest := t.TempDir()

	tag, err := newTestClient().Clone(context.Background(), src, "2.0.0", dest)
	require.NoError(t, err)
	assert.Equal(t, "v2.0.0", tag)
	assert.FileExists(t, filepath.Join(dest, "gren.json"))
}

func TestCloneMissingTag(t *testing.T) {
	src := newSourceRepo(t, "1.0.0")

	_, err := newTestClient().Clone(context.Background(), src, "3.0.0", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestCloneHonoursCancellation(t *testing.T) {
	src := newSourceRepo(t, "1.0.0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient().Clone(ctx, src, "1.0.0", t.TempDir())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTagNotFound)
}
