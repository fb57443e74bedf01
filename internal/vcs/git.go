// Package vcs talks to the git repositories packages are published from.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
)

var (
	// ErrRepositoryNotFound means the remote does not exist or refuses to
	// show itself to anonymous clients.
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrTagNotFound        = errors.New("tag not found")
)

// Client lists and clones public repositories over any transport go-git
// supports.
type Client struct {
	listTimeout  time.Duration
	cloneTimeout time.Duration
	depth        int
}

func NewClient(listTimeout, cloneTimeout time.Duration) *Client {
	return &Client{
		listTimeout:  listTimeout,
		cloneTimeout: cloneTimeout,
		depth:        1,
	}
}

// ListTags returns the short names of every tag on the remote, sorted.
func (c *Client) ListTags(ctx context.Context, url string) ([]string, error) {
	if c.listTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.listTimeout)
		defer cancel()
	}

	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{url},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{PeelingOption: git.IgnorePeeled})
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, nil
		}
		return nil, fmt.Errorf("list refs of %s: %w", url, classify(err))
	}

	var tags []string
	for _, ref := range refs {
		if ref.Name().IsTag() {
			tags = append(tags, ref.Name().Short())
		}
	}
	sort.Strings(tags)
	return tags, nil
}

// Clone checks out the tag for version into dir, which must exist and be
// empty. Tags are looked up as "<version>" first and "v<version>" second.
// It returns the tag that was used.
func (c *Client) Clone(ctx context.Context, url, version, dir string) (string, error) {
	if c.cloneTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cloneTimeout)
		defer cancel()
	}

	candidates := []string{version, "v" + version}
	for i, tag := range candidates {
		if i > 0 {
			if err := emptyDir(dir); err != nil {
				return "", err
			}
		}
		err := c.cloneTag(ctx, url, tag, dir)
		if err == nil {
			return tag, nil
		}
		if !isMissingRef(err) {
			return "", fmt.Errorf("clone %s at %s: %w", url, tag, classify(err))
		}
	}
	return "", fmt.Errorf("clone %s at %s: %w", url, version, ErrTagNotFound)
}

func (c *Client) cloneTag(ctx context.Context, url, tag, dir string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           url,
		ReferenceName: plumbing.NewTagReferenceName(tag),
		SingleBranch:  true,
		Depth:         c.depth,
		Tags:          git.NoTags,
	})
	return err
}

func isMissingRef(err error) bool {
	return errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, git.NoMatchingRefSpecError{})
}

func classify(err error) error {
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		return fmt.Errorf("%w: %v", ErrRepositoryNotFound, err)
	}
	return err
}

func emptyDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
