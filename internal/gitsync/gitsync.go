// Package gitsync keeps a local copy of the deployment template repository in
// sync. Provisioning prefers templates from here over the embedded defaults.
package gitsync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/takops/takops/internal/config"
	opserrors "github.com/takops/takops/internal/errors"
)

// Client syncs the template repository into a fixed directory.
type Client struct {
	repoURL string
	ref     string
	dir     string
}

// NewClient builds a sync client from configuration. The local copy lives
// under <state_dir>/templates.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		repoURL: cfg.Templates.RepoURL,
		ref:     cfg.Templates.Ref,
		dir:     TemplatesDir(cfg),
	}
}

// TemplatesDir returns where synced templates live for a given configuration.
func TemplatesDir(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, "templates")
}

// Dir returns the local template directory.
func (c *Client) Dir() string { return c.dir }

// Sync clones the template repository on first use and fast-forwards it on
// later runs. It returns the local directory.
func (c *Client) Sync(ctx context.Context) (string, error) {
	if c.repoURL == "" {
		return "", opserrors.ConfigError("no template repository configured (templates.repo_url)")
	}

	if _, err := os.Stat(filepath.Join(c.dir, ".git")); err == nil {
		slog.Debug("Updating existing template repository", "path", c.dir)
		return c.dir, c.update(ctx)
	}
	slog.Debug("Template repository not present, cloning", "url", c.repoURL)
	return c.dir, c.clone(ctx)
}

func (c *Client) clone(ctx context.Context) error {
	if err := os.RemoveAll(c.dir); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryFileSystem, "remove stale template directory")
	}

	repo, err := git.PlainCloneContext(ctx, c.dir, false, &git.CloneOptions{
		URL:           c.repoURL,
		ReferenceName: plumbing.NewBranchReferenceName(c.ref),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		return opserrors.WrapError(err, opserrors.CategoryGit, fmt.Sprintf("clone template repository %s", c.repoURL))
	}

	if ref, err := repo.Head(); err == nil {
		slog.Info("Template repository cloned",
			"url", c.repoURL,
			"ref", c.ref,
			"commit", ref.Hash().String()[:8])
	} else {
		slog.Info("Template repository cloned", "url", c.repoURL, "ref", c.ref)
	}
	return nil
}

func (c *Client) update(ctx context.Context) error {
	repo, err := git.PlainOpen(c.dir)
	if err != nil {
		return opserrors.WrapError(err, opserrors.CategoryGit, "open template repository")
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return opserrors.WrapError(err, opserrors.CategoryGit, "get template worktree")
	}

	err = worktree.PullContext(ctx, &git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(c.ref),
		SingleBranch:  true,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return opserrors.WrapError(err, opserrors.CategoryGit, fmt.Sprintf("pull template repository %s", c.repoURL))
	}

	if err == git.NoErrAlreadyUpToDate {
		slog.Info("Template repository already up to date", "path", c.dir)
	} else if ref, headErr := repo.Head(); headErr == nil {
		slog.Info("Template repository updated", "commit", ref.Hash().String()[:8])
	}
	return nil
}
