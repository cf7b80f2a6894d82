// Package anicli wraps the ani-cli downloader.
//
// ani-cli names its output file itself, so the client snapshots the target
// directory before the run and identifies the download as the file that
// appeared. The caller renames it to the canonical episode path.
package anicli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"kotoba/internal/services"
)

// Command is the ani-cli binary name.
const Command = "ani-cli"

// Client runs ani-cli downloads.
type Client struct {
	binary        string
	commandRunner func(ctx context.Context, dir, name string, args ...string) error
}

// NewClient creates a client using the given binary, or the default when
// empty.
func NewClient(binary string) *Client {
	if binary == "" {
		binary = Command
	}
	return &Client{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (c *Client) WithCommandRunner(runner func(ctx context.Context, dir, name string, args ...string) error) {
	c.commandRunner = runner
}

// Download fetches one episode of title into destDir and returns the path of
// the downloaded file. The title must be the exact source-catalog title; the
// first search result is taken without prompting.
func (c *Client) Download(ctx context.Context, title string, episode int, destDir string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", services.Wrap(services.ErrPrecondition, "downloading", "ani-cli", "title required", nil)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure download dir: %w", err)
	}

	before, err := snapshotDir(destDir)
	if err != nil {
		return "", fmt.Errorf("snapshot download dir: %w", err)
	}

	args := []string{"-d", "-e", strconv.Itoa(episode), "-S", "1", title}
	if err := c.run(ctx, destDir, c.binary, args...); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "downloading", "ani-cli", "download failed", err)
	}

	created, err := newEntries(destDir, before)
	if err != nil {
		return "", fmt.Errorf("diff download dir: %w", err)
	}
	switch len(created) {
	case 0:
		return "", services.Wrap(services.ErrExternalTool, "downloading", "ani-cli", "no file produced", nil)
	case 1:
		return created[0], nil
	default:
		return "", services.Wrap(services.ErrExternalTool, "downloading", "ani-cli",
			fmt.Sprintf("expected one new file, found %d", len(created)), nil)
	}
}

func (c *Client) run(ctx context.Context, dir, name string, args ...string) error {
	if c.commandRunner != nil {
		return c.commandRunner(ctx, dir, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func snapshotDir(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		seen[entry.Name()] = struct{}{}
	}
	return seen, nil
}

func newEntries(dir string, before map[string]struct{}) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var created []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := before[entry.Name()]; ok {
			continue
		}
		created = append(created, filepath.Join(dir, entry.Name()))
	}
	return created, nil
}
