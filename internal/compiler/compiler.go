// Package compiler runs the Gren compiler to produce package documentation.
package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gren-lang/package-registry/internal/models"
)

// Kind is the class of a compiler failure that callers react to.
type Kind int

const (
	KindUnknown Kind = iota
	KindManifestMissing
	KindVersionMismatch
)

func (k Kind) String() string {
	switch k {
	case KindManifestMissing:
		return "manifest_missing"
	case KindVersionMismatch:
		return "version_mismatch"
	default:
		return "unknown"
	}
}

// Report titles the compiler emits on stderr with --report=json.
const (
	titleNoManifest      = "NO gren.json FILE"
	titleVersionMismatch = "GREN VERSION MISMATCH"
)

// ToolError is a failed compiler run.
type ToolError struct {
	Kind   Kind
	Title  string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("gren make: %s", e.Title)
	}
	return fmt.Sprintf("gren make: %v", e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

type report struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

// Compiler invokes a gren binary.
type Compiler struct {
	path    string
	timeout time.Duration
}

func New(path string, timeout time.Duration) *Compiler {
	if path == "" {
		path = "gren"
	}
	return &Compiler{path: path, timeout: timeout}
}

// Ensure resolves the compiler binary.
func (c *Compiler) Ensure() (string, error) {
	bin, err := exec.LookPath(c.path)
	if err != nil {
		return "", fmt.Errorf("locate gren compiler %q: %w", c.path, err)
	}
	return bin, nil
}

// Version reports the output of `gren --version`.
func (c *Compiler) Version(ctx context.Context) (string, error) {
	bin, err := c.Ensure()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, bin, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("gren --version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Build compiles the package checked out in dir and reads back its manifest,
// readme and generated docs.
func (c *Compiler) Build(ctx context.Context, dir string) (*models.BuildArtifact, error) {
	bin, err := c.Ensure()
	if err != nil {
		return nil, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "make", "--docs=./docs.json", "--report=json")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GREN_HOME="+filepath.Join(dir, ".gren", "home"))
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, newToolError(stderr.Bytes(), err)
	}
	return ReadArtifact(dir)
}

func newToolError(stderr []byte, err error) *ToolError {
	te := &ToolError{Kind: KindUnknown, Stderr: strings.TrimSpace(string(stderr)), Err: err}
	var r report
	if json.Unmarshal(stderr, &r) != nil {
		return te
	}
	te.Title = r.Title
	switch r.Title {
	case titleNoManifest:
		te.Kind = KindManifestMissing
	case titleVersionMismatch:
		te.Kind = KindVersionMismatch
	}
	return te
}

// ReadArtifact loads gren.json, README.md and docs.json from dir.
func ReadArtifact(dir string) (*models.BuildArtifact, error) {
	rawManifest, err := os.ReadFile(filepath.Join(dir, "gren.json"))
	if err != nil {
		return nil, fmt.Errorf("read gren.json: %w", err)
	}
	readme, err := os.ReadFile(filepath.Join(dir, "README.md"))
	if err != nil {
		return nil, fmt.Errorf("read README.md: %w", err)
	}
	rawDocs, err := os.ReadFile(filepath.Join(dir, "docs.json"))
	if err != nil {
		return nil, fmt.Errorf("read docs.json: %w", err)
	}

	a := &models.BuildArtifact{
		Readme:      string(readme),
		RawManifest: rawManifest,
		RawDocs:     rawDocs,
	}
	if err := json.Unmarshal(rawManifest, &a.Manifest); err != nil {
		return nil, fmt.Errorf("decode gren.json: %w", err)
	}
	if err := json.Unmarshal(rawDocs, &a.Modules); err != nil {
		return nil, fmt.Errorf("decode docs.json: %w", err)
	}
	return a, nil
}

// AsToolError unwraps err into a *ToolError.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
