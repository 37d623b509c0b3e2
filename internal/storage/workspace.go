// Package storage manages the on-disk workspace for uploaded inputs and
// converted artifacts. All paths resolve inside the configured base
// directory; artifact filenames derive from generated IDs, never from client
// input.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscapes is returned when a resolved path would leave the workspace.
var ErrPathEscapes = errors.New("path escapes workspace")

// Workspace owns the inputs and outputs directories under one base dir.
type Workspace struct {
	baseDir    string
	inputsDir  string
	outputsDir string
	logger     *slog.Logger
}

// New creates a workspace rooted at baseDir, with inputs and outputs as
// subdirectory names. The directories are created if missing.
func New(baseDir, inputs, outputs string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving base directory: %w", err)
	}

	w := &Workspace{
		baseDir:    absBase,
		inputsDir:  filepath.Join(absBase, inputs),
		outputsDir: filepath.Join(absBase, outputs),
		logger:     logger.With("component", "storage"),
	}

	for _, dir := range []string{w.inputsDir, w.outputsDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return w, nil
}

// InputsDir returns the uploads directory path.
func (w *Workspace) InputsDir() string { return w.inputsDir }

// OutputsDir returns the converted artifacts directory path.
func (w *Workspace) OutputsDir() string { return w.outputsDir }

// InputPath returns the canonical path for a job's uploaded input.
func (w *Workspace) InputPath(jobID, ext string) string {
	return filepath.Join(w.inputsDir, jobID+"."+strings.TrimPrefix(ext, "."))
}

// OutputPath returns the canonical path for a converted artifact.
func (w *Workspace) OutputPath(outputID, ext string) string {
	return filepath.Join(w.outputsDir, outputID+"."+strings.TrimPrefix(ext, "."))
}

// Contains verifies that path resolves inside the workspace.
func (w *Workspace) Contains(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if abs != w.baseDir && !strings.HasPrefix(abs, w.baseDir+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrPathEscapes, path)
	}
	return nil
}

// SaveUpload streams an upload into the inputs directory and returns the
// stored path and byte count. The file appears atomically: data lands in a
// temp file first and is renamed into place only after a complete copy.
func (w *Workspace) SaveUpload(r io.Reader, jobID, ext string) (string, int64, error) {
	target := w.InputPath(jobID, ext)
	tempPath := filepath.Join(w.inputsDir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(target), randomHex(8)))

	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("writing upload: %w", err)
	}

	if err := os.Rename(tempPath, target); err != nil {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("publishing upload: %w", err)
	}

	w.logger.Debug("upload stored", "path", target, "bytes", n)
	return target, n, nil
}

// Open opens a stored artifact for reading after confinement checks.
func (w *Workspace) Open(path string) (*os.File, os.FileInfo, error) {
	if err := w.Contains(path); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("stat artifact: %w", err)
	}
	return f, info, nil
}

// Remove deletes an artifact. A missing file counts as success, so repeated
// deletion of the same artifact is harmless.
func (w *Workspace) Remove(path string) error {
	if err := w.Contains(path); err != nil {
		return err
	}
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing artifact: %w", err)
	}
	return nil
}

// List returns the entries of one workspace directory.
func (w *Workspace) List(dir string) ([]os.DirEntry, error) {
	if err := w.Contains(dir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	return entries, nil
}

// randomHex generates a random hex string of the specified length.
func randomHex(n int) string {
	bytes := make([]byte, n/2+1)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", os.Getpid())
	}
	return hex.EncodeToString(bytes)[:n]
}
