package formatter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/desertthunder/musixporter/internal/shared"
	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

// Encode serializes v as two-space indented JSON with a trailing newline.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write atomically writes the document to path.
func Write(ctx context.Context, doc *Document, path string) error {
	return WriteJSON(ctx, path, doc)
}

// WriteJSON writes v to path through a temp file in the same directory, fsyncs it
// and renames it into place while holding an advisory lock on <path>.lock.
// The lock file stays behind: removing it would let two writers lock different inodes.
//
// On any failure, including cancellation before the rename, the temp file is removed
// and an existing file at path is left untouched. Failures are [shared.ExportWriteError].
func WriteJSON(ctx context.Context, path string, v any) error {
	fail := func(op string, err error) error {
		return &shared.ExportWriteError{Path: path, Op: op, Err: err}
	}

	data, err := Encode(v)
	if err != nil {
		return fail("encode", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail("mkdir", err)
	}

	lockPath := path + ".lock"
	lock := flock.New(lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fail("lock", err)
	}
	if !locked {
		return fail("lock", fmt.Errorf("%s is held by another writer", lockPath))
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fail("create", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("close", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fail("chmod", err)
	}

	if err := ctx.Err(); err != nil {
		return fail("rename", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fail("rename", err)
	}
	committed = true
	return nil
}

// ReadDocument parses a document previously written by [Write].
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse export %s: %v", shared.ErrInvalidInput, path, err)
	}
	return &doc, nil
}
