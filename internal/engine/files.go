package engine

// files.go - sys_Write materialization

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
)

var (
	validPathChars  = regexp.MustCompile(`^[-_./a-zA-Z0-9]+$`)
	directoryEscape = regexp.MustCompile(`/[.]+/`)
)

// validateWritePath rejects sys_Write paths that could escape the
// prefix directory or carry unsafe characters.
func validateWritePath(path string) error {
	if path == "" {
		return fmt.Errorf("sys_Write path must not be empty")
	}
	if !validPathChars.MatchString(path) {
		return fmt.Errorf("sys_Write path has invalid character: %q", path)
	}
	if path[0] == '/' {
		return fmt.Errorf("sys_Write path must be relative: %q", path)
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") || directoryEscape.MatchString(path) {
		return fmt.Errorf("sys_Write path must not use . or .. segments: %q", path)
	}
	clean := filepath.Clean(path)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, ":") {
		return fmt.Errorf("unsafe sys_Write path: %q", path)
	}
	return nil
}

// collectFiles reads the sys_Write rows, ordered by path for
// deterministic output, and validates every path before anything
// touches the disk.
func (e *Engine) collectFiles(ctx context.Context) ([]WriteFile, error) {
	rows, err := e.db.Query(ctx, "SELECT path, content FROM sys_Write ORDER BY path")
	if err != nil {
		return nil, &ExecutionError{Stage: StageWrite, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var files []WriteFile
	for rows.Next() {
		var f WriteFile
		if err := rows.Scan(&f.Path, &f.Content); err != nil {
			return nil, &ExecutionError{Stage: StageWrite, Err: err}
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{Stage: StageWrite, Err: err}
	}

	for _, f := range files {
		if err := validateWritePath(f.Path); err != nil {
			return nil, &ExecutionError{Stage: StageWrite, Err: err}
		}
	}
	return files, nil
}

// writeFiles materializes the sys_Write rows under the prefix
// directory. Directories are created up front, then the file bodies are
// written concurrently. Without a prefix nothing is written.
func (e *Engine) writeFiles(ctx context.Context, files []WriteFile) (bool, error) {
	if len(files) == 0 {
		return false, nil
	}
	if e.prefix == "" {
		e.logger.Warn("sys_Write files not written: no output prefix configured",
			"files", len(files))
		return false, nil
	}

	dirs := map[string]bool{}
	for _, f := range files {
		dirs[filepath.Join(e.prefix, filepath.Dir(f.Path))] = true
	}
	for dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, &ExecutionError{Stage: StageWrite, Err: err}
		}
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, f := range files {
		g.Go(func() error {
			target := filepath.Join(e.prefix, filepath.Clean(f.Path))
			e.logger.Info("writing file", "path", target)
			return os.WriteFile(target, []byte(f.Content), 0o644)
		})
	}
	if err := g.Wait(); err != nil {
		return false, &ExecutionError{Stage: StageWrite, Err: err}
	}
	return true, nil
}
